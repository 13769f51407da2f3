package handlers

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/cleanclik/core/backend/middleware"
	webmodels "github.com/cleanclik/core/backend/models"
	"github.com/cleanclik/core/backend/utils"
	"github.com/cleanclik/core/cleanclik/cards"
	"github.com/cleanclik/core/cleanclik/database/models"
	"github.com/cleanclik/core/cleanclik/database/repositories"
	"github.com/cleanclik/core/cleanclik/leaderboard"
)

// WebApp represents the web application with all dependencies
type WebApp struct {
	Leaderboard   *leaderboard.Engine
	Cards         *cards.Generator
	Sessions      repositories.SessionRepository
	AllowOrigins  string
	ShareRateMax  int
	ShareRateSecs int
	Version       string
	Commit        string
}

// SetupRoutes registers all routes and middleware on the Fiber app
func (w *WebApp) SetupRoutes(app *fiber.App) {
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins: w.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))

	app.Get("/health", w.handleHealth)

	api := app.Group("/api", middleware.APIRateLimit())

	api.Get("/leaderboard", middleware.OptionalAuth(w.Sessions), w.handleLeaderboard)
	api.Get("/leaderboard/search", middleware.OptionalAuth(w.Sessions), w.handleLeaderboardSearch)

	shareWindow := time.Duration(w.ShareRateSecs) * time.Second
	if shareWindow <= 0 {
		shareWindow = time.Minute
	}
	shareMax := w.ShareRateMax
	if shareMax <= 0 {
		shareMax = 5
	}

	cardAPI := api.Group("/cards", middleware.AuthRequired(w.Sessions))
	cardAPI.Post("/", middleware.ShareRateLimit(shareMax, shareWindow), w.handleCardCreate)
	cardAPI.Get("/:id", w.handleCardStatus)
	cardAPI.Delete("/:id", w.handleCardCancel)
}

// handleHealth reports service version and uptime status
func (w *WebApp) handleHealth(c *fiber.Ctx) error {
	return utils.SendSuccess(c, fiber.Map{
		"status":  "ok",
		"version": w.Version,
		"commit":  w.Commit,
	}, "")
}

// handleLeaderboard serves ranked standings for a period
func (w *WebApp) handleLeaderboard(c *fiber.Ctx) error {
	callerID, _ := utils.ExtractUserID(c)
	rawPeriod := c.Query("period", string(leaderboard.PeriodAllTime))
	if err := utils.ValidatePeriod(rawPeriod); err != nil {
		return utils.SendBadRequest(c, err.Error(), nil)
	}
	period := leaderboard.Period(rawPeriod)

	limit := leaderboard.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return utils.SendBadRequest(c, "limit must be a positive integer", nil)
		}
		limit = parsed
	}

	entries, err := w.Leaderboard.GetLeaderboard(c.Context(), callerID, period, limit)
	if err != nil {
		return w.sendLeaderboardError(c, err)
	}

	return utils.SendSuccess(c, webmodels.LeaderboardResponse{
		Period:      string(period),
		Leaderboard: entries,
		TotalUsers:  len(entries),
	}, "")
}

// handleLeaderboardSearch serves fuzzy name search over the standings
func (w *WebApp) handleLeaderboardSearch(c *fiber.Ctx) error {
	callerID, _ := utils.ExtractUserID(c)
	query := c.Query("q")
	if query == "" {
		return utils.SendBadRequest(c, "q is required", nil)
	}

	limit := leaderboard.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return utils.SendBadRequest(c, "limit must be a positive integer", nil)
		}
		limit = parsed
	}

	entries, err := w.Leaderboard.Search(c.Context(), callerID, query, limit)
	if err != nil {
		return w.sendLeaderboardError(c, err)
	}

	return utils.SendSuccess(c, webmodels.LeaderboardResponse{
		Period:      string(leaderboard.PeriodAllTime),
		Leaderboard: entries,
		TotalUsers:  len(entries),
	}, "")
}

func (w *WebApp) sendLeaderboardError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, leaderboard.ErrAccessDenied):
		return utils.SendUnauthorized(c, "Sign in to view the leaderboard")
	case errors.Is(err, leaderboard.ErrInvalidPeriod):
		return utils.SendBadRequest(c, "unknown leaderboard period", nil)
	case errors.Is(err, leaderboard.ErrDataUnavailable):
		return utils.SendServiceUnavailable(c, "Leaderboard is temporarily unavailable")
	default:
		slog.Error("Leaderboard request failed", slog.String("error", err.Error()))
		return utils.SendInternalServerError(c, "Failed to load leaderboard")
	}
}

// handleCardCreate requests a share card for the authenticated user
func (w *WebApp) handleCardCreate(c *fiber.Ctx) error {
	userID, ok := utils.ExtractUserID(c)
	if !ok {
		return utils.SendUnauthorized(c, "Authentication required")
	}

	var payload webmodels.CardRequestPayload
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendBadRequest(c, "invalid request body", nil)
	}
	if details := utils.ValidateCardRequest(&payload); details != nil {
		return utils.SendBadRequest(c, "invalid card request", details)
	}

	result, err := w.Cards.Generate(c.Context(), cards.Request{
		UserID:   userID,
		Kind:     cards.TemplateKind(payload.Template),
		Platform: cards.PlatformTarget(payload.Platform),
	})
	if err != nil {
		return w.sendCardError(c, err)
	}

	if result.Status == models.CardJobStatusQueued {
		return utils.SendAccepted(c, result, "Card queued for generation")
	}
	return utils.SendSuccess(c, result, "Card generated")
}

// handleCardStatus reports the state of a card job
func (w *WebApp) handleCardStatus(c *fiber.Ctx) error {
	userID, ok := utils.ExtractUserID(c)
	if !ok {
		return utils.SendUnauthorized(c, "Authentication required")
	}

	result, err := w.Cards.Status(c.Context(), c.Params("id"), userID)
	if err != nil {
		return w.sendCardError(c, err)
	}

	return utils.SendSuccess(c, result, "")
}

// handleCardCancel removes a still-queued card job
func (w *WebApp) handleCardCancel(c *fiber.Ctx) error {
	userID, ok := utils.ExtractUserID(c)
	if !ok {
		return utils.SendUnauthorized(c, "Authentication required")
	}

	if err := w.Cards.Cancel(c.Context(), c.Params("id"), userID); err != nil {
		return w.sendCardError(c, err)
	}

	return utils.SendSuccess(c, nil, "Card request canceled")
}

func (w *WebApp) sendCardError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, cards.ErrInvalidInput):
		return utils.SendBadRequest(c, err.Error(), nil)
	case errors.Is(err, repositories.ErrJobNotFound):
		return utils.SendNotFound(c, "Card job not found")
	case errors.Is(err, cards.ErrNotOwner):
		return utils.SendForbidden(c, "Card job belongs to another user")
	case errors.Is(err, cards.ErrNotCancelable):
		return utils.SendConflict(c, "Card job is no longer cancelable", nil)
	case errors.Is(err, cards.ErrRendering):
		slog.Error("Card rendering failed", slog.String("error", err.Error()))
		return utils.SendInternalServerError(c, "Card rendering failed")
	case errors.Is(err, cards.ErrDelivery):
		slog.Error("Card delivery failed", slog.String("error", err.Error()))
		return utils.SendError(c, fiber.StatusBadGateway, "DELIVERY_FAILED",
			"Card upload failed", nil)
	default:
		slog.Error("Card request failed", slog.String("error", err.Error()))
		return utils.SendInternalServerError(c, "Card request failed")
	}
}
