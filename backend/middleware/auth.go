package middleware

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/cleanclik/core/backend/utils"
	"github.com/cleanclik/core/cleanclik/database/repositories"
)

// AuthRequired middleware ensures the request carries a valid session token
func AuthRequired(sessions repositories.SessionRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			slog.Debug("Auth required: missing bearer token",
				slog.String("path", c.Path()))
			return utils.SendUnauthorized(c, "Authentication required")
		}

		userID, err := sessions.GetUserID(c.Context(), token)
		if err != nil {
			if errors.Is(err, repositories.ErrSessionNotFound) {
				slog.Debug("Auth required: unknown or expired session",
					slog.String("path", c.Path()))
				return utils.SendUnauthorized(c, "Invalid or expired session")
			}
			// Fail closed when the session store is unreachable
			slog.Error("Auth required: session lookup failed",
				slog.String("error", err.Error()))
			return utils.SendUnauthorized(c, "Authentication required")
		}

		// Store user in context
		c.Locals("user_id", userID)

		slog.Debug("Auth middleware: user authenticated",
			slog.String("user_id", userID))

		return c.Next()
	}
}

// OptionalAuth middleware adds the user ID to context if a valid token is present
func OptionalAuth(sessions repositories.SessionRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return c.Next()
		}

		userID, err := sessions.GetUserID(c.Context(), token)
		if err == nil && userID != "" {
			c.Locals("user_id", userID)
			slog.Debug("Optional auth: user authenticated",
				slog.String("user_id", userID))
		}

		return c.Next()
	}
}

// bearerToken extracts the token from the Authorization header
func bearerToken(c *fiber.Ctx) string {
	auth := c.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
