package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/cleanclik/core/backend/handlers"
	"github.com/cleanclik/core/backend/middleware"
	"github.com/cleanclik/core/cleanclik"
	"github.com/cleanclik/core/cleanclik/cards"
	"github.com/cleanclik/core/cleanclik/database"
	"github.com/cleanclik/core/cleanclik/database/repositories"
	"github.com/cleanclik/core/cleanclik/leaderboard"
	"github.com/cleanclik/core/cleanclik/logger"
	"github.com/cleanclik/core/cleanclik/services"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Initialize custom logger
	customHandler := logger.NewHandler()
	slog.SetDefault(slog.New(customHandler))

	slog.Info("Starting CleanClik core service",
		slog.String("version", version),
		slog.String("commit", commit))

	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := cleanclik.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Configuration loaded successfully")

	slog.Info("Initializing database connection...")
	dbStartTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := database.New(ctx, database.DBConfig{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		Database: cfg.DB.Database,
		PoolSize: cfg.DB.PoolSize,
	})
	if err != nil {
		slog.Error("Database connection failed",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}
	defer db.Close()

	slog.Info("Database connected successfully",
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	slog.Info("Initializing database schema...")
	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize database schema",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}
	slog.Info("Database schema initialized successfully")

	// Repositories
	userRepo := repositories.NewUserRepository(db.BunDB())
	activityRepo := repositories.NewActivityRepository(db.BunDB())
	jobRepo := repositories.NewCardJobRepository(db.BunDB())
	rotationRepo := repositories.NewRotationRepository(db.BunDB())
	sessionRepo := repositories.NewSessionRepository(db.BunDB())

	// Spaces delivery for rendered cards
	spacesService := services.NewSpacesService(
		cfg.Spaces.Key,
		cfg.Spaces.Secret,
		cfg.Spaces.Region,
		cfg.Spaces.Bucket,
		cfg.Spaces.CardRoot,
	)

	// Card generation pipeline
	assetCache, err := cards.NewAssetCache(cfg.Cards.AssetCacheSize)
	if err != nil {
		slog.Error("Failed to initialize template asset cache",
			slog.String("error", err.Error()))
		os.Exit(-1)
	}

	generator := cards.NewGenerator(
		jobRepo,
		cards.NewRotator(rotationRepo),
		cards.NewAggregator(userRepo, activityRepo),
		assetCache,
		cards.NewChromeRenderer(time.Duration(cfg.Cards.RenderTimeoutMS)*time.Millisecond),
		spacesService,
		cards.Config{
			MaxRetries:    cfg.Cards.MaxRetries,
			RetryBackoff:  time.Duration(cfg.Cards.RetryBackoffMS) * time.Millisecond,
			RenderTimeout: time.Duration(cfg.Cards.RenderTimeoutMS) * time.Millisecond,
			AppLink:       cfg.Cards.AppLink,
		},
	)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	// Background drain of queued card jobs
	generator.Start(runCtx)

	// Connectivity probe drives the queue's online flag
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		online := true
		for {
			select {
			case <-ticker.C:
				probeCtx, probeCancel := context.WithTimeout(runCtx, 5*time.Second)
				err := db.Ping(probeCtx)
				probeCancel()

				if (err == nil) != online {
					online = err == nil
					if online {
						logger.LogJob("Connectivity restored, resuming card queue drain")
					} else {
						logger.LogError("Connectivity lost, card generation will queue", err)
					}
				}
				generator.SetOnline(err == nil)
			case <-runCtx.Done():
				return
			}
		}
	}()

	webApp := &handlers.WebApp{
		Leaderboard:   leaderboard.NewEngine(userRepo),
		Cards:         generator,
		Sessions:      sessionRepo,
		AllowOrigins:  strings.Join(cfg.Web.AllowOrigins, ","),
		ShareRateMax:  cfg.Web.ShareRateMax,
		ShareRateSecs: cfg.Web.ShareRateSecs,
		Version:       version,
		Commit:        commit,
	}

	app := fiber.New(fiber.Config{
		AppName:      "CleanClik Core",
		ErrorHandler: middleware.CustomErrorHandler,
	})
	webApp.SetupRoutes(app)

	go func() {
		if err := app.Listen(cfg.Web.Addr); err != nil {
			slog.Error("Web server failed",
				slog.String("error", err.Error()),
				slog.String("addr", cfg.Web.Addr))
			os.Exit(-1)
		}
	}()

	logger.LogSystem("Service is running. Press CTRL-C to exit.",
		slog.String("addr", cfg.Web.Addr))
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s
	logger.LogSystem("Shutting down...")

	runCancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("Web server shutdown failed", slog.String("error", err.Error()))
	}
}
