package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/cleanclik/core/backend/utils"
)

// LoggingMiddleware logs HTTP requests in a structured format
func LoggingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		// Process request
		err := c.Next()

		// Calculate duration
		duration := time.Since(start)

		// Extract user information if available
		userID, _ := utils.ExtractUserID(c)

		// Log level based on status code
		statusCode := c.Response().StatusCode()
		logLevel := slog.LevelInfo
		if statusCode >= 400 && statusCode < 500 {
			logLevel = slog.LevelWarn
		} else if statusCode >= 500 {
			logLevel = slog.LevelError
		}

		// Create log entry
		logger := slog.With(
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("query", c.Request().URI().QueryArgs().String()),
			slog.Int("status", statusCode),
			slog.Duration("duration", duration),
			slog.String("ip", utils.GetIPAddress(c)),
			slog.String("user_agent", utils.GetUserAgent(c)),
			slog.Int("size", len(c.Response().Body())),
		)

		// Add user information if available
		if userID != "" {
			logger = logger.With(slog.String("user_id", userID))
		}

		// Add error information if present
		if err != nil {
			logger = logger.With(slog.String("error", err.Error()))
		}

		// Log the request
		message := "HTTP request processed"
		if err != nil {
			message = "HTTP request failed"
		}

		logger.Log(c.Context(), logLevel, message)

		return err
	}
}

// AccessLogMiddleware logs access attempts for sensitive operations
func AccessLogMiddleware(operation string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := utils.ExtractUserID(c)

		slog.Info("Sensitive operation attempted",
			slog.String("operation", operation),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("ip", utils.GetIPAddress(c)),
			slog.String("user_id", userID),
			slog.String("user_agent", utils.GetUserAgent(c)),
		)

		return c.Next()
	}
}
