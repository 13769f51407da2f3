package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/cleanclik/core/cleanclik/database/repositories"
)

type fakeSessions struct {
	tokens map[string]string
	err    error
}

func (f *fakeSessions) GetUserID(ctx context.Context, token string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	userID, ok := f.tokens[token]
	if !ok {
		return "", repositories.ErrSessionNotFound
	}
	return userID, nil
}

func authTestApp(sessions repositories.SessionRepository) *fiber.App {
	app := fiber.New()
	app.Get("/protected", AuthRequired(sessions), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("user_id").(string))
	})
	return app
}

func TestAuthRequired(t *testing.T) {
	tests := []struct {
		name       string
		sessions   *fakeSessions
		authHeader string
		wantStatus int
	}{
		{
			name:       "valid token",
			sessions:   &fakeSessions{tokens: map[string]string{"tok-1": "u1"}},
			authHeader: "Bearer tok-1",
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing header",
			sessions:   &fakeSessions{tokens: map[string]string{"tok-1": "u1"}},
			authHeader: "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unknown token",
			sessions:   &fakeSessions{tokens: map[string]string{}},
			authHeader: "Bearer tok-2",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed header",
			sessions:   &fakeSessions{tokens: map[string]string{"tok-1": "u1"}},
			authHeader: "tok-1",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "session store down fails closed",
			sessions:   &fakeSessions{err: errors.New("connection refused")},
			authHeader: "Bearer tok-1",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := authTestApp(tt.sessions)

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	sessions := &fakeSessions{tokens: map[string]string{"tok-1": "u1"}}

	app := fiber.New()
	app.Get("/open", OptionalAuth(sessions), func(c *fiber.Ctx) error {
		if userID, ok := c.Locals("user_id").(string); ok {
			return c.SendString(userID)
		}
		return c.SendString("anonymous")
	})

	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status without token = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	req = httptest.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status with token = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}
