package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/countcam/countcam-core/internal/auth"
)

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "hunter2hunter2", auth.RoleUser)

	t.Run("valid credentials", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"username": "alice",
			"password": "hunter2hunter2",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp loginResponse
		decode(t, rec, &resp)
		if resp.AccessToken == "" {
			t.Fatal("expected access token")
		}
		if resp.TokenType != "Bearer" {
			t.Errorf("expected Bearer token type, got %q", resp.TokenType)
		}
		if resp.ExpiresIn != 15*60 {
			t.Errorf("expected 900s expiry, got %d", resp.ExpiresIn)
		}

		// The issued token must work on a protected route.
		protected := env.do(t, http.MethodGet, "/api/v1/devices/", resp.AccessToken, nil)
		if protected.Code != http.StatusOK {
			t.Errorf("expected issued token to be accepted, got %d", protected.Code)
		}
	})

	t.Run("records login time", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"username": "alice",
			"password": "hunter2hunter2",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		user, err := env.users.GetByUsername(context.Background(), "alice")
		if err != nil {
			t.Fatalf("failed to load user: %v", err)
		}
		if user.LastLoginAt == nil {
			t.Error("expected last login time to be recorded")
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"username": "alice",
			"password": "wrong",
		})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"username": "mallory",
			"password": "hunter2hunter2",
		})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"username": "alice",
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestMe(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "bob", "swordfish-swordfish", auth.RoleUser)
	token := env.token(t, user)

	rec := env.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got auth.User
	decode(t, rec, &got)
	if got.ID != user.ID {
		t.Errorf("expected user %s, got %s", user.ID, got.ID)
	}
	if got.Username != "bob" {
		t.Errorf("expected username bob, got %q", got.Username)
	}
	if got.PasswordHash != "" {
		t.Error("password hash must not be serialised")
	}
}

func TestWSTicket(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "carol", "password-123", auth.RoleAdmin)
	token := env.token(t, user)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/ws-ticket", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Ticket    string `json:"ticket"`
		ExpiresIn int    `json:"expires_in"`
	}
	decode(t, rec, &resp)
	if resp.Ticket == "" {
		t.Fatal("expected a ticket")
	}
	if resp.ExpiresIn != 60 {
		t.Errorf("expected 60s expiry, got %d", resp.ExpiresIn)
	}

	entry, ok := env.server.validateTicket(resp.Ticket)
	if !ok {
		t.Fatal("expected ticket to validate")
	}
	if entry.userID != user.ID {
		t.Errorf("expected ticket bound to %s, got %s", user.ID, entry.userID)
	}
	if entry.role != auth.RoleAdmin {
		t.Errorf("expected admin role on ticket, got %s", entry.role)
	}

	// Tickets are single-use.
	if _, ok := env.server.validateTicket(resp.Ticket); ok {
		t.Error("expected second validation to fail")
	}
}
