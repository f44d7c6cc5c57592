package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/domain"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/repository/memory"
	apperrors "github.com/helpdesk-labs/ticket-lifecycle/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("s3cret", 5)
	token, expiresAt, err := tm.GenerateToken("user-1", domain.RoleAgent)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if expiresAt.IsZero() {
		t.Fatalf("expected expiry")
	}
	claims, err := tm.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "user-1" || claims.Role != domain.RoleAgent {
		t.Errorf("unexpected claims %+v", claims)
	}

	if _, err := NewTokenManager("other", 5).ParseToken(token); err == nil {
		t.Errorf("expected a token signed with another secret to be rejected")
	}
}

func newApp(t *testing.T) (*fiber.App, *TokenManager) {
	t.Helper()
	store := memory.NewStore(nil)
	store.PutUser(domain.User{ID: "agent-1", Role: domain.RoleAgent, Active: true})
	store.PutUser(domain.User{ID: "cust-1", Role: domain.RoleCustomer, Active: true})
	store.PutUser(domain.User{ID: "gone-1", Role: domain.RoleAgent, Active: false})

	tm := NewTokenManager("s3cret", 5)
	mw := NewAuthMiddleware(tm, store.Users())
	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
	}})
	app.Get("/me", mw.Handle, func(c *fiber.Ctx) error {
		actor, _ := ActorFromContext(c)
		return c.SendString(string(actor.Role) + ":" + actor.ID)
	})
	app.Get("/staff", mw.Handle, RequireStaff(), func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNoContent) })
	return app, tm
}

func TestAuthMiddleware(t *testing.T) {
	app, tm := newApp(t)
	agentToken, _, _ := tm.GenerateToken("agent-1", domain.RoleAgent)
	// the stored role wins over a forged claim
	customerToken, _, _ := tm.GenerateToken("cust-1", domain.RoleAdmin)
	goneToken, _, _ := tm.GenerateToken("gone-1", domain.RoleAgent)
	unknownToken, _, _ := tm.GenerateToken("ghost", domain.RoleAgent)

	cases := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"missing header", "/me", "", http.StatusUnauthorized},
		{"malformed header", "/me", "Token abc", http.StatusUnauthorized},
		{"garbage token", "/me", "Bearer abc", http.StatusUnauthorized},
		{"valid", "/me", "Bearer " + agentToken, http.StatusOK},
		{"inactive account", "/me", "Bearer " + goneToken, http.StatusUnauthorized},
		{"unknown account", "/me", "Bearer " + unknownToken, http.StatusUnauthorized},
		{"staff route as agent", "/staff", "Bearer " + agentToken, http.StatusNoContent},
		{"staff route as customer", "/staff", "Bearer " + customerToken, http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if resp.StatusCode != tc.status {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.status, resp.StatusCode)
		}
	}
}

func TestAuthMiddleware_QueryTokenOnlyForUpgrades(t *testing.T) {
	app, tm := newApp(t)
	token, _, _ := tm.GenerateToken("agent-1", domain.RoleAgent)

	req := httptest.NewRequest(http.MethodGet, "/me?access_token="+token, nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected plain requests to ignore the query token, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/me?access_token="+token, nil)
	req.Header.Set("Upgrade", "websocket")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected upgrade request to authenticate via query, got %d", resp.StatusCode)
	}
}
