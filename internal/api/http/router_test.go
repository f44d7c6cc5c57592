package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/api/http/handlers"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/auth"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/clock"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/domain"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/events"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/lifecycle"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/monitor"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/notify"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/observability"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/repository/memory"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/service"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/sla"
)

type testServer struct {
	app    *fiber.App
	store  *memory.Store
	tokens map[string]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	fake := clock.NewFake(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	store := memory.NewStore(fake)
	tm := auth.NewTokenManager("test-secret", 10)
	tokens := map[string]string{}
	for id, role := range map[string]domain.Role{
		"cust-1":  domain.RoleCustomer,
		"cust-2":  domain.RoleCustomer,
		"agent-1": domain.RoleAgent,
		"admin-1": domain.RoleAdmin,
	} {
		store.PutUser(domain.User{ID: id, Role: role, Active: true})
		token, _, err := tm.GenerateToken(id, role)
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		tokens[id] = token
	}

	metrics := observability.NewMetrics("test")
	hub := events.NewBroadcaster(8, nil, metrics)
	dispatcher := notify.NewDispatcher(notify.DispatcherDependencies{
		Notifications: store.Notifications(),
		Publisher:     hub,
		Clock:         fake,
		Metrics:       metrics,
	})
	resolver := sla.NewResolver(store.SLAConfigs(), sla.DefaultPolicies(), nil)
	calc := sla.NewCalculator(resolver)
	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo:   store.Tickets(),
		HistoryRepo:  store.History(),
		MessageRepo:  store.Messages(),
		UserRepo:     store.Users(),
		StateMachine: lifecycle.NewStateMachine(calc, fake),
		Deadlines:    calc,
		Notifier:     dispatcher,
		Publisher:    hub,
		Clock:        fake,
	})
	mon := monitor.New(monitor.Dependencies{
		Tickets:  store.Tickets(),
		Users:    store.Users(),
		Notifier: dispatcher,
		Clock:    fake,
		Metrics:  metrics,
	})

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("ticket-lifecycle", "test", nil, nil),
		Tickets:        handlers.NewTicketsHandler(tickets),
		Notifications:  handlers.NewNotificationsHandler(service.NewNotificationService(store.Notifications())),
		SLA:            handlers.NewSLAHandler(mon, resolver),
		Realtime:       handlers.NewRealtimeHandler(hub, tickets, nil),
		Metrics:        metrics,
		AuthMiddleware: auth.NewAuthMiddleware(tm, store.Users()),
	})
	return &testServer{app: app, store: store, tokens: tokens}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, user, body string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+s.tokens[user])
	}
	resp, err := s.app.Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var env envelope
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode, env
}

type ticketBody struct {
	ID           string   `json:"id"`
	Status       string   `json:"status"`
	AssignedToID *string  `json:"assignedToId"`
	SLADeadline  *string  `json:"slaDeadline"`
	NextStatuses []string `json:"nextStatuses"`
}

func (s *testServer) createTicket(t *testing.T) ticketBody {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/tickets", "admin-1",
		`{"title":"Charged twice","issueType":"BILLING","priority":"HIGH","customerId":"cust-1","assignedToId":"agent-1"}`)
	if status != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d (%+v)", status, env.Error)
	}
	var ticket ticketBody
	if err := json.Unmarshal(env.Data, &ticket); err != nil {
		t.Fatalf("decode ticket: %v", err)
	}
	return ticket
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	if status, _ := s.do(t, http.MethodGet, "/health/live", "", ""); status != http.StatusOK {
		t.Errorf("live: expected 200, got %d", status)
	}
	if status, _ := s.do(t, http.MethodGet, "/health/ready", "", ""); status != http.StatusOK {
		t.Errorf("ready without external deps: expected 200, got %d", status)
	}
	if status, _ := s.do(t, http.MethodGet, "/metrics", "", ""); status != http.StatusOK {
		t.Errorf("metrics: expected 200, got %d", status)
	}
	status, env := s.do(t, http.MethodGet, "/nowhere", "", "")
	if status != http.StatusNotFound || env.Error == nil {
		t.Errorf("unknown route: expected JSON 404, got %d %+v", status, env.Error)
	}
}

func TestTickets_RequireAuthentication(t *testing.T) {
	s := newTestServer(t)
	status, env := s.do(t, http.MethodPost, "/tickets", "", `{"title":"x"}`)
	if status != http.StatusUnauthorized || env.Error == nil || env.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("expected 401 UNAUTHORIZED, got %d %+v", status, env.Error)
	}
}

func TestTickets_CreateGetAndOwnership(t *testing.T) {
	s := newTestServer(t)
	ticket := s.createTicket(t)
	if ticket.Status != "OPEN" || ticket.SLADeadline == nil {
		t.Fatalf("unexpected ticket %+v", ticket)
	}
	if len(ticket.NextStatuses) == 0 {
		t.Errorf("expected next statuses to be rendered")
	}

	if status, _ := s.do(t, http.MethodGet, "/tickets/"+ticket.ID, "cust-1", ""); status != http.StatusOK {
		t.Errorf("owner: expected 200, got %d", status)
	}
	if status, _ := s.do(t, http.MethodGet, "/tickets/"+ticket.ID, "cust-2", ""); status != http.StatusForbidden {
		t.Errorf("other customer: expected 403, got %d", status)
	}
	if status, _ := s.do(t, http.MethodGet, "/tickets/does-not-exist", "agent-1", ""); status != http.StatusNotFound {
		t.Errorf("missing: expected 404, got %d", status)
	}
}

func TestTickets_UpdateFlow(t *testing.T) {
	s := newTestServer(t)
	ticket := s.createTicket(t)
	path := "/tickets/" + ticket.ID

	status, env := s.do(t, http.MethodPatch, path, "agent-1", `{"status":"RESOLVED"}`)
	if status != http.StatusOK {
		t.Fatalf("resolve: expected 200, got %d %+v", status, env.Error)
	}
	var updated struct {
		Ticket  ticketBody `json:"ticket"`
		History []struct {
			Action string `json:"action"`
		} `json:"history"`
	}
	if err := json.Unmarshal(env.Data, &updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated.Ticket.Status != "RESOLVED" || len(updated.History) != 1 || updated.History[0].Action != "STATUS_CHANGED" {
		t.Fatalf("unexpected update response %+v", updated)
	}

	status, env = s.do(t, http.MethodPatch, path, "agent-1", `{"status":"IN_PROGRESS"}`)
	if status != http.StatusConflict || env.Error == nil || env.Error.Code != "INVALID_TRANSITION" {
		t.Fatalf("expected 409 INVALID_TRANSITION, got %d %+v", status, env.Error)
	}
	if env.Error.Message != "cannot perform this action in the current state" {
		t.Errorf("unexpected message %q", env.Error.Message)
	}

	status, env = s.do(t, http.MethodPatch, path, "cust-1", `{"priority":"LOW"}`)
	if status != http.StatusForbidden {
		t.Errorf("customer priority change: expected 403, got %d %+v", status, env.Error)
	}

	status, env = s.do(t, http.MethodPatch, path, "cust-1", `{"status":"REOPENED"}`)
	if status != http.StatusOK {
		t.Fatalf("customer reopen: expected 200, got %d %+v", status, env.Error)
	}

	status, env = s.do(t, http.MethodPatch, path, "admin-1", `{"assignedToId":null}`)
	if status != http.StatusOK {
		t.Fatalf("unassign: expected 200, got %d %+v", status, env.Error)
	}
	if err := json.Unmarshal(env.Data, &updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated.Ticket.AssignedToID != nil {
		t.Errorf("expected ticket to be unassigned, got %v", *updated.Ticket.AssignedToID)
	}

	if status, _ := s.do(t, http.MethodPatch, path, "admin-1", `{}`); status != http.StatusBadRequest {
		t.Errorf("empty patch: expected 400, got %d", status)
	}

	status, env = s.do(t, http.MethodGet, path+"/history", "cust-1", "")
	if status != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", status)
	}
	var history []map[string]any
	if err := json.Unmarshal(env.Data, &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	// CREATED, resolve, reopen, unassign
	if len(history) != 4 {
		t.Errorf("expected 4 history entries, got %d", len(history))
	}
}

func TestMessagesAndNotifications(t *testing.T) {
	s := newTestServer(t)
	ticket := s.createTicket(t)
	path := "/tickets/" + ticket.ID + "/messages"

	if status, env := s.do(t, http.MethodPost, path, "agent-1", `{"body":"Refund issued"}`); status != http.StatusCreated {
		t.Fatalf("post: expected 201, got %d %+v", status, env.Error)
	}
	if status, _ := s.do(t, http.MethodPost, path, "cust-1", `{"body":"   "}`); status != http.StatusBadRequest {
		t.Errorf("blank body: expected 400, got %d", status)
	}

	status, env := s.do(t, http.MethodGet, "/notifications?unread=true", "cust-1", "")
	if status != http.StatusOK {
		t.Fatalf("feed: expected 200, got %d", status)
	}
	var feed struct {
		Items []struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		} `json:"items"`
		Unread int `json:"unread"`
	}
	if err := json.Unmarshal(env.Data, &feed); err != nil {
		t.Fatalf("decode feed: %v", err)
	}
	if len(feed.Items) != 1 || feed.Items[0].Type != "MESSAGE" || feed.Unread != 1 {
		t.Fatalf("unexpected feed %+v", feed)
	}

	if status, _ := s.do(t, http.MethodPost, "/notifications/"+feed.Items[0].ID+"/read", "cust-2", ""); status != http.StatusNotFound {
		t.Errorf("foreign mark read: expected 404, got %d", status)
	}
	if status, _ := s.do(t, http.MethodPost, "/notifications/"+feed.Items[0].ID+"/read", "cust-1", ""); status != http.StatusNoContent {
		t.Errorf("mark read: expected 204, got %d", status)
	}
}

func TestSLAEndpoints_RoleGated(t *testing.T) {
	s := newTestServer(t)
	cases := []struct {
		method, path, user string
		status             int
	}{
		{http.MethodGet, "/sla/stats", "cust-1", http.StatusForbidden},
		{http.MethodGet, "/sla/stats", "agent-1", http.StatusOK},
		{http.MethodGet, "/sla/policies", "cust-1", http.StatusForbidden},
		{http.MethodGet, "/sla/policies", "agent-1", http.StatusOK},
		{http.MethodPost, "/sla/sweeps/breach", "agent-1", http.StatusForbidden},
		{http.MethodPost, "/sla/sweeps/breach", "admin-1", http.StatusOK},
		{http.MethodPost, "/sla/sweeps/warning", "admin-1", http.StatusOK},
		{http.MethodPost, "/sla/sweeps/hourly", "admin-1", http.StatusNotFound},
	}
	for _, tc := range cases {
		if status, env := s.do(t, tc.method, tc.path, tc.user, ""); status != tc.status {
			t.Errorf("%s %s as %s: expected %d, got %d %+v", tc.method, tc.path, tc.user, tc.status, status, env.Error)
		}
	}
}

func TestSLAPolicies_ListsStoredRowsAndDefaults(t *testing.T) {
	s := newTestServer(t)
	if err := s.store.SLAConfigs().Upsert(context.Background(), &domain.SLAConfig{
		Priority:             domain.TicketPriorityUrgent,
		FirstResponseMinutes: 10,
		ResolutionMinutes:    120,
	}); err != nil {
		t.Fatalf("seed policy: %v", err)
	}

	status, env := s.do(t, http.MethodGet, "/sla/policies", "agent-1", "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	var listing struct {
		Configured []struct {
			Priority          string  `json:"priority"`
			IssueType         *string `json:"issueType"`
			ResolutionMinutes int     `json:"resolutionMinutes"`
		} `json:"configured"`
		Defaults map[string]struct {
			ResolutionMinutes int `json:"resolutionMinutes"`
		} `json:"defaults"`
	}
	if err := json.Unmarshal(env.Data, &listing); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listing.Configured) != 1 || listing.Configured[0].Priority != "URGENT" ||
		listing.Configured[0].IssueType != nil || listing.Configured[0].ResolutionMinutes != 120 {
		t.Errorf("unexpected configured rows %+v", listing.Configured)
	}
	if listing.Defaults["LOW"].ResolutionMinutes != 2880 {
		t.Errorf("expected built-in LOW budget, got %+v", listing.Defaults)
	}
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	s := newTestServer(t)
	if status, _ := s.do(t, http.MethodGet, "/ws", "agent-1", ""); status != http.StatusUpgradeRequired {
		t.Errorf("expected 426 for a plain GET, got %d", status)
	}
}
