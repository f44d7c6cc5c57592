package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/domain"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/events"
	apperrors "github.com/helpdesk-labs/ticket-lifecycle/pkg/util/errorutil"
)

const (
	sessionActorKey = "ws_actor"
	writeWait       = 10 * time.Second
	joinTimeout     = 5 * time.Second
)

// TicketViewer decides whether an actor may watch a ticket.
type TicketViewer interface {
	GetTicket(ctx context.Context, ticketID string, actor domain.Actor) (*domain.Ticket, error)
}

// RealtimeHandler bridges websocket sessions onto the event broadcaster. Each
// session is subscribed to its user scope and may join ticket scopes it can see.
type RealtimeHandler struct {
	hub     *events.Broadcaster
	tickets TicketViewer
	logger  *zap.Logger
}

func NewRealtimeHandler(hub *events.Broadcaster, tickets TicketViewer, logger *zap.Logger) *RealtimeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeHandler{hub: hub, tickets: tickets, logger: logger}
}

// Upgrade GET /ws guard: only authenticated websocket upgrades pass.
func (h *RealtimeHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	c.Locals(sessionActorKey, actor)
	return c.Next()
}

// Serve returns the websocket endpoint.
func (h *RealtimeHandler) Serve() fiber.Handler {
	return websocket.New(h.session)
}

type inboundFrame struct {
	Event string              `json:"event"`
	Data  events.ScopeRequest `json:"data"`
}

type errorFrame struct {
	Event string         `json:"event"`
	Data  errorFrameData `json:"data"`
}

type errorFrameData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *RealtimeHandler) session(conn *websocket.Conn) {
	actor, ok := conn.Locals(sessionActorKey).(domain.Actor)
	if !ok {
		_ = conn.Close()
		return
	}
	sub := h.hub.Connect(actor.ID)
	defer h.hub.Disconnect(sub)

	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(v)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range sub.Events() {
			if err := write(ev); err != nil {
				_ = conn.Close()
				return
			}
		}
	}()

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket closed", zap.String("user_id", actor.ID), zap.Error(err))
			}
			break
		}
		if err := h.handleFrame(sub, actor, frame, write); err != nil {
			break
		}
	}
	h.hub.Disconnect(sub)
	<-done
}

// handleFrame applies one client operation. Only write failures are returned;
// rejected operations are answered with an error frame.
func (h *RealtimeHandler) handleFrame(sub *events.Subscriber, actor domain.Actor, frame inboundFrame, write func(any) error) error {
	switch frame.Event {
	case events.OpJoinTicket:
		if frame.Data.TicketID == "" {
			return write(newErrorFrame(apperrors.NewValidationError("ticketId is required", nil)))
		}
		ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
		defer cancel()
		if _, err := h.tickets.GetTicket(ctx, frame.Data.TicketID, actor); err != nil {
			return write(newErrorFrame(err))
		}
		h.hub.Join(sub, events.TicketScope(frame.Data.TicketID))
		return nil
	case events.OpLeaveTicket:
		h.hub.Leave(sub, events.TicketScope(frame.Data.TicketID))
		return nil
	}
	return write(errorFrame{Event: "error", Data: errorFrameData{Code: "UNKNOWN_EVENT", Message: "unsupported event " + frame.Event}})
}

func newErrorFrame(err error) errorFrame {
	domainErr := apperrors.ToDomainError(err)
	return errorFrame{Event: "error", Data: errorFrameData{Code: domainErr.Code, Message: domainErr.Message}}
}
