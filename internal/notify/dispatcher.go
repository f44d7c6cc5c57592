// Package notify turns notification intents into persisted records, pushes
// them live and optionally relays SLA alerts to Slack.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/clock"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/domain"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/events"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/observability"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/repository"
	"github.com/helpdesk-labs/ticket-lifecycle/pkg/util/errorutil"
)

// Relay forwards a persisted notification to an outbound channel.
type Relay interface {
	Relay(ctx context.Context, n domain.Notification, payload Payload) error
}

// DispatcherDependencies groups the collaborators of a Dispatcher. Only
// Notifications is required.
type DispatcherDependencies struct {
	Notifications repository.NotificationRepository
	Publisher     events.Publisher
	Relay         Relay
	Clock         clock.Clock
	Logger        *zap.Logger
	Metrics       *observability.Metrics
	RelayTimeout  time.Duration
}

// Dispatcher persists first; live push and relays are best effort.
type Dispatcher struct {
	notifications repository.NotificationRepository
	publisher     events.Publisher
	relay         Relay
	clock         clock.Clock
	logger        *zap.Logger
	metrics       *observability.Metrics
	relayTimeout  time.Duration
	relays        sync.WaitGroup
}

func NewDispatcher(deps DispatcherDependencies) *Dispatcher {
	d := &Dispatcher{
		notifications: deps.Notifications,
		publisher:     deps.Publisher,
		relay:         deps.Relay,
		clock:         deps.Clock,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
		relayTimeout:  deps.RelayTimeout,
	}
	if d.clock == nil {
		d.clock = clock.Real()
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.relayTimeout <= 0 {
		d.relayTimeout = 10 * time.Second
	}
	return d
}

// Dispatch persists one notification and pushes it to the recipient's scope.
// A persistence failure is returned as a transient error; push failures are not.
func (d *Dispatcher) Dispatch(ctx context.Context, intent domain.NotificationIntent) (*domain.Notification, error) {
	record, payload, err := d.persist(ctx, intent)
	if err != nil {
		return nil, err
	}
	d.publish(record)
	d.relayAsync(ctx, *record, payload)
	return record, nil
}

// DispatchAll dispatches every intent, continuing past failures. Relays fire
// once per (type, ticket) pair rather than once per recipient.
func (d *Dispatcher) DispatchAll(ctx context.Context, intents []domain.NotificationIntent) ([]domain.Notification, error) {
	type relayKey struct {
		kind     domain.NotificationType
		ticketID string
	}
	relayed := make(map[relayKey]bool)
	created := make([]domain.Notification, 0, len(intents))
	var errs []error

	for _, intent := range intents {
		record, payload, err := d.persist(ctx, intent)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		created = append(created, *record)
		d.publish(record)

		key := relayKey{kind: record.Type}
		if record.TicketID != nil {
			key.ticketID = *record.TicketID
		}
		if !relayed[key] {
			relayed[key] = true
			d.relayAsync(ctx, *record, payload)
		}
	}
	return created, errors.Join(errs...)
}

// Wait blocks until in-flight relays finish.
func (d *Dispatcher) Wait() {
	d.relays.Wait()
}

func (d *Dispatcher) persist(ctx context.Context, intent domain.NotificationIntent) (*domain.Notification, Payload, error) {
	if intent.Recipient == "" {
		return nil, nil, errorutil.NewValidationError("notification recipient required", nil)
	}
	payload, err := BuildPayload(intent, d.clock.Now())
	if err != nil {
		return nil, nil, errorutil.NewInternalError(err)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, errorutil.NewInternalError(fmt.Errorf("encode payload: %w", err))
	}

	record := &domain.Notification{
		UserID:    intent.Recipient,
		Type:      intent.Type,
		MessageID: intent.MessageID,
		Payload:   raw,
	}
	if intent.Ticket != nil {
		ticketID := intent.Ticket.ID
		record.TicketID = &ticketID
	}
	if err := d.notifications.Create(ctx, record); err != nil {
		d.logger.Error("persist notification failed",
			zap.String("user_id", intent.Recipient),
			zap.String("type", string(intent.Type)),
			zap.Error(err))
		return nil, nil, errorutil.NewTransient(err)
	}
	d.metrics.RecordNotification(string(record.Type))
	return record, payload, nil
}

func (d *Dispatcher) publish(record *domain.Notification) {
	if d.publisher == nil {
		return
	}
	d.publisher.Publish(events.Event{
		Name:  events.EventNotification,
		Scope: events.UserScope(record.UserID),
		Data:  *record,
	})
}

func (d *Dispatcher) relayAsync(ctx context.Context, record domain.Notification, payload Payload) {
	if d.relay == nil {
		return
	}
	relayCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.relayTimeout)
	d.relays.Add(1)
	go func() {
		defer d.relays.Done()
		defer cancel()
		if err := d.relay.Relay(relayCtx, record, payload); err != nil {
			d.metrics.RecordRelayFailure()
			d.logger.Warn("notification relay failed",
				zap.String("notification_id", record.ID),
				zap.String("type", string(record.Type)),
				zap.Error(err))
		}
	}()
}
