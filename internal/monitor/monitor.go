// Package monitor runs the periodic SLA sweeps: a warning sweep for tickets
// close to their deadline and a breach sweep that flags overdue tickets
// exactly once.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/clock"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/domain"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/lifecycle"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/observability"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/repository"
)

// ErrSweepSkipped is returned when a run was not started because another run
// of the same kind holds the guard or the lease.
var ErrSweepSkipped = errors.New("monitor: sweep already running")

// Notifier is the dispatch step the sweeps hand their intents to.
type Notifier interface {
	DispatchAll(ctx context.Context, intents []domain.NotificationIntent) ([]domain.Notification, error)
}

// Dependencies groups what a Monitor needs. Tickets, Users and Notifier are required.
type Dependencies struct {
	Tickets       repository.TicketRepository
	Users         repository.UserRepository
	Notifier      Notifier
	Clock         clock.Clock
	Logger        *zap.Logger
	Metrics       *observability.Metrics
	WarningWindow time.Duration
	Concurrency   int
	Lease         Lease
	LeaseTTL      time.Duration
}

// Monitor owns both sweeps and their statistics.
type Monitor struct {
	tickets       repository.TicketRepository
	users         repository.UserRepository
	notifier      Notifier
	clock         clock.Clock
	logger        *zap.Logger
	metrics       *observability.Metrics
	warningWindow time.Duration
	concurrency   int
	lease         Lease
	leaseTTL      time.Duration

	warning sweepState
	breach  sweepState
}

func New(deps Dependencies) *Monitor {
	m := &Monitor{
		tickets:       deps.Tickets,
		users:         deps.Users,
		notifier:      deps.Notifier,
		clock:         deps.Clock,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
		warningWindow: deps.WarningWindow,
		concurrency:   deps.Concurrency,
		lease:         deps.Lease,
		leaseTTL:      deps.LeaseTTL,
	}
	if m.clock == nil {
		m.clock = clock.Real()
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.warningWindow <= 0 {
		m.warningWindow = time.Hour
	}
	if m.concurrency <= 0 {
		m.concurrency = 1
	}
	if m.leaseTTL <= 0 {
		m.leaseTTL = 5 * time.Minute
	}
	return m
}

// Stats returns a copy of the sweep statistics.
func (m *Monitor) Stats() Stats {
	return Stats{Warning: m.warning.snapshot(), Breach: m.breach.snapshot()}
}

// Run executes one sweep of the given kind.
func (m *Monitor) Run(ctx context.Context, kind Kind) (SweepResult, error) {
	switch kind {
	case KindWarning:
		return m.RunWarningSweep(ctx)
	case KindBreach:
		return m.RunBreachSweep(ctx)
	}
	return SweepResult{}, fmt.Errorf("monitor: unknown sweep kind %q", kind)
}

// RunWarningSweep notifies assignees of open tickets whose deadline falls
// within the warning window. Breached tickets are never warned.
func (m *Monitor) RunWarningSweep(ctx context.Context) (SweepResult, error) {
	return m.sweep(ctx, KindWarning, &m.warning, m.warnTicket)
}

// RunBreachSweep flags overdue open tickets and notifies the assignee and the
// breach audience. Each ticket is flagged and notified at most once.
func (m *Monitor) RunBreachSweep(ctx context.Context) (SweepResult, error) {
	return m.sweep(ctx, KindBreach, &m.breach, m.breachTicket)
}

type ticketFunc func(ctx context.Context, ticket domain.Ticket, now time.Time, audience *breachAudience) (outcome, error)

type outcome int

const (
	outcomeNone outcome = iota
	outcomeWarned
	outcomeBreached
)

func (m *Monitor) sweep(ctx context.Context, kind Kind, state *sweepState, process ticketFunc) (result SweepResult, err error) {
	start := m.clock.Now()
	log := m.logger.With(zap.String("sweep", string(kind)))

	if !state.tryStart(start) {
		log.Info("sla sweep skipped, previous run still in progress")
		m.metrics.RecordSweep(string(kind), "skipped", 0)
		return SweepResult{Kind: kind}, ErrSweepSkipped
	}

	if m.lease != nil {
		release, ok, leaseErr := m.lease.Acquire(ctx, "sla-sweep:"+string(kind), m.leaseTTL)
		if leaseErr != nil {
			state.fail()
			m.metrics.RecordSweep(string(kind), "failed", 0)
			log.Error("sla sweep lease failed", zap.Error(leaseErr))
			return SweepResult{Kind: kind}, fmt.Errorf("acquire sweep lease: %w", leaseErr)
		}
		if !ok {
			state.abort(true)
			m.metrics.RecordSweep(string(kind), "skipped", 0)
			log.Info("sla sweep skipped, lease held by another instance")
			return SweepResult{Kind: kind}, ErrSweepSkipped
		}
		defer func() {
			if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
				log.Warn("sla sweep lease release failed", zap.Error(relErr))
			}
		}()
	}

	defer func() {
		if r := recover(); r != nil {
			state.fail()
			m.metrics.RecordSweep(string(kind), "failed", 0)
			log.Error("sla sweep panicked", zap.Any("panic", r))
			result = SweepResult{Kind: kind, StartedAt: start}
			err = fmt.Errorf("monitor: %s sweep panicked: %v", kind, r)
		}
	}()

	horizon := start
	if kind == KindWarning {
		horizon = start.Add(m.warningWindow)
	}
	candidates, err := m.tickets.ListOpenWithDeadlineBefore(ctx, horizon)
	if err != nil {
		state.fail()
		m.metrics.RecordSweep(string(kind), "failed", 0)
		log.Error("sla sweep listing failed", zap.Error(err))
		return SweepResult{Kind: kind, StartedAt: start}, fmt.Errorf("list sweep candidates: %w", err)
	}

	var (
		warned, breached, errored atomic.Int64
		audience                  = &breachAudience{users: m.users}
		g                         errgroup.Group
	)
	g.SetLimit(m.concurrency)
	// Tickets already started run to completion; cancellation only stops new ones.
	workCtx := context.WithoutCancel(ctx)
	for _, ticket := range candidates {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					errored.Add(1)
					log.Error("sla sweep ticket panicked", zap.String("ticket_id", ticket.ID), zap.Any("panic", r))
				}
			}()
			out, procErr := process(workCtx, ticket, start, audience)
			if procErr != nil {
				errored.Add(1)
				log.Error("sla sweep ticket failed", zap.String("ticket_id", ticket.ID), zap.Error(procErr))
			}
			switch out {
			case outcomeWarned:
				warned.Add(1)
			case outcomeBreached:
				breached.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	result = SweepResult{
		Kind:       kind,
		StartedAt:  start,
		FinishedAt: m.clock.Now(),
		Candidates: len(candidates),
		Warned:     int(warned.Load()),
		Breached:   int(breached.Load()),
		Errored:    int(errored.Load()),
	}
	state.finish(result)

	duration := result.FinishedAt.Sub(start)
	m.metrics.RecordSweep(string(kind), "completed", duration)
	m.metrics.RecordSweepTickets(string(kind), "warned", result.Warned)
	m.metrics.RecordSweepTickets(string(kind), "breached", result.Breached)
	m.metrics.RecordSweepTickets(string(kind), "errored", result.Errored)
	log.Info("sla sweep completed",
		zap.Int("candidates", result.Candidates),
		zap.Int("warned", result.Warned),
		zap.Int("breached", result.Breached),
		zap.Int("errored", result.Errored),
		zap.Duration("duration", duration))
	return result, nil
}

func (m *Monitor) warnTicket(ctx context.Context, candidate domain.Ticket, now time.Time, _ *breachAudience) (outcome, error) {
	// Re-read so a breach flagged since the listing is never warned about.
	ticket, err := m.tickets.GetByID(ctx, candidate.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return outcomeNone, nil
	}
	if err != nil {
		return outcomeNone, fmt.Errorf("reload ticket: %w", err)
	}
	if ticket.SLABreached || ticket.Status.IsTerminal() || ticket.SLADeadline == nil || ticket.AssignedToID == nil {
		return outcomeNone, nil
	}
	deadline := *ticket.SLADeadline
	if !deadline.After(now) || !deadline.Before(now.Add(m.warningWindow)) {
		return outcomeNone, nil
	}

	_, err = m.notifier.DispatchAll(ctx, []domain.NotificationIntent{{
		Recipient: *ticket.AssignedToID,
		Type:      domain.NotificationSLAWarning,
		Ticket:    ticket,
		Deadline:  &deadline,
	}})
	if err != nil {
		return outcomeNone, err
	}
	return outcomeWarned, nil
}

func (m *Monitor) breachTicket(ctx context.Context, candidate domain.Ticket, now time.Time, audience *breachAudience) (outcome, error) {
	field := domain.FieldSLABreached
	oldValue, newValue := "false", "true"
	entry := &domain.TicketHistoryEntry{
		Action:   domain.HistoryActionUpdated,
		Field:    &field,
		OldValue: &oldValue,
		NewValue: &newValue,
		Metadata: map[string]any{"source": "sla_monitor", "detectedAt": now.UTC().Format(time.RFC3339)},
	}
	if candidate.SLADeadline != nil {
		entry.Metadata["deadline"] = candidate.SLADeadline.UTC().Format(time.RFC3339)
	}

	ticket, flipped, err := m.tickets.MarkBreached(ctx, candidate.ID, now, entry)
	if err != nil {
		return outcomeNone, fmt.Errorf("mark breached: %w", err)
	}
	if !flipped {
		return outcomeNone, nil
	}

	// The flag is already committed, so a failed audience lookup still notifies the assignee.
	recipients, audienceErr := audience.recipients(ctx, ticket)
	deadline := now
	if ticket.SLADeadline != nil {
		deadline = *ticket.SLADeadline
	}
	intents := make([]domain.NotificationIntent, 0, len(recipients))
	for _, recipient := range recipients {
		intents = append(intents, domain.NotificationIntent{
			Recipient: recipient,
			Type:      domain.NotificationSLABreach,
			Ticket:    ticket,
			Deadline:  &deadline,
		})
	}
	if _, err := m.notifier.DispatchAll(ctx, intents); err != nil {
		return outcomeBreached, errors.Join(audienceErr, err)
	}
	return outcomeBreached, audienceErr
}

// breachAudience loads the supervisor/admin recipients once per sweep.
type breachAudience struct {
	users repository.UserRepository
	once  atomic.Pointer[[]string]
}

func (a *breachAudience) recipients(ctx context.Context, ticket *domain.Ticket) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	if ticket.AssignedToID != nil {
		seen[*ticket.AssignedToID] = true
		out = append(out, *ticket.AssignedToID)
	}

	staff := a.once.Load()
	if staff == nil {
		ids, err := a.users.ListIDsByRoles(ctx, lifecycle.RolesWith(lifecycle.PermReceiveBreachAlerts)...)
		if err != nil {
			return out, fmt.Errorf("load breach audience: %w", err)
		}
		a.once.CompareAndSwap(nil, &ids)
		staff = a.once.Load()
	}
	for _, id := range *staff {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}
