// Package memory is an in-process implementation of the repository interfaces.
// It backs the service when no Postgres DSN is configured and serves as the
// persistence collaborator in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/clock"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/domain"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/repository"
)

// Store holds all engine state behind one mutex, which makes every method a
// single atomic transaction.
type Store struct {
	mu            sync.Mutex
	clock         clock.Clock
	nextNumber    int64
	tickets       map[string]*domain.Ticket
	history       []domain.TicketHistoryEntry
	lastHistoryAt time.Time
	notifications []*domain.Notification
	slaConfigs    map[slaKey]domain.SLAConfig
	users         map[string]domain.User
	messages      []domain.TicketMessage
}

type slaKey struct {
	priority  domain.TicketPriority
	issueType domain.IssueType
}

// NewStore returns an empty store. A nil clock uses wall time.
func NewStore(c clock.Clock) *Store {
	if c == nil {
		c = clock.Real()
	}
	return &Store{
		clock:      c,
		tickets:    make(map[string]*domain.Ticket),
		slaConfigs: make(map[slaKey]domain.SLAConfig),
		users:      make(map[string]domain.User),
	}
}

func (s *Store) Tickets() repository.TicketRepository             { return ticketStore{s} }
func (s *Store) History() repository.TicketHistoryRepository      { return historyStore{s} }
func (s *Store) Notifications() repository.NotificationRepository { return notificationStore{s} }
func (s *Store) SLAConfigs() repository.SLAConfigRepository       { return slaConfigStore{s} }
func (s *Store) Users() repository.UserRepository                 { return userStore{s} }
func (s *Store) Messages() repository.TicketMessageRepository     { return messageStore{s} }

// PutUser registers or replaces an account.
func (s *Store) PutUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.clock.Now()
		user.UpdatedAt = user.CreatedAt
	}
	s.users[user.ID] = user
}

// PutTicket stores a ticket snapshot as-is, bypassing history. Intended for fixtures.
func (s *Store) PutTicket(ticket *domain.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := ticket.Clone()
	if cp.ID == "" {
		cp.ID = uuid.NewString()
		ticket.ID = cp.ID
	}
	if cp.Number == 0 {
		s.nextNumber++
		cp.Number = s.nextNumber
		ticket.Number = cp.Number
	} else if cp.Number > s.nextNumber {
		s.nextNumber = cp.Number
	}
	if cp.Version == 0 {
		cp.Version = 1
		ticket.Version = 1
	}
	s.tickets[cp.ID] = cp
}

// appendHistoryLocked stamps and stores entry. Timestamps are strictly increasing.
func (s *Store) appendHistoryLocked(entry *domain.TicketHistoryEntry) {
	now := s.clock.Now()
	if !now.After(s.lastHistoryAt) {
		now = s.lastHistoryAt.Add(time.Microsecond)
	}
	s.lastHistoryAt = now
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = now
	stored := *entry
	stored.Metadata = cloneMap(entry.Metadata)
	s.history = append(s.history, stored)
}

type ticketStore struct{ s *Store }

func (t ticketStore) Create(_ context.Context, ticket *domain.Ticket, created *domain.TicketHistoryEntry) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	ticket.ID = uuid.NewString()
	s.nextNumber++
	ticket.Number = s.nextNumber
	ticket.Version = 1
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = now
	s.tickets[ticket.ID] = ticket.Clone()

	if created != nil {
		created.TicketID = ticket.ID
		s.appendHistoryLocked(created)
	}
	return nil
}

func (t ticketStore) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return stored.Clone(), nil
}

func (t ticketStore) ApplyUpdate(_ context.Context, ticket *domain.Ticket, expectedVersion int64, history []*domain.TicketHistoryEntry) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tickets[ticket.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	next := ticket.Clone()
	next.SLABreached = stored.SLABreached || ticket.SLABreached
	next.Number = stored.Number
	next.CreatedAt = stored.CreatedAt
	next.Version = stored.Version + 1
	next.UpdatedAt = s.clock.Now()
	s.tickets[ticket.ID] = next

	ticket.Version = next.Version
	ticket.UpdatedAt = next.UpdatedAt
	ticket.SLABreached = next.SLABreached
	for _, entry := range history {
		entry.TicketID = ticket.ID
		s.appendHistoryLocked(entry)
	}
	return nil
}

func (t ticketStore) ListOpenWithDeadlineBefore(_ context.Context, ts time.Time) ([]domain.Ticket, error) {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.Ticket
	for _, ticket := range s.tickets {
		if ticket.SLABreached || ticket.Status.IsTerminal() || ticket.SLADeadline == nil {
			continue
		}
		if ticket.SLADeadline.Before(ts) {
			result = append(result, *ticket.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SLADeadline.Before(*result[j].SLADeadline)
	})
	return result, nil
}

func (t ticketStore) MarkBreached(_ context.Context, id string, asOf time.Time, entry *domain.TicketHistoryEntry) (*domain.Ticket, bool, error) {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tickets[id]
	if !ok || stored.SLABreached || stored.Status.IsTerminal() {
		return nil, false, nil
	}
	if stored.SLADeadline == nil || !stored.SLADeadline.Before(asOf) {
		return nil, false, nil
	}
	stored.SLABreached = true
	stored.Version++
	stored.UpdatedAt = s.clock.Now()
	if entry != nil {
		entry.TicketID = id
		s.appendHistoryLocked(entry)
	}
	return stored.Clone(), true, nil
}

type historyStore struct{ s *Store }

func (h historyStore) Append(_ context.Context, entry *domain.TicketHistoryEntry) error {
	s := h.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[entry.TicketID]; !ok {
		return repository.ErrNotFound
	}
	s.appendHistoryLocked(entry)
	return nil
}

func (h historyStore) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistoryEntry, error) {
	s := h.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.TicketHistoryEntry
	for _, entry := range s.history {
		if entry.TicketID == ticketID {
			entry.Metadata = cloneMap(entry.Metadata)
			result = append(result, entry)
		}
	}
	return result, nil
}

type notificationStore struct{ s *Store }

func (n notificationStore) Create(_ context.Context, record *domain.Notification) error {
	s := n.s
	s.mu.Lock()
	defer s.mu.Unlock()
	record.ID = uuid.NewString()
	record.IsRead = false
	record.CreatedAt = s.clock.Now()
	cp := *record
	cp.Payload = append([]byte(nil), record.Payload...)
	s.notifications = append(s.notifications, &cp)
	return nil
}

func (n notificationStore) ListByUser(_ context.Context, userID string, filter repository.NotificationFilter) ([]domain.Notification, error) {
	s := n.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []domain.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		record := s.notifications[i]
		if record.UserID != userID || (filter.UnreadOnly && record.IsRead) {
			continue
		}
		matched = append(matched, *record)
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	} else if limit > 200 {
		limit = 200
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (n notificationStore) CountUnread(_ context.Context, userID string) (int, error) {
	s := n.s
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, record := range s.notifications {
		if record.UserID == userID && !record.IsRead {
			count++
		}
	}
	return count, nil
}

func (n notificationStore) MarkRead(_ context.Context, userID, id string) error {
	s := n.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.notifications {
		if record.ID == id && record.UserID == userID {
			record.IsRead = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (n notificationStore) MarkAllRead(_ context.Context, userID string) (int, error) {
	s := n.s
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, record := range s.notifications {
		if record.UserID == userID && !record.IsRead {
			record.IsRead = true
			count++
		}
	}
	return count, nil
}

type slaConfigStore struct{ s *Store }

func keyFor(priority domain.TicketPriority, issueType *domain.IssueType) slaKey {
	k := slaKey{priority: priority}
	if issueType != nil {
		k.issueType = *issueType
	}
	return k
}

func (c slaConfigStore) Get(_ context.Context, priority domain.TicketPriority, issueType *domain.IssueType) (*domain.SLAConfig, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.slaConfigs[keyFor(priority, issueType)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &cfg, nil
}

func (c slaConfigStore) List(_ context.Context) ([]domain.SLAConfig, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]domain.SLAConfig, 0, len(s.slaConfigs))
	for _, cfg := range s.slaConfigs {
		result = append(result, cfg)
	}
	sort.Slice(result, func(i, j int) bool {
		ki, kj := keyFor(result[i].Priority, result[i].IssueType), keyFor(result[j].Priority, result[j].IssueType)
		if ki.priority != kj.priority {
			return ki.priority < kj.priority
		}
		return ki.issueType < kj.issueType
	})
	return result, nil
}

func (c slaConfigStore) Upsert(_ context.Context, cfg *domain.SLAConfig) error {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyFor(cfg.Priority, cfg.IssueType)
	if existing, ok := s.slaConfigs[k]; ok {
		cfg.ID = existing.ID
	} else if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	s.slaConfigs[k] = *cfg
	return nil
}

type messageStore struct{ s *Store }

func (m messageStore) Create(_ context.Context, msg *domain.TicketMessage) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[msg.TicketID]; !ok {
		return repository.ErrNotFound
	}
	msg.ID = uuid.NewString()
	msg.CreatedAt = s.clock.Now()
	s.messages = append(s.messages, *msg)
	return nil
}

func (m messageStore) ListByTicket(_ context.Context, ticketID string, includeInternal bool) ([]domain.TicketMessage, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.TicketMessage
	for _, msg := range s.messages {
		if msg.TicketID != ticketID || (msg.Internal && !includeInternal) {
			continue
		}
		result = append(result, msg)
	}
	return result, nil
}

type userStore struct{ s *Store }

func (u userStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (u userStore) ListIDsByRoles(_ context.Context, roles ...domain.Role) ([]string, error) {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, user := range s.users {
		if !user.Active {
			continue
		}
		for _, role := range roles {
			if user.Role == role {
				ids = append(ids, user.ID)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
