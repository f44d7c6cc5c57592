// Package sla resolves SLA time budgets and derives ticket deadlines from them.
package sla

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/domain"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/repository"
	"github.com/helpdesk-labs/ticket-lifecycle/pkg/util/errorutil"
)

// PolicyTable maps a priority to its fallback policy.
type PolicyTable map[domain.TicketPriority]domain.SLAPolicy

// DefaultPolicies is the built-in table used when no configured row matches.
func DefaultPolicies() PolicyTable {
	return PolicyTable{
		domain.TicketPriorityUrgent: {FirstResponseMinutes: 15, ResolutionMinutes: 240},
		domain.TicketPriorityHigh:   {FirstResponseMinutes: 60, ResolutionMinutes: 480},
		domain.TicketPriorityMedium: {FirstResponseMinutes: 240, ResolutionMinutes: 1440},
		domain.TicketPriorityLow:    {FirstResponseMinutes: 480, ResolutionMinutes: 2880},
	}
}

// Clone returns an independent copy of the table.
func (t PolicyTable) Clone() PolicyTable {
	cp := make(PolicyTable, len(t))
	for k, v := range t {
		cp[k] = v
	}
	return cp
}

// Resolver looks up the policy for a (priority, issueType) pair. The lookup
// order is exact row, then priority-wide row, then the default table.
type Resolver struct {
	configs  repository.SLAConfigRepository
	defaults PolicyTable
	logger   *zap.Logger
}

// NewResolver builds a resolver. A nil defaults table uses DefaultPolicies.
func NewResolver(configs repository.SLAConfigRepository, defaults PolicyTable, logger *zap.Logger) *Resolver {
	if defaults == nil {
		defaults = DefaultPolicies()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{configs: configs, defaults: defaults.Clone(), logger: logger}
}

// Resolve returns the time budget for the pair.
func (r *Resolver) Resolve(ctx context.Context, priority domain.TicketPriority, issueType domain.IssueType) (domain.SLAPolicy, error) {
	if r.configs != nil {
		if issueType != "" {
			if policy, ok, err := r.lookup(ctx, priority, &issueType); err != nil || ok {
				return policy, err
			}
		}
		if policy, ok, err := r.lookup(ctx, priority, nil); err != nil || ok {
			return policy, err
		}
	}

	policy, ok := r.defaults[priority]
	if !ok {
		return domain.SLAPolicy{}, errorutil.NewNotFound("sla policy", map[string]any{"priority": priority})
	}
	return policy, nil
}

func (r *Resolver) lookup(ctx context.Context, priority domain.TicketPriority, issueType *domain.IssueType) (domain.SLAPolicy, bool, error) {
	cfg, err := r.configs.Get(ctx, priority, issueType)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.SLAPolicy{}, false, nil
	}
	if err != nil {
		r.logger.Error("sla config lookup failed", zap.String("priority", string(priority)), zap.Error(err))
		return domain.SLAPolicy{}, false, errorutil.NewTransient(err)
	}
	return domain.SLAPolicy{
		FirstResponseMinutes: cfg.FirstResponseMinutes,
		ResolutionMinutes:    cfg.ResolutionMinutes,
	}, true, nil
}

// PolicyListing is the effective configuration: stored rows take precedence
// over the fallback table.
type PolicyListing struct {
	Configured []domain.SLAConfig `json:"configured"`
	Defaults   PolicyTable        `json:"defaults"`
}

// Policies lists the stored rows and the fallback table.
func (r *Resolver) Policies(ctx context.Context) (*PolicyListing, error) {
	listing := &PolicyListing{Configured: []domain.SLAConfig{}, Defaults: r.defaults.Clone()}
	if r.configs == nil {
		return listing, nil
	}
	rows, err := r.configs.List(ctx)
	if err != nil {
		r.logger.Error("sla config listing failed", zap.Error(err))
		return nil, errorutil.NewTransient(err)
	}
	if rows != nil {
		listing.Configured = rows
	}
	return listing, nil
}

// PolicyResolver is the lookup the Calculator depends on.
type PolicyResolver interface {
	Resolve(ctx context.Context, priority domain.TicketPriority, issueType domain.IssueType) (domain.SLAPolicy, error)
}

// Calculator turns a resolved policy into an absolute resolution deadline.
type Calculator struct {
	resolver PolicyResolver
}

func NewCalculator(resolver PolicyResolver) *Calculator {
	return &Calculator{resolver: resolver}
}

// Deadline is createdAt plus the resolution budget. It is always anchored to
// the ticket's creation time, never to the time of the call.
func (c *Calculator) Deadline(ctx context.Context, createdAt time.Time, priority domain.TicketPriority, issueType domain.IssueType) (time.Time, error) {
	policy, err := c.resolver.Resolve(ctx, priority, issueType)
	if err != nil {
		return time.Time{}, err
	}
	return createdAt.Add(time.Duration(policy.ResolutionMinutes) * time.Minute), nil
}
