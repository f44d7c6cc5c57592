package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/monitor"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/sla"
	apperrors "github.com/helpdesk-labs/ticket-lifecycle/pkg/util/errorutil"
)

// SweepMonitor is the part of the SLA monitor exposed over HTTP.
type SweepMonitor interface {
	Stats() monitor.Stats
	Run(ctx context.Context, kind monitor.Kind) (monitor.SweepResult, error)
}

// PolicyLister reports the SLA budgets in force.
type PolicyLister interface {
	Policies(ctx context.Context) (*sla.PolicyListing, error)
}

// SLAHandler exposes sweep statistics, manual sweep triggers and policies.
type SLAHandler struct {
	monitor  SweepMonitor
	policies PolicyLister
}

func NewSLAHandler(m SweepMonitor, policies PolicyLister) *SLAHandler {
	return &SLAHandler{monitor: m, policies: policies}
}

// Policies GET /sla/policies.
func (h *SLAHandler) Policies(c *fiber.Ctx) error {
	listing, err := h.policies.Policies(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": listing})
}

// Stats GET /sla/stats.
func (h *SLAHandler) Stats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.monitor.Stats()})
}

// RunSweep POST /sla/sweeps/:kind. A sweep that is already running yields 409.
func (h *SLAHandler) RunSweep(c *fiber.Ctx) error {
	kind, ok := monitor.ParseKind(c.Params("kind"))
	if !ok {
		return apperrors.NewNotFound("sweep kind", map[string]any{"kind": c.Params("kind")})
	}
	result, err := h.monitor.Run(c.UserContext(), kind)
	if err != nil {
		if errors.Is(err, monitor.ErrSweepSkipped) {
			return apperrors.NewDomainError(apperrors.KindConflict, "SWEEP_RUNNING",
				"a sweep of this kind is already running", fiber.StatusConflict, map[string]any{"kind": string(kind)})
		}
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}
