package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/domain"
)

type slaConfigRepository struct {
	pool *pgxpool.Pool
}

// NewSLAConfigRepository builds the pgx-backed SLA policy store.
func NewSLAConfigRepository(pool *pgxpool.Pool) SLAConfigRepository {
	return &slaConfigRepository{pool: pool}
}

func (r *slaConfigRepository) Get(ctx context.Context, priority domain.TicketPriority, issueType *domain.IssueType) (*domain.SLAConfig, error) {
	const query = `
        SELECT id, priority, issue_type, first_response_minutes, resolution_minutes
        FROM sla_configs
        WHERE priority=$1 AND issue_type IS NOT DISTINCT FROM $2`
	var cfg domain.SLAConfig
	if err := r.pool.QueryRow(ctx, query, priority, issueType).Scan(
		&cfg.ID,
		&cfg.Priority,
		&cfg.IssueType,
		&cfg.FirstResponseMinutes,
		&cfg.ResolutionMinutes,
	); err != nil {
		return nil, mapLookupErr(err)
	}
	return &cfg, nil
}

func (r *slaConfigRepository) List(ctx context.Context) ([]domain.SLAConfig, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT id, priority, issue_type, first_response_minutes, resolution_minutes
        FROM sla_configs ORDER BY priority, issue_type NULLS FIRST`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAConfig
	for rows.Next() {
		var cfg domain.SLAConfig
		if err := rows.Scan(&cfg.ID, &cfg.Priority, &cfg.IssueType, &cfg.FirstResponseMinutes, &cfg.ResolutionMinutes); err != nil {
			return nil, err
		}
		result = append(result, cfg)
	}
	return result, rows.Err()
}

func (r *slaConfigRepository) Upsert(ctx context.Context, cfg *domain.SLAConfig) error {
	const query = `
        INSERT INTO sla_configs (priority, issue_type, first_response_minutes, resolution_minutes)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (priority, COALESCE(issue_type, ''))
        DO UPDATE SET first_response_minutes = EXCLUDED.first_response_minutes,
                      resolution_minutes = EXCLUDED.resolution_minutes
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		cfg.Priority,
		cfg.IssueType,
		cfg.FirstResponseMinutes,
		cfg.ResolutionMinutes,
	).Scan(&cfg.ID)
}
