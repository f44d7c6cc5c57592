package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/domain"
)

type ticketHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTicketHistoryRepository builds repository.
func NewTicketHistoryRepository(pool *pgxpool.Pool) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool}
}

func (r *ticketHistoryRepository) Append(ctx context.Context, entry *domain.TicketHistoryEntry) error {
	return insertHistory(ctx, r.pool, entry)
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistoryEntry, error) {
	const query = `
        SELECT id, ticket_id, actor_id, action, field, old_value, new_value, metadata, created_at
        FROM ticket_history WHERE ticket_id=$1 ORDER BY created_at ASC, seq ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, mapLookupErr(err)
	}
	defer rows.Close()

	var result []domain.TicketHistoryEntry
	for rows.Next() {
		var entry domain.TicketHistoryEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.ActorID,
			&entry.Action,
			&entry.Field,
			&entry.OldValue,
			&entry.NewValue,
			&entry.Metadata,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// rowQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertHistory(ctx context.Context, q rowQuerier, entry *domain.TicketHistoryEntry) error {
	const query = `
        INSERT INTO ticket_history (ticket_id, actor_id, action, field, old_value, new_value, metadata)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	if err := q.QueryRow(ctx, query,
		entry.TicketID,
		entry.ActorID,
		entry.Action,
		entry.Field,
		entry.OldValue,
		entry.NewValue,
		entry.Metadata,
	).Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return fmt.Errorf("insert history (%s): %w", entry.Action, err)
	}
	return nil
}
