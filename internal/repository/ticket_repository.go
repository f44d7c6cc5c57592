package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/domain"
)

const ticketColumns = `id, number, title, description, status, priority, issue_type, customer_id,
               assigned_to_id, sla_deadline, sla_breached, resolved_at, version, created_at, updated_at`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the pgx-backed ticket repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket, created *domain.TicketHistoryEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        INSERT INTO tickets (title, description, status, priority, issue_type, customer_id, assigned_to_id,
                             sla_deadline, sla_breached, resolved_at, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id, number, version, created_at, updated_at`
	if err := tx.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.IssueType,
		ticket.CustomerID,
		ticket.AssignedToID,
		ticket.SLADeadline,
		ticket.SLABreached,
		ticket.ResolvedAt,
		ticket.CreatedAt,
	).Scan(&ticket.ID, &ticket.Number, &ticket.Version, &ticket.CreatedAt, &ticket.UpdatedAt); err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}

	if created != nil {
		created.TicketID = ticket.ID
		if err := insertHistory(ctx, tx, created); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapLookupErr(err)
	}
	return ticket, nil
}

func (r *ticketRepository) ApplyUpdate(ctx context.Context, ticket *domain.Ticket, expectedVersion int64, history []*domain.TicketHistoryEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// sla_breached is OR-ed so a stale snapshot can never clear a breach.
	const query = `
        UPDATE tickets SET title=$1, description=$2, status=$3, priority=$4, issue_type=$5,
            assigned_to_id=$6, sla_deadline=$7, sla_breached = sla_breached OR $8, resolved_at=$9,
            version = version + 1, updated_at = NOW()
        WHERE id=$10 AND version=$11
        RETURNING version, updated_at, sla_breached`
	err = tx.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.IssueType,
		ticket.AssignedToID,
		ticket.SLADeadline,
		ticket.SLABreached,
		ticket.ResolvedAt,
		ticket.ID,
		expectedVersion,
	).Scan(&ticket.Version, &ticket.UpdatedAt, &ticket.SLABreached)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
			return mapLookupErr(err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	if err != nil {
		return mapLookupErr(err)
	}

	for _, entry := range history {
		entry.TicketID = ticket.ID
		if err := insertHistory(ctx, tx, entry); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *ticketRepository) ListOpenWithDeadlineBefore(ctx context.Context, ts time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
        FROM tickets
        WHERE sla_breached = FALSE
          AND status NOT IN ('RESOLVED', 'CLOSED')
          AND sla_deadline IS NOT NULL
          AND sla_deadline < $1
        ORDER BY sla_deadline ASC`
	rows, err := r.pool.Query(ctx, query, ts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) MarkBreached(ctx context.Context, id string, asOf time.Time, entry *domain.TicketHistoryEntry) (*domain.Ticket, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// The WHERE clause is re-checked after the row lock, so only one concurrent caller matches.
	query := `
        UPDATE tickets SET sla_breached = TRUE, version = version + 1, updated_at = NOW()
        WHERE id=$1 AND sla_breached = FALSE AND status NOT IN ('RESOLVED', 'CLOSED')
          AND sla_deadline IS NOT NULL AND sla_deadline < $2
        RETURNING ` + ticketColumns
	ticket, err := scanTicket(tx.QueryRow(ctx, query, id, asOf))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mapLookupErr(err)
	}

	if entry != nil {
		entry.TicketID = ticket.ID
		if err := insertHistory(ctx, tx, entry); err != nil {
			return nil, false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return ticket, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Number,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.IssueType,
		&ticket.CustomerID,
		&ticket.AssignedToID,
		&ticket.SLADeadline,
		&ticket.SLABreached,
		&ticket.ResolvedAt,
		&ticket.Version,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// mapLookupErr folds "no row" and malformed ids into ErrNotFound.
func mapLookupErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
		return ErrNotFound
	}
	return err
}
