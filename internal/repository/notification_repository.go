package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/domain"
)

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository builds the pgx-backed notification store.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	const query = `
        INSERT INTO notifications (user_id, type, ticket_id, message_id, payload)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, is_read, created_at`
	return r.pool.QueryRow(ctx, query,
		n.UserID,
		n.Type,
		n.TicketID,
		n.MessageID,
		[]byte(n.Payload),
	).Scan(&n.ID, &n.IsRead, &n.CreatedAt)
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID string, filter NotificationFilter) ([]domain.Notification, error) {
	query := `
        SELECT id, user_id, type, ticket_id, message_id, payload, is_read, created_at
        FROM notifications WHERE user_id=$1`
	if filter.UnreadOnly {
		query += ` AND is_read = FALSE`
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, defaultLimit(filter.Limit), offset)

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, mapLookupErr(err)
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var (
			n       domain.Notification
			payload []byte
		)
		if err := rows.Scan(
			&n.ID,
			&n.UserID,
			&n.Type,
			&n.TicketID,
			&n.MessageID,
			&payload,
			&n.IsRead,
			&n.CreatedAt,
		); err != nil {
			return nil, err
		}
		n.Payload = payload
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND is_read = FALSE`, userID).Scan(&count)
	if err != nil {
		return 0, mapLookupErr(err)
	}
	return count, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID, id string) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return mapLookupErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID string) (int, error) {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id=$1 AND is_read = FALSE`, userID)
	if err != nil {
		return 0, mapLookupErr(err)
	}
	return int(cmd.RowsAffected()), nil
}
