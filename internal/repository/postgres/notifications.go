package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/repository"
)

type NotificationRepo struct {
	db DB
}

const notificationColumns = `id, user_id, type, title, message, listing_id, booking_id,
	slot_id, waitlist_entry_id, read, created_at`

func scanNotification(row pgx.Row) (domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.ListingID,
		&n.BookingID, &n.SlotID, &n.WaitlistEntryID, &n.Read, &n.CreatedAt)
	return n, err
}

func (r *NotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	const op = "postgres.NotificationRepo.Create"

	_, err := r.db.Exec(ctx,
		`INSERT INTO notifications(`+notificationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.ListingID, n.BookingID,
		n.SlotID, n.WaitlistEntryID, n.Read, n.CreatedAt,
	)
	return wrapDBErr(op, err)
}

func (r *NotificationRepo) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	const op = "postgres.NotificationRepo.ListByUser"

	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		  WHERE user_id = $1
		  ORDER BY created_at DESC, id DESC
		  LIMIT $2`, userID, limit)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	out, err := collect(rows, scanNotification)
	return out, wrapDBErr(op, err)
}

func (r *NotificationRepo) MarkRead(ctx context.Context, id, userID string) error {
	const op = "postgres.NotificationRepo.MarkRead"

	tag, err := r.db.Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return wrapDBErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	return nil
}
