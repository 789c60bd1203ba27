package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/repository"
)

var ErrNotificationNotFound = errors.New("notification not found")

const defaultInboxLimit = 50

// Inbox reads the notifications persisted by StoreSink.
type Inbox struct {
	repo repository.NotificationRepo
}

func NewInbox(repo repository.NotificationRepo) *Inbox {
	return &Inbox{repo: repo}
}

// List returns the user's newest notifications first.
func (i *Inbox) List(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	const op = "notify.Inbox.List"

	if limit <= 0 || limit > 200 {
		limit = defaultInboxLimit
	}
	list, err := i.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	return list, nil
}

func (i *Inbox) MarkRead(ctx context.Context, id, userID string) error {
	const op = "notify.Inbox.MarkRead"

	if err := i.repo.MarkRead(ctx, id, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s:%w", op, ErrNotificationNotFound)
		}
		return fmt.Errorf("%s:%w", op, err)
	}
	return nil
}
