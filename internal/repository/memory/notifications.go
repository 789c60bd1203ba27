package memory

import (
	"context"
	"sort"

	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/repository"
)

type notificationRepo struct{ r *repos }

func (x notificationRepo) Create(_ context.Context, n *domain.Notification) error {
	return x.r.with(func(st *state) error {
		st.notifications[n.ID] = *n
		st.stamp(n.ID)
		return nil
	})
}

// ListByUser returns newest first.
func (x notificationRepo) ListByUser(_ context.Context, userID string, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	err := x.r.with(func(st *state) error {
		for _, n := range st.notifications {
			if n.UserID == userID {
				out = append(out, n)
			}
		}
		sort.Slice(out, func(i, j int) bool { return st.order[out[i].ID] > st.order[out[j].ID] })
		return nil
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (x notificationRepo) MarkRead(_ context.Context, id, userID string) error {
	return x.r.with(func(st *state) error {
		n, ok := st.notifications[id]
		if !ok || n.UserID != userID {
			return repository.ErrNotFound
		}
		n.Read = true
		st.notifications[id] = n
		return nil
	})
}
