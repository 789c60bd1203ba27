package memory

import (
	"context"
	"sort"
	"time"

	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/repository"
)

type refundRepo struct{ r *repos }

func (x refundRepo) Enqueue(_ context.Context, rr *domain.RefundRequest) error {
	return x.r.with(func(st *state) error {
		for _, other := range st.refunds {
			if other.BookingID == rr.BookingID {
				return nil
			}
		}
		st.refunds[rr.ID] = *rr
		st.stamp(rr.ID)
		return nil
	})
}

func (x refundRepo) ListPending(_ context.Context, limit int) ([]domain.RefundRequest, error) {
	var out []domain.RefundRequest
	err := x.r.with(func(st *state) error {
		for _, rr := range st.refunds {
			if rr.Status == domain.RefundPending {
				out = append(out, rr)
			}
		}
		sort.Slice(out, func(i, j int) bool { return st.order[out[i].ID] < st.order[out[j].ID] })
		return nil
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (x refundRepo) MarkSent(_ context.Context, id string, at time.Time) error {
	return x.update(id, func(rr *domain.RefundRequest) {
		rr.Status = domain.RefundSent
		rr.Attempts++
		rr.LastError = ""
		rr.UpdatedAt = at
	})
}

func (x refundRepo) MarkAttemptFailed(_ context.Context, id string, reason string, at time.Time) error {
	return x.update(id, func(rr *domain.RefundRequest) {
		rr.Attempts++
		rr.LastError = reason
		rr.UpdatedAt = at
	})
}

func (x refundRepo) update(id string, fn func(rr *domain.RefundRequest)) error {
	return x.r.with(func(st *state) error {
		rr, ok := st.refunds[id]
		if !ok {
			return repository.ErrNotFound
		}
		fn(&rr)
		st.refunds[id] = rr
		return nil
	})
}
