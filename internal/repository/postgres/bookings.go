package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/repository"
)

type BookingRepo struct {
	db DB
}

const bookingColumns = `id, listing_id, slot_id, customer_id, vendor_id, guests, amount_cents,
	status, payment_status, COALESCE(payment_handle, ''),
	cancelled_at, cancelled_by, cancelled_by_id, cancel_reason, cancel_message,
	refund_processed, created_at, updated_at`

func scanBooking(row pgx.Row) (domain.Booking, error) {
	var (
		b  domain.Booking
		cc cancelCols
	)
	dest := []any{
		&b.ID, &b.ListingID, &b.SlotID, &b.CustomerID, &b.VendorID, &b.Guests, &b.AmountCents,
		&b.Status, &b.PaymentStatus, &b.PaymentHandle,
	}
	dest = append(dest, cc.dest()...)
	dest = append(dest, &b.RefundProcessed, &b.CreatedAt, &b.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return domain.Booking{}, err
	}
	b.Cancellation = cc.value()
	return b, nil
}

func (r *BookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	const op = "postgres.BookingRepo.Create"

	args := []any{
		b.ID, b.ListingID, b.SlotID, b.CustomerID, b.VendorID, b.Guests, b.AmountCents,
		b.Status, b.PaymentStatus, b.PaymentHandle,
	}
	args = append(args, cancelArgs(b.Cancellation)...)
	args = append(args, b.RefundProcessed, b.CreatedAt, b.UpdatedAt)

	_, err := r.db.Exec(ctx,
		`INSERT INTO bookings(id, listing_id, slot_id, customer_id, vendor_id, guests,
		                      amount_cents, status, payment_status, payment_handle,
		                      cancelled_at, cancelled_by, cancelled_by_id, cancel_reason,
		                      cancel_message, refund_processed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''),
		         $11, $12, $13, $14, $15, $16, $17, $18)`,
		args...,
	)
	return wrapDBErr(op, err)
}

func (r *BookingRepo) Get(ctx context.Context, id string) (*domain.Booking, error) {
	return r.get(ctx, "postgres.BookingRepo.Get",
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

func (r *BookingRepo) GetForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	return r.get(ctx, "postgres.BookingRepo.GetForUpdate",
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
}

func (r *BookingRepo) GetByPaymentHandle(ctx context.Context, handle string) (*domain.Booking, error) {
	if handle == "" {
		return nil, repository.ErrNotFound
	}
	return r.get(ctx, "postgres.BookingRepo.GetByPaymentHandle",
		`SELECT `+bookingColumns+` FROM bookings WHERE payment_handle = $1 FOR UPDATE`, handle)
}

func (r *BookingRepo) get(ctx context.Context, op, sql string, args ...any) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	return &b, nil
}

func (r *BookingRepo) ListActiveBySlot(ctx context.Context, slotID string) ([]domain.Booking, error) {
	return r.list(ctx, "postgres.BookingRepo.ListActiveBySlot",
		`SELECT `+bookingColumns+` FROM bookings
		  WHERE slot_id = $1 AND status IN ('pending', 'confirmed')
		  ORDER BY created_at, id
		  FOR UPDATE`, slotID)
}

func (r *BookingRepo) ListByCustomer(ctx context.Context, customerID string) ([]domain.Booking, error) {
	return r.list(ctx, "postgres.BookingRepo.ListByCustomer",
		`SELECT `+bookingColumns+` FROM bookings
		  WHERE customer_id = $1
		  ORDER BY created_at, id`, customerID)
}

func (r *BookingRepo) list(ctx context.Context, op, sql string, args ...any) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	out, err := collect(rows, scanBooking)
	return out, wrapDBErr(op, err)
}

func (r *BookingRepo) Update(ctx context.Context, b *domain.Booking) error {
	const op = "postgres.BookingRepo.Update"

	args := []any{b.ID, b.Guests, b.AmountCents, b.Status, b.PaymentStatus, b.PaymentHandle}
	args = append(args, cancelArgs(b.Cancellation)...)
	args = append(args, b.RefundProcessed, b.UpdatedAt)

	tag, err := r.db.Exec(ctx,
		`UPDATE bookings
		    SET guests = $2, amount_cents = $3, status = $4, payment_status = $5,
		        payment_handle = NULLIF($6, ''),
		        cancelled_at = $7, cancelled_by = $8, cancelled_by_id = $9,
		        cancel_reason = $10, cancel_message = $11,
		        refund_processed = $12, updated_at = $13
		  WHERE id = $1`,
		args...,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	return nil
}

func (r *BookingRepo) CompleteBefore(ctx context.Context, date string) (int64, error) {
	const op = "postgres.BookingRepo.CompleteBefore"

	tag, err := r.db.Exec(ctx,
		`UPDATE bookings b
		    SET status = 'completed', updated_at = now()
		   FROM slots s
		  WHERE s.id = b.slot_id AND b.status = 'confirmed' AND s.date < $1`, date)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}
	return tag.RowsAffected(), nil
}
