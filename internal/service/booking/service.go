package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kirinyoku/tripslot/internal/clock"
	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/metrics"
	"github.com/kirinyoku/tripslot/internal/notify"
	"github.com/kirinyoku/tripslot/internal/obs"
	"github.com/kirinyoku/tripslot/internal/payment"
	"github.com/kirinyoku/tripslot/internal/repository"
	"github.com/kirinyoku/tripslot/internal/service/ledger"
	"github.com/kirinyoku/tripslot/internal/service/waitlist"
	"github.com/kirinyoku/tripslot/internal/uow"
)

// Service coordinates bookings across the slot ledger, the waitlist and
// the payment collaborator.
type Service struct {
	uow        *uow.UoW
	clock      clock.Clock
	ledger     *ledger.Service
	waitlist   *waitlist.Service
	gateway    payment.Gateway
	refunder   payment.Refunder
	dispatcher *notify.Dispatcher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer
}

// New creates a booking coordinator. gateway and refunder may be nil when
// no payment processor is configured: Checkout then fails fast and
// refunds stay queued for RetryRefunds.
func New(
	u *uow.UoW,
	clk clock.Clock,
	led *ledger.Service,
	wl *waitlist.Service,
	gateway payment.Gateway,
	refunder payment.Refunder,
	dispatcher *notify.Dispatcher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		uow:        u,
		clock:      clk,
		ledger:     led,
		waitlist:   wl,
		gateway:    gateway,
		refunder:   refunder,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger.With(slog.String("component", "booking")),
		tracer:     obs.Tracer(),
	}
}

type CreateInput struct {
	SlotID      string
	CustomerID  string
	Guests      int
	AmountCents int64
}

func (in CreateInput) validate() error {
	switch {
	case strings.TrimSpace(in.SlotID) == "":
		return domain.ValidationError{Field: "slot_id", Reason: "required"}
	case strings.TrimSpace(in.CustomerID) == "":
		return domain.ValidationError{Field: "customer_id", Reason: "required"}
	case in.Guests < 1:
		return domain.ValidationError{Field: "guests", Reason: "must be at least 1"}
	case in.AmountCents < 0:
		return domain.ValidationError{Field: "amount_cents", Reason: "must not be negative"}
	}
	return nil
}

// CreateBooking reserves capacity and records a pending booking.
//
// Parameters:
//   - ctx: request context
//   - in: slot, customer, guest count and the quoted amount
//
// Returns:
//   - *domain.Booking: the pending booking
//   - error: domain.ValidationError, ledger.ErrCapacityExceeded,
//     ledger.ErrSlotClosed, ledger.ErrSlotUnavailable or ledger.ErrSlotNotFound
func (s *Service) CreateBooking(ctx context.Context, in CreateInput) (*domain.Booking, error) {
	const op = "service.booking.CreateBooking"

	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("slot.id", in.SlotID),
		attribute.Int("booking.guests", in.Guests),
	))
	defer span.End()

	b, err := s.create(ctx, op, in)
	if err != nil {
		fail(span, err)
		return nil, err
	}
	return b, nil
}

func (s *Service) create(ctx context.Context, op string, in CreateInput) (*domain.Booking, error) {
	if err := in.validate(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	var b domain.Booking

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		slot, err := s.ledger.ReserveTx(ctx, tx, after, in.SlotID, in.Guests)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		now := s.clock.Now()
		b = domain.Booking{
			ID:            uuid.NewString(),
			ListingID:     slot.ListingID,
			SlotID:        slot.ID,
			CustomerID:    in.CustomerID,
			VendorID:      slot.VendorID,
			Guests:        in.Guests,
			AmountCents:   in.AmountCents,
			Status:        domain.BookingPending,
			PaymentStatus: domain.PaymentPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Bookings().Create(ctx, &b); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		if _, err := s.waitlist.ClaimTx(ctx, tx, after, slot.ID, in.CustomerID); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		events := notify.BookingCreated(b, *slot, now)
		after(func(ctx context.Context) {
			s.metrics.Booking(string(domain.BookingPending))
			s.dispatcher.Dispatch(ctx, events...)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking created",
		slog.String("booking_id", b.ID),
		slog.String("slot_id", b.SlotID),
		slog.Int("guests", b.Guests),
	)
	return &b, nil
}

type CheckoutResult struct {
	Booking *domain.Booking
	Intent  payment.Intent
}

// Checkout creates a booking and its payment intent. When the intent
// cannot be created the booking is cancelled and its capacity released
// before the error is returned.
func (s *Service) Checkout(ctx context.Context, in CreateInput) (*CheckoutResult, error) {
	const op = "service.booking.Checkout"

	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("slot.id", in.SlotID)))
	defer span.End()

	if s.gateway == nil {
		err := fmt.Errorf("%s:%w", op, ErrPaymentUnavailable)
		fail(span, err)
		return nil, err
	}

	b, err := s.create(ctx, op, in)
	if err != nil {
		fail(span, err)
		return nil, err
	}

	intent, err := s.gateway.CreateIntent(ctx, b.ID, b.AmountCents)
	if err != nil {
		s.logger.Warn("payment intent failed, releasing booking",
			slog.String("booking_id", b.ID),
			slog.Any("error", err),
		)
		if _, cerr := s.failPayment(ctx, b.ID, "payment intent could not be created"); cerr != nil {
			s.logger.Error("releasing booking after intent failure",
				slog.String("booking_id", b.ID),
				slog.Any("error", cerr),
			)
		}
		err = fmt.Errorf("%s:%w: %v", op, ErrPaymentUnavailable, err)
		fail(span, err)
		return nil, err
	}

	err = s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		cur, err := tx.Bookings().GetForUpdate(ctx, b.ID)
		if err != nil {
			return err
		}
		cur.PaymentHandle = intent.Handle
		cur.UpdatedAt = s.clock.Now()
		if err := tx.Bookings().Update(ctx, cur); err != nil {
			return err
		}
		b = cur
		return nil
	})
	if err != nil {
		err = translate(op, err)
		fail(span, err)
		return nil, err
	}

	return &CheckoutResult{Booking: b, Intent: intent}, nil
}

// ConfirmPayment marks a pending booking confirmed and paid. A payment
// arriving for a booking that was cancelled in the meantime is recorded
// and refunded. Repeated confirmations are no-ops.
func (s *Service) ConfirmPayment(ctx context.Context, bookingID string) (*domain.Booking, error) {
	const op = "service.booking.ConfirmPayment"

	var (
		out     *domain.Booking
		refunds []domain.RefundRequest
	)

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		refunds, err = s.confirmTx(ctx, tx, after, b)
		out = b
		return err
	})
	if err != nil {
		return nil, translate(op, err)
	}

	s.sendRefunds(ctx, refunds)
	return out, nil
}

func (s *Service) confirmTx(
	ctx context.Context,
	tx repository.Repos,
	after func(uow.AfterCommit),
	b *domain.Booking,
) ([]domain.RefundRequest, error) {
	now := s.clock.Now()

	switch {
	case b.Status == domain.BookingPending:
		b.Status = domain.BookingConfirmed
		b.PaymentStatus = domain.PaymentPaid
		b.UpdatedAt = now
		if err := tx.Bookings().Update(ctx, b); err != nil {
			return nil, err
		}
		ev := notify.BookingConfirmed(*b, now)
		after(func(ctx context.Context) {
			s.metrics.Booking(string(domain.BookingConfirmed))
			s.dispatcher.Dispatch(ctx, ev)
		})
		return nil, nil

	case b.Status == domain.BookingCancelled &&
		(b.PaymentStatus == domain.PaymentPending || b.PaymentStatus == domain.PaymentFailed):
		b.PaymentStatus = domain.PaymentPaid
		b.UpdatedAt = now
		if err := tx.Bookings().Update(ctx, b); err != nil {
			return nil, err
		}
		rr, err := s.enqueueRefund(ctx, tx, after, *b)
		if err != nil {
			return nil, err
		}
		return []domain.RefundRequest{rr}, nil
	}

	return nil, nil
}

// HandlePaymentResult applies an asynchronous charge outcome. The booking
// is found by intent handle, falling back to the booking id.
func (s *Service) HandlePaymentResult(ctx context.Context, res payment.Result) (*domain.Booking, error) {
	const op = "service.booking.HandlePaymentResult"

	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("payment.handle", res.Handle),
		attribute.Bool("payment.succeeded", res.Succeeded),
	))
	defer span.End()

	status := "failed"
	if res.Succeeded {
		status = "paid"
	}
	s.metrics.PaymentEvent(status)

	var (
		out     *domain.Booking
		refunds []domain.RefundRequest
	)

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		b, err := tx.Bookings().GetByPaymentHandle(ctx, res.Handle)
		if errors.Is(err, repository.ErrNotFound) && res.BookingID != "" {
			b, err = tx.Bookings().GetForUpdate(ctx, res.BookingID)
		}
		if err != nil {
			return err
		}
		out = b

		if res.Succeeded {
			refunds, err = s.confirmTx(ctx, tx, after, b)
			return err
		}
		if b.Status != domain.BookingPending {
			return nil
		}
		_, err = s.cancelTx(ctx, tx, after, b, s.paymentCancellation(res.Reason), cancelPaymentFailed)
		return err
	})
	if err != nil {
		err = translate(op, err)
		fail(span, err)
		return nil, err
	}

	s.sendRefunds(ctx, refunds)
	return out, nil
}

func (s *Service) paymentCancellation(reason string) domain.Cancellation {
	return domain.Cancellation{
		At:      s.clock.Now(),
		Actor:   domain.ActorSystem,
		Reason:  domain.ReasonPaymentFailed,
		Message: reason,
	}
}

func (s *Service) failPayment(ctx context.Context, bookingID, reason string) (*domain.Booking, error) {
	var out *domain.Booking
	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		out = b
		if b.Status != domain.BookingPending {
			return nil
		}
		_, err = s.cancelTx(ctx, tx, after, b, s.paymentCancellation(reason), cancelPaymentFailed)
		return err
	})
	return out, err
}

type CancelInput struct {
	Actor   domain.Actor
	ActorID string
	Reason  domain.CancelReason
	Message string
}

func (in *CancelInput) normalize() error {
	if in.Actor == "" {
		in.Actor = domain.ActorCustomer
	}
	if in.Reason == "" {
		in.Reason = domain.ReasonCustomerRequest
		if in.Actor == domain.ActorVendor {
			in.Reason = domain.ReasonVendorCancelled
		}
	}
	switch in.Actor {
	case domain.ActorCustomer, domain.ActorVendor, domain.ActorSystem:
	default:
		return domain.ValidationError{Field: "actor", Reason: fmt.Sprintf("unknown actor %q", in.Actor)}
	}
	if !in.Reason.Valid() {
		return domain.ValidationError{Field: "reason", Reason: fmt.Sprintf("unknown reason %q", in.Reason)}
	}
	return nil
}

// CancelBooking cancels a pending or confirmed booking, releases its
// capacity and queues a refund when it was paid. If the release reopens a
// full slot the next waitlisted customer is notified.
func (s *Service) CancelBooking(ctx context.Context, bookingID string, in CancelInput) (*domain.Booking, error) {
	const op = "service.booking.CancelBooking"

	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("booking.id", bookingID)))
	defer span.End()

	if err := in.normalize(); err != nil {
		err = fmt.Errorf("%s:%w", op, err)
		fail(span, err)
		return nil, err
	}

	var (
		out     *domain.Booking
		refunds []domain.RefundRequest
	)

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		switch {
		case in.Actor == domain.ActorCustomer && b.CustomerID != in.ActorID:
			return ErrForbidden
		case in.Actor == domain.ActorVendor && b.VendorID != in.ActorID:
			return ErrForbidden
		}

		c := domain.Cancellation{
			At:      s.clock.Now(),
			Actor:   in.Actor,
			ActorID: in.ActorID,
			Reason:  in.Reason,
			Message: in.Message,
		}
		rr, err := s.cancelTx(ctx, tx, after, b, c, cancelByParty)
		if err != nil {
			return err
		}
		refunds = rr
		out = b
		return nil
	})
	if err != nil {
		err = translate(op, err)
		fail(span, err)
		return nil, err
	}

	s.logger.Info("booking cancelled",
		slog.String("booking_id", out.ID),
		slog.String("actor", string(in.Actor)),
		slog.String("reason", string(in.Reason)),
	)
	s.sendRefunds(ctx, refunds)
	return out, nil
}

type cancelKind int

const (
	cancelByParty cancelKind = iota
	cancelPaymentFailed
	cancelWithSlot
)

// cancelTx is the shared cancellation path. The slot is cancelled by the
// caller for cancelWithSlot, so no waitlist promotion happens there.
func (s *Service) cancelTx(
	ctx context.Context,
	tx repository.Repos,
	after func(uow.AfterCommit),
	b *domain.Booking,
	c domain.Cancellation,
	kind cancelKind,
) ([]domain.RefundRequest, error) {
	if !b.Active() {
		return nil, ErrNotCancellable
	}

	slot, err := s.ledger.ReleaseTx(ctx, tx, after, b.SlotID, b.Guests)
	if err != nil {
		return nil, err
	}

	b.Status = domain.BookingCancelled
	b.Cancellation = &c
	b.UpdatedAt = c.At
	if kind == cancelPaymentFailed {
		b.PaymentStatus = domain.PaymentFailed
	}
	if err := tx.Bookings().Update(ctx, b); err != nil {
		return nil, err
	}

	var refunds []domain.RefundRequest
	if b.PaymentStatus == domain.PaymentPaid {
		rr, err := s.enqueueRefund(ctx, tx, after, *b)
		if err != nil {
			return nil, err
		}
		refunds = append(refunds, rr)
	}

	// Only a release that reopens a full slot promotes from the waitlist.
	wasFull := slot.Available()-b.Guests <= 0
	if kind != cancelWithSlot && wasFull && slot.Status == domain.SlotActive && !c.At.After(slot.BookingDeadline) {
		if _, err := s.waitlist.NotifyNextTx(ctx, tx, after, slot.ID); err != nil {
			return nil, err
		}
	}

	var ev notify.Event
	switch kind {
	case cancelPaymentFailed:
		ev = notify.PaymentFailed(*b, c.Message, c.At)
	case cancelWithSlot:
		cancelled := *slot
		cancelled.Cancellation = &c
		ev = notify.SlotCancelled(*b, cancelled, c.At)
	default:
		ev = notify.BookingCancelled(*b, c.At)
	}
	after(func(ctx context.Context) {
		s.metrics.Cancellation(string(c.Reason))
		s.dispatcher.Dispatch(ctx, ev)
	})

	return refunds, nil
}

func (s *Service) enqueueRefund(
	ctx context.Context,
	tx repository.Repos,
	after func(uow.AfterCommit),
	b domain.Booking,
) (domain.RefundRequest, error) {
	now := s.clock.Now()
	rr := domain.RefundRequest{
		ID:          uuid.NewString(),
		BookingID:   b.ID,
		AmountCents: b.AmountCents,
		Status:      domain.RefundPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.Refunds().Enqueue(ctx, &rr); err != nil {
		return domain.RefundRequest{}, err
	}

	ev := notify.RefundRequested(b, now)
	after(func(ctx context.Context) { s.dispatcher.Dispatch(ctx, ev) })
	return rr, nil
}

type SlotCancelInput struct {
	VendorID string
	Reason   domain.CancelReason
	Message  string
}

type SlotCancelResult struct {
	Slot            *domain.Slot
	Cancelled       int
	RefundsQueued   int
	WaitlistExpired int
}

// CancelSlot cancels every active booking of the slot, queues their
// refunds, expires the slot's waitlist and finally marks the slot
// cancelled, all in one transaction holding the slot lock. An empty
// VendorID skips the ownership check.
func (s *Service) CancelSlot(ctx context.Context, slotID string, in SlotCancelInput) (*SlotCancelResult, error) {
	const op = "service.booking.CancelSlot"

	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("slot.id", slotID)))
	defer span.End()

	if in.Reason == "" {
		in.Reason = domain.ReasonVendorCancelled
	}
	if !in.Reason.Valid() {
		err := fmt.Errorf("%s:%w", op, domain.ValidationError{Field: "reason", Reason: fmt.Sprintf("unknown reason %q", in.Reason)})
		fail(span, err)
		return nil, err
	}

	var (
		res     SlotCancelResult
		refunds []domain.RefundRequest
	)

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		res, refunds = SlotCancelResult{}, nil

		slot, err := tx.Slots().GetForUpdate(ctx, slotID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrSlotNotFound
			}
			return err
		}
		if in.VendorID != "" && slot.VendorID != in.VendorID {
			return ErrSlotForbidden
		}
		if slot.Status != domain.SlotActive {
			return ErrSlotNotCancellable
		}

		c := domain.Cancellation{
			At:      s.clock.Now(),
			Actor:   domain.ActorVendor,
			ActorID: in.VendorID,
			Reason:  in.Reason,
			Message: in.Message,
		}
		if in.VendorID == "" {
			c.Actor = domain.ActorSystem
		}

		bookings, err := tx.Bookings().ListActiveBySlot(ctx, slotID)
		if err != nil {
			return err
		}
		for i := range bookings {
			rr, err := s.cancelTx(ctx, tx, after, &bookings[i], c, cancelWithSlot)
			if err != nil {
				return fmt.Errorf("booking %s: %w", bookings[i].ID, err)
			}
			res.Cancelled++
			res.RefundsQueued += len(rr)
			refunds = append(refunds, rr...)
		}

		if res.WaitlistExpired, err = s.waitlist.ExpireSlotTx(ctx, tx, after, slotID); err != nil {
			return err
		}

		cancelled, err := tx.Slots().Cancel(ctx, slotID, c)
		if err != nil {
			return err
		}
		s.ledger.Changed(after, *cancelled)
		res.Slot = cancelled
		return nil
	})
	if err != nil {
		err = translate(op, err)
		fail(span, err)
		return nil, err
	}

	s.logger.Info("slot cancelled",
		slog.String("slot_id", slotID),
		slog.Int("bookings", res.Cancelled),
		slog.Int("refunds", res.RefundsQueued),
	)
	s.sendRefunds(ctx, refunds)
	return &res, nil
}

// MarkRefundProcessed records the payment collaborator's refund callback.
func (s *Service) MarkRefundProcessed(ctx context.Context, bookingID string) (*domain.Booking, error) {
	const op = "service.booking.MarkRefundProcessed"

	var out *domain.Booking

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		out = b
		if b.RefundProcessed {
			return nil
		}
		b.RefundProcessed = true
		b.PaymentStatus = domain.PaymentRefunded
		b.UpdatedAt = s.clock.Now()
		return tx.Bookings().Update(ctx, b)
	})
	if err != nil {
		return nil, translate(op, err)
	}
	return out, nil
}

type RefundResult struct {
	Processed int
	Sent      int
	Failed    int
}

// RetryRefunds resends up to limit pending refund requests.
func (s *Service) RetryRefunds(ctx context.Context, limit int) (RefundResult, error) {
	const op = "service.booking.RetryRefunds"

	pending, err := s.uow.Repos().Refunds().ListPending(ctx, limit)
	if err != nil {
		return RefundResult{}, fmt.Errorf("%s:%w", op, err)
	}

	sent := s.sendRefunds(ctx, pending)
	return RefundResult{Processed: len(pending), Sent: sent, Failed: len(pending) - sent}, nil
}

// sendRefunds hands committed refund requests to the refunder and returns
// how many were accepted. Failures stay pending for RetryRefunds.
func (s *Service) sendRefunds(ctx context.Context, refunds []domain.RefundRequest) int {
	if len(refunds) == 0 {
		return 0
	}
	if s.refunder == nil {
		s.logger.Warn("no refunder configured, refunds left pending", slog.Int("count", len(refunds)))
		return 0
	}

	repo := s.uow.Repos().Refunds()
	var sent int
	for _, rr := range refunds {
		now := s.clock.Now()
		if err := s.refunder.RequestRefund(ctx, rr.BookingID, rr.AmountCents); err != nil {
			s.metrics.Refund("failed")
			s.logger.Warn("refund request failed",
				slog.String("booking_id", rr.BookingID),
				slog.Any("error", err),
			)
			if merr := repo.MarkAttemptFailed(ctx, rr.ID, err.Error(), now); merr != nil {
				s.logger.Error("recording refund failure", slog.String("refund_id", rr.ID), slog.Any("error", merr))
			}
			continue
		}
		if err := repo.MarkSent(ctx, rr.ID, now); err != nil {
			s.logger.Error("recording refund", slog.String("refund_id", rr.ID), slog.Any("error", err))
		}
		s.metrics.Refund("sent")
		sent++
	}
	return sent
}

func (s *Service) Get(ctx context.Context, bookingID string) (*domain.Booking, error) {
	const op = "service.booking.Get"

	b, err := s.uow.Repos().Bookings().Get(ctx, bookingID)
	if err != nil {
		return nil, translate(op, err)
	}
	return b, nil
}

func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]domain.Booking, error) {
	const op = "service.booking.ListByCustomer"

	list, err := s.uow.Repos().Bookings().ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	return list, nil
}

func translate(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s:%w", op, ErrBookingNotFound)
	}
	return fmt.Errorf("%s:%w", op, err)
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
