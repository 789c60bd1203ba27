package httpgin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tripslot/internal/clock"
	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/notify"
	"github.com/kirinyoku/tripslot/internal/repository"
	"github.com/kirinyoku/tripslot/internal/repository/memory"
	redisrepo "github.com/kirinyoku/tripslot/internal/repository/redis"
	"github.com/kirinyoku/tripslot/internal/service"
	"github.com/kirinyoku/tripslot/internal/service/ledger"
)

var (
	start    = time.Date(2026, 10, 18, 6, 0, 0, 0, time.UTC)
	deadline = time.Date(2026, 10, 25, 7, 0, 0, 0, time.UTC)
)

type testServer struct {
	store  *memory.Store
	svcs   *service.Services
	router *gin.Engine
	slots  int
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	svcs := service.NewServices(service.Deps{
		Store:      store,
		Clock:      clock.Fake(start),
		Hub:        ledger.NewHub(),
		Dispatcher: notify.NewDispatcher(logger, notify.NewStoreSink(store.Repos().Notifications())),
		Logger:     logger,
	}, service.Config{Ledger: ledger.Config{Location: time.UTC}})

	return &testServer{
		store:  store,
		svcs:   svcs,
		router: NewRouter(svcs, opts, logger),
	}
}

func (s *testServer) seedSlot(t *testing.T, id string, capacity int) {
	t.Helper()
	hour := 9 + s.slots
	s.slots++
	n, err := s.store.Repos().Slots().InsertMissing(context.Background(), []domain.Slot{{
		ID:              id,
		ListingID:       "listing-1",
		VendorID:        "vendor-1",
		Date:            "2026-10-25",
		StartTime:       fmt.Sprintf("%02d:00", hour),
		EndTime:         fmt.Sprintf("%02d:00", hour+1),
		Capacity:        capacity,
		Status:          domain.SlotActive,
		BookingDeadline: deadline,
	}})
	require.NoError(t, err)
	require.Equal(t, 1, n, "slot %s collides with an existing one", id)
}

type caller struct {
	id, role string
}

var (
	anon     = caller{}
	alice    = caller{"cust-1", RoleCustomer}
	bob      = caller{"cust-2", RoleCustomer}
	vendor1  = caller{"vendor-1", RoleVendor}
	vendor2  = caller{"vendor-2", RoleVendor}
	operator = caller{"ops", RoleAdmin}
)

func (s *testServer) do(t *testing.T, who caller, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if who.id != "" {
		req.Header.Set("X-User-ID", who.id)
		req.Header.Set("X-User-Role", who.role)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, Options{})
	w := s.do(t, anon, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestListSlotsETag(t *testing.T) {
	s := newTestServer(t, Options{})
	s.seedSlot(t, "s1", 4)

	w := s.do(t, anon, http.MethodGet, "/listings/listing-1/slots?from=2026-10-18&to=2026-10-31", nil)
	require.Equal(t, http.StatusOK, w.Code)
	slots := decode[[]SlotResponse](t, w)
	require.Len(t, slots, 1)
	assert.Equal(t, 4, slots[0].Available)

	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	w = s.do(t, anon, http.MethodGet, "/listings/listing-1/slots?from=2026-10-18&to=2026-10-31", nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, w.Code)
}

func TestGetSlotNotFound(t *testing.T) {
	s := newTestServer(t, Options{})
	w := s.do(t, anon, http.MethodGet, "/slots/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "slot_not_found", decode[ErrorResponse](t, w).Code)
}

func TestCreateBookingRequiresIdentity(t *testing.T) {
	s := newTestServer(t, Options{})
	s.seedSlot(t, "s1", 2)

	w := s.do(t, anon, http.MethodPost, "/slots/s1/bookings", CreateBookingRequest{Guests: 1})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateBookingErrors(t *testing.T) {
	s := newTestServer(t, Options{})
	s.seedSlot(t, "s1", 1)

	w := s.do(t, alice, http.MethodPost, "/slots/s1/bookings", CreateBookingRequest{Guests: 0})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decode[ErrorResponse](t, w).Code)

	w = s.do(t, alice, http.MethodPost, "/slots/s1/bookings", CreateBookingRequest{Guests: 1, AmountCents: 100})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, bob, http.MethodPost, "/slots/s1/bookings", CreateBookingRequest{Guests: 1, AmountCents: 100})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "slot_full", decode[ErrorResponse](t, w).Code)
}

func TestCreateBookingIdempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := newTestServer(t, Options{Idempotency: redisrepo.NewIdempotencyStore(rdb, time.Hour)})
	s.seedSlot(t, "s1", 5)

	req := CreateBookingRequest{Guests: 2, AmountCents: 9000}
	first := s.do(t, alice, http.MethodPost, "/slots/s1/bookings", req, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, first.Code)
	second := s.do(t, alice, http.MethodPost, "/slots/s1/bookings", req, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, second.Code)

	b1 := decode[domain.Booking](t, first)
	b2 := decode[domain.Booking](t, second)
	assert.Equal(t, b1.ID, b2.ID)
	assert.Equal(t, "k-1", second.Header().Get("Idempotency-Key"))

	slot, err := s.svcs.Ledger.GetSlot(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, slot.Booked)

	// The key is scoped to the caller.
	other := s.do(t, bob, http.MethodPost, "/slots/s1/bookings", req, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, other.Code)
	assert.NotEqual(t, b1.ID, decode[domain.Booking](t, other).ID)
}

func TestCreateBookingIdempotencyInFlight(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	idem := redisrepo.NewIdempotencyStore(rdb, time.Hour)
	s := newTestServer(t, Options{Idempotency: idem})
	s.seedSlot(t, "s1", 5)

	key := redisrepo.KeyIdemBooking("s1", alice.id, "k-1")
	ok, err := idem.AcquireLock(context.Background(), key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	w := s.do(t, alice, http.MethodPost, "/slots/s1/bookings", CreateBookingRequest{Guests: 1}, "Idempotency-Key", "k-1")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestCreateBookingRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, "booking", 1, time.Minute)
	s := newTestServer(t, Options{Limiter: limiter})
	s.seedSlot(t, "s1", 5)

	w := s.do(t, alice, http.MethodPost, "/slots/s1/bookings", CreateBookingRequest{Guests: 1})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, alice, http.MethodPost, "/slots/s1/bookings", CreateBookingRequest{Guests: 1})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", decode[ErrorResponse](t, w).Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRateLimiterFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, "booking", 1, time.Minute)
	s := newTestServer(t, Options{Limiter: limiter})
	s.seedSlot(t, "s1", 5)
	mr.Close()

	w := s.do(t, alice, http.MethodPost, "/slots/s1/bookings", CreateBookingRequest{Guests: 1})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestCheckoutWithoutGateway(t *testing.T) {
	s := newTestServer(t, Options{})
	s.seedSlot(t, "s1", 5)

	w := s.do(t, alice, http.MethodPost, "/slots/s1/checkout", CreateBookingRequest{Guests: 1, AmountCents: 100})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "payment_unavailable", decode[ErrorResponse](t, w).Code)
}

func TestBookingOwnership(t *testing.T) {
	s := newTestServer(t, Options{})
	s.seedSlot(t, "s1", 5)

	w := s.do(t, alice, http.MethodPost, "/slots/s1/bookings", CreateBookingRequest{Guests: 1})
	require.Equal(t, http.StatusCreated, w.Code)
	b := decode[domain.Booking](t, w)

	assert.Equal(t, http.StatusOK, s.do(t, alice, http.MethodGet, "/bookings/"+b.ID, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, vendor1, http.MethodGet, "/bookings/"+b.ID, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, operator, http.MethodGet, "/bookings/"+b.ID, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, bob, http.MethodGet, "/bookings/"+b.ID, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, bob, http.MethodPost, "/bookings/"+b.ID+"/cancel", nil).Code)

	w = s.do(t, alice, http.MethodPost, "/bookings/"+b.ID+"/cancel", CancelRequest{Message: "plans changed"})
	require.Equal(t, http.StatusOK, w.Code)
	cancelled := decode[domain.Booking](t, w)
	assert.Equal(t, domain.BookingCancelled, cancelled.Status)

	w = s.do(t, alice, http.MethodPost, "/bookings/"+b.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "not_cancellable", decode[ErrorResponse](t, w).Code)
}

func TestUserScopedLists(t *testing.T) {
	s := newTestServer(t, Options{})
	s.seedSlot(t, "s1", 5)

	require.Equal(t, http.StatusCreated, s.do(t, alice, http.MethodPost, "/slots/s1/bookings", CreateBookingRequest{Guests: 1}).Code)

	w := s.do(t, alice, http.MethodGet, "/users/cust-1/bookings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.Booking](t, w), 1)

	assert.Equal(t, http.StatusForbidden, s.do(t, bob, http.MethodGet, "/users/cust-1/bookings", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, bob, http.MethodGet, "/users/cust-1/notifications", nil).Code)

	w = s.do(t, alice, http.MethodGet, "/users/cust-1/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]domain.Notification](t, w)
	require.NotEmpty(t, list)

	assert.Equal(t, http.StatusNotFound, s.do(t, bob, http.MethodPost, "/notifications/"+list[0].ID+"/read", nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, alice, http.MethodPost, "/notifications/"+list[0].ID+"/read", nil).Code)
}

func TestJoinWaitlist(t *testing.T) {
	s := newTestServer(t, Options{})
	s.seedSlot(t, "s1", 1)

	w := s.do(t, bob, http.MethodPost, "/slots/s1/waitlist", JoinWaitlistRequest{Email: "bob@example.com"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "slot_not_full", decode[ErrorResponse](t, w).Code)

	require.Equal(t, http.StatusCreated, s.do(t, alice, http.MethodPost, "/slots/s1/bookings", CreateBookingRequest{Guests: 1}).Code)

	w = s.do(t, bob, http.MethodPost, "/slots/s1/waitlist", JoinWaitlistRequest{Email: "bob@example.com"})
	require.Equal(t, http.StatusCreated, w.Code)
	entry := decode[domain.WaitlistEntry](t, w)
	assert.Equal(t, "bob@example.com", entry.Email)

	w = s.do(t, bob, http.MethodPost, "/slots/s1/waitlist", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_joined", decode[ErrorResponse](t, w).Code)
}

func TestVendorRules(t *testing.T) {
	s := newTestServer(t, Options{})

	rule := RuleRequest{
		RuleType:              domain.RuleRecurring,
		Frequency:             domain.FrequencyDaily,
		StartTime:             "09:00",
		DurationMinutes:       90,
		Capacity:              8,
		BookingDeadlineHours:  2,
		GenerateDaysInAdvance: 7,
	}

	assert.Equal(t, http.StatusForbidden, s.do(t, alice, http.MethodPost, "/vendor/listings/listing-1/rules", rule).Code)

	w := s.do(t, vendor1, http.MethodPost, "/vendor/listings/listing-1/rules", rule)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[RuleResponse](t, w)
	assert.Positive(t, created.SlotsCreated)
	assert.True(t, created.Rule.Active)
	assert.Equal(t, "vendor-1", created.Rule.VendorID)

	ruleURL := "/vendor/rules/" + created.Rule.ID
	assert.Equal(t, http.StatusForbidden, s.do(t, vendor2, http.MethodGet, ruleURL, nil).Code)

	off := false
	w = s.do(t, vendor1, http.MethodPatch, ruleURL+"/active", SetActiveRequest{Active: &off})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[RuleResponse](t, w).Rule.Active)

	bad := rule
	bad.Capacity = 0
	w = s.do(t, vendor1, http.MethodPut, ruleURL, bad)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decode[ErrorResponse](t, w).Code)

	assert.Equal(t, http.StatusNoContent, s.do(t, vendor1, http.MethodDelete, ruleURL, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, vendor1, http.MethodGet, ruleURL, nil).Code)
}

func TestVendorSlotLifecycle(t *testing.T) {
	s := newTestServer(t, Options{})
	s.seedSlot(t, "s1", 3)
	s.seedSlot(t, "s2", 3)

	assert.Equal(t, http.StatusForbidden, s.do(t, vendor2, http.MethodPost, "/vendor/slots/s1/block", nil).Code)

	w := s.do(t, vendor1, http.MethodPost, "/vendor/slots/s1/block", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.SlotBlocked, decode[SlotResponse](t, w).Status)

	w = s.do(t, alice, http.MethodPost, "/slots/s1/bookings", CreateBookingRequest{Guests: 1})
	assert.Equal(t, "slot_unavailable", decode[ErrorResponse](t, w).Code)

	require.Equal(t, http.StatusOK, s.do(t, vendor1, http.MethodPost, "/vendor/slots/s1/unblock", nil).Code)

	require.Equal(t, http.StatusCreated, s.do(t, alice, http.MethodPost, "/slots/s2/bookings", CreateBookingRequest{Guests: 2}).Code)
	w = s.do(t, vendor1, http.MethodPost, "/vendor/slots/s2/cancel", CancelRequest{Message: "storm warning"})
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[CancelSlotResponse](t, w)
	assert.Equal(t, 1, res.Cancelled)
	assert.Equal(t, domain.SlotCancelled, res.Slot.Status)
}

func TestPaymentWebhook(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(t, anon, http.MethodPost, "/webhooks/payments", PaymentWebhookRequest{Handle: "pi_x", Status: "refunded"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, anon, http.MethodPost, "/webhooks/payments", PaymentWebhookRequest{Status: "paid"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, anon, http.MethodPost, "/webhooks/payments", PaymentWebhookRequest{Handle: "pi_x", Status: "paid"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "booking_not_found", decode[ErrorResponse](t, w).Code)
}

func TestPaymentWebhookConfirmsBooking(t *testing.T) {
	s := newTestServer(t, Options{})
	s.seedSlot(t, "s1", 3)

	w := s.do(t, alice, http.MethodPost, "/slots/s1/bookings", CreateBookingRequest{Guests: 1, AmountCents: 100})
	require.Equal(t, http.StatusCreated, w.Code)
	b := decode[domain.Booking](t, w)

	w = s.do(t, anon, http.MethodPost, "/webhooks/payments", PaymentWebhookRequest{BookingID: b.ID, Status: "paid"})
	require.Equal(t, http.StatusOK, w.Code)
	confirmed := decode[domain.Booking](t, w)
	assert.Equal(t, domain.BookingConfirmed, confirmed.Status)
	assert.Equal(t, domain.PaymentPaid, confirmed.PaymentStatus)
}

func TestRunJob(t *testing.T) {
	s := newTestServer(t, Options{})

	assert.Equal(t, http.StatusForbidden, s.do(t, vendor1, http.MethodPost, "/admin/jobs/generate-slots", nil).Code)

	w := s.do(t, operator, http.MethodPost, "/admin/jobs/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "unknown_job", decode[ErrorResponse](t, w).Code)

	w = s.do(t, operator, http.MethodPost, "/admin/jobs/expire-waitlist", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "expire-waitlist", decode[JobResponse](t, w).Job)
}

func TestETagMatches(t *testing.T) {
	tag := `W/"abc"`
	assert.True(t, etagMatches(`W/"abc"`, tag))
	assert.True(t, etagMatches(`"abc"`, tag))
	assert.True(t, etagMatches(`"x", W/"abc"`, tag))
	assert.True(t, etagMatches(`*`, tag))
	assert.False(t, etagMatches(`"abd"`, tag))
	assert.False(t, etagMatches("", tag))
}

func TestWebhooksRequireSecret(t *testing.T) {
	s := newTestServer(t, Options{WebhookSecret: "s3cret"})
	s.seedSlot(t, "s1", 3)

	w := s.do(t, alice, http.MethodPost, "/slots/s1/bookings", CreateBookingRequest{Guests: 1, AmountCents: 100})
	require.Equal(t, http.StatusCreated, w.Code)
	b := decode[domain.Booking](t, w)
	paid := PaymentWebhookRequest{BookingID: b.ID, Status: "paid"}

	w = s.do(t, anon, http.MethodPost, "/webhooks/payments", paid)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(t, anon, http.MethodPost, "/webhooks/payments", paid, HeaderWebhookSecret, "guess")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(t, anon, http.MethodPost, "/webhooks/refunds", RefundWebhookRequest{BookingID: b.ID})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	got, err := s.svcs.Booking.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, got.Status)

	w = s.do(t, anon, http.MethodPost, "/webhooks/payments", paid, HeaderWebhookSecret, "s3cret")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.BookingConfirmed, decode[domain.Booking](t, w).Status)
}

func TestContentionIsRetryable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	respondErr(c, fmt.Errorf("service.booking.CreateBooking:%w", repository.ErrContention))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, "busy", decode[ErrorResponse](t, w).Code)
}
