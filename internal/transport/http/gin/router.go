package httpgin

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/metrics"
	"github.com/kirinyoku/tripslot/internal/notify"
	"github.com/kirinyoku/tripslot/internal/repository"
	redisrepo "github.com/kirinyoku/tripslot/internal/repository/redis"
	"github.com/kirinyoku/tripslot/internal/service"
	"github.com/kirinyoku/tripslot/internal/service/booking"
	"github.com/kirinyoku/tripslot/internal/service/ledger"
	"github.com/kirinyoku/tripslot/internal/service/rules"
	"github.com/kirinyoku/tripslot/internal/service/scheduler"
	"github.com/kirinyoku/tripslot/internal/service/waitlist"
)

// Options carries the optional HTTP collaborators. Nil fields disable the
// corresponding feature.
type Options struct {
	Idempotency *redisrepo.IdempotencyStore
	Limiter     *redisrepo.SlidingWindowLimiter
	Metrics     *metrics.Metrics

	// WebhookSecret is required in X-Webhook-Secret on /webhooks routes.
	WebhookSecret string
}

func NewRouter(
	svcs *service.Services,
	opts Options,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(
		gin.Recovery(),
		RequestIDMiddleware(),
		LoggingMiddleware(logger),
		CORS(),
		MetricsMiddleware(opts.Metrics),
		IdentityMiddleware(),
	)
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	// Public availability
	r.GET("/listings/:id/slots", handleListSlots(svcs))
	r.GET("/listings/:id/slots/stream", handleStreamSlots(svcs))
	r.GET("/slots/:id", handleGetSlot(svcs))

	// Customer API
	limited := RateLimit(opts.Limiter, logger)
	authed := r.Group("", RequireRole(RoleCustomer, RoleVendor))
	{
		authed.POST("/slots/:id/bookings", limited, handleCreateBooking(svcs, opts.Idempotency, logger))
		authed.POST("/slots/:id/checkout", limited, handleCheckout(svcs))
		authed.POST("/slots/:id/waitlist", handleJoinWaitlist(svcs))

		authed.GET("/bookings/:id", handleGetBooking(svcs))
		authed.POST("/bookings/:id/cancel", handleCancelBooking(svcs))

		authed.GET("/users/:id/bookings", handleListUserBookings(svcs))
		authed.GET("/users/:id/notifications", handleListNotifications(svcs))
		authed.POST("/notifications/:id/read", handleMarkNotificationRead(svcs))
	}

	// Vendor API
	vendor := r.Group("/vendor", RequireRole(RoleVendor))
	{
		vendor.POST("/listings/:id/rules", handleCreateRule(svcs))
		vendor.GET("/listings/:id/rules", handleListRules(svcs))
		vendor.GET("/rules/:id", handleGetRule(svcs))
		vendor.PUT("/rules/:id", handleUpdateRule(svcs))
		vendor.PATCH("/rules/:id/active", handleSetRuleActive(svcs))
		vendor.DELETE("/rules/:id", handleDeleteRule(svcs))
		vendor.POST("/rules/:id/generate", handleGenerateRule(svcs))

		vendor.POST("/slots/:id/block", handleBlockSlot(svcs))
		vendor.POST("/slots/:id/unblock", handleUnblockSlot(svcs))
		vendor.POST("/slots/:id/cancel", handleCancelSlot(svcs))
	}

	// Collaborator callbacks
	hooks := r.Group("/webhooks", RequireWebhookSecret(opts.WebhookSecret))
	{
		hooks.POST("/payments", handlePaymentWebhook(svcs))
		hooks.POST("/refunds", handleRefundWebhook(svcs))
	}

	admin := r.Group("/admin", RequireRole(RoleAdmin))
	{
		admin.POST("/jobs/:name", handleRunJob(svcs))
	}

	return r
}

// --- Helpers ---

// vendorScope is the vendor id ownership checks run against. Admins act
// on every vendor's resources.
func vendorScope(c *gin.Context) string {
	u := currentUser(c)
	if u.Role == RoleAdmin {
		return ""
	}
	return u.ID
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: "bad_request"})
}

type errMapping struct {
	target error
	status int
	code   string
	msg    string
}

// errTable is checked in order; the first match wins.
var errTable = []errMapping{
	// capacity and state conflicts
	{ledger.ErrCapacityExceeded, http.StatusConflict, "slot_full", "slot is full"},
	{ledger.ErrSlotClosed, http.StatusConflict, "slot_closed", "booking deadline has passed"},
	{ledger.ErrSlotUnavailable, http.StatusConflict, "slot_unavailable", "slot is not open for booking"},
	{waitlist.ErrSlotUnavailable, http.StatusConflict, "slot_unavailable", "slot is not open for booking"},
	{ledger.ErrSlotHasBookings, http.StatusConflict, "slot_has_bookings", "slot has bookings; cancel it instead"},
	{ledger.ErrInvalidTransition, http.StatusConflict, "invalid_transition", "slot status does not allow this change"},
	{booking.ErrSlotNotCancellable, http.StatusConflict, "invalid_transition", "slot is not active"},
	{booking.ErrNotCancellable, http.StatusConflict, "not_cancellable", "booking is already cancelled or completed"},
	{waitlist.ErrSlotNotFull, http.StatusConflict, "slot_not_full", "slot has availability; book it instead"},
	{waitlist.ErrAlreadyJoined, http.StatusConflict, "already_joined", "already on the waitlist"},
	{rules.ErrRuleInUse, http.StatusConflict, "rule_in_use", "rule has booked slots; deactivate it instead"},

	// ownership
	{ledger.ErrForbidden, http.StatusForbidden, "forbidden", "slot belongs to another vendor"},
	{booking.ErrSlotForbidden, http.StatusForbidden, "forbidden", "slot belongs to another vendor"},
	{booking.ErrForbidden, http.StatusForbidden, "forbidden", "booking belongs to another user"},
	{rules.ErrForbidden, http.StatusForbidden, "forbidden", "rule belongs to another vendor"},

	// missing
	{ledger.ErrSlotNotFound, http.StatusNotFound, "slot_not_found", "slot not found"},
	{booking.ErrSlotNotFound, http.StatusNotFound, "slot_not_found", "slot not found"},
	{waitlist.ErrSlotNotFound, http.StatusNotFound, "slot_not_found", "slot not found"},
	{booking.ErrBookingNotFound, http.StatusNotFound, "booking_not_found", "booking not found"},
	{rules.ErrRuleNotFound, http.StatusNotFound, "rule_not_found", "rule not found"},
	{notify.ErrNotificationNotFound, http.StatusNotFound, "notification_not_found", "notification not found"},
	{scheduler.ErrUnknownJob, http.StatusNotFound, "unknown_job", "unknown job"},

	// collaborators
	{booking.ErrPaymentUnavailable, http.StatusServiceUnavailable, "payment_unavailable", "payment could not be initiated, try again later"},
	{repository.ErrContention, http.StatusServiceUnavailable, "busy", "too many concurrent requests for this resource, try again"},
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var ve domain.ValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: ve.Error(), Code: "validation_error"})
		return
	}

	for _, m := range errTable {
		if errors.Is(err, m.target) {
			if m.status == http.StatusServiceUnavailable {
				c.Header("Retry-After", "1")
			}
			c.JSON(m.status, ErrorResponse{Error: m.msg, Code: m.code})
			return
		}
	}

	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: "internal"})
}
