package httpgin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/tripslot/internal/domain"
	redisrepo "github.com/kirinyoku/tripslot/internal/repository/redis"
	"github.com/kirinyoku/tripslot/internal/service"
	"github.com/kirinyoku/tripslot/internal/service/booking"
)

// @Summary  Create booking (idempotent)
// @Tags     bookings
// @Param    id   path  string                true  "Slot ID"
// @Param    req  body  CreateBookingRequest  true  "payload"
// @Header   201  {string}  Idempotency-Key  "echo"
// @Success  201  {object}  domain.Booking
// @Failure  400  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse  "slot_full / slot_closed / slot_unavailable"
// @Failure  429  {object}  ErrorResponse  "rate limited"
// @Router   /slots/{id}/bookings [post]
func handleCreateBooking(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		ctx := c.Request.Context()
		slotID := c.Param("id")
		user := currentUser(c)

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(slotID, user.ID, idemKey)

			if replayed(c, idem, idemStorageKey, idemKey) {
				return
			}

			locked, err := idem.AcquireLock(ctx, idemStorageKey, 60*time.Second)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if replayed(c, idem, idemStorageKey, idemKey) {
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress", Code: "idempotency_in_progress"})
				return
			}
		}

		b, err := svcs.Booking.CreateBooking(ctx, booking.CreateInput{
			SlotID:      slotID,
			CustomerID:  user.ID,
			Guests:      req.Guests,
			AmountCents: req.AmountCents,
		})
		if err != nil {
			if idemStorageKey != "" {
				if rerr := idem.Release(ctx, idemStorageKey); rerr != nil {
					logger.Warn("idempotency release failed", slog.Any("error", rerr))
				}
			}
			respondErr(c, err)
			return
		}

		if idemStorageKey != "" {
			payload, _ := json.Marshal(b)
			if err := idem.SaveResult(ctx, idemStorageKey, payload); err != nil {
				logger.Warn("idempotency save failed", slog.Any("error", err))
			}
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, b)
	}
}

func replayed(c *gin.Context, idem *redisrepo.IdempotencyStore, storageKey, idemKey string) bool {
	payload, ok, err := idem.GetResult(c.Request.Context(), storageKey)
	if err != nil || !ok {
		return false
	}
	c.Header("Idempotency-Key", idemKey)
	c.Data(http.StatusCreated, "application/json; charset=utf-8", payload)
	return true
}

// @Summary  Create booking and payment intent
// @Tags     bookings
// @Param    id   path  string                true  "Slot ID"
// @Param    req  body  CreateBookingRequest  true  "payload"
// @Success  201  {object}  CheckoutResponse
// @Failure  503  {object}  ErrorResponse  "payment_unavailable"
// @Router   /slots/{id}/checkout [post]
func handleCheckout(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		res, err := svcs.Booking.Checkout(c.Request.Context(), booking.CreateInput{
			SlotID:      c.Param("id"),
			CustomerID:  currentUser(c).ID,
			Guests:      req.Guests,
			AmountCents: req.AmountCents,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CheckoutResponse{
			Booking:       *res.Booking,
			PaymentHandle: res.Intent.Handle,
			ClientSecret:  res.Intent.ClientSecret,
		})
	}
}

// @Summary  Join slot waitlist
// @Tags     waitlist
// @Param    id   path  string               true   "Slot ID"
// @Param    req  body  JoinWaitlistRequest  false  "contact"
// @Success  201  {object}  domain.WaitlistEntry
// @Failure  409  {object}  ErrorResponse  "slot_not_full / already_joined"
// @Router   /slots/{id}/waitlist [post]
func handleJoinWaitlist(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req JoinWaitlistRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err.Error())
				return
			}
		}

		user := currentUser(c)
		email := req.Email
		if email == "" {
			email = user.Email
		}

		entry, err := svcs.Waitlist.Join(c.Request.Context(), c.Param("id"), user.ID, email)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, entry)
	}
}

// @Summary  Get booking
// @Tags     bookings
// @Param    id  path  string  true  "Booking ID"
// @Success  200  {object}  domain.Booking
// @Failure  404  {object}  ErrorResponse
// @Router   /bookings/{id} [get]
func handleGetBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		b, err := svcs.Booking.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}

		u := currentUser(c)
		if u.Role != RoleAdmin && u.ID != b.CustomerID && u.ID != b.VendorID {
			respondErr(c, booking.ErrForbidden)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  Cancel booking
// @Tags     bookings
// @Param    id   path  string         true   "Booking ID"
// @Param    req  body  CancelRequest  false  "reason"
// @Success  200  {object}  domain.Booking
// @Router   /bookings/{id}/cancel [post]
func handleCancelBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CancelRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err.Error())
				return
			}
		}

		u := currentUser(c)
		in := booking.CancelInput{
			Actor:   domain.ActorCustomer,
			ActorID: u.ID,
			Reason:  req.Reason,
			Message: req.Message,
		}
		switch u.Role {
		case RoleVendor:
			in.Actor = domain.ActorVendor
		case RoleAdmin:
			in.Actor = domain.ActorSystem
		}

		b, err := svcs.Booking.CancelBooking(c.Request.Context(), c.Param("id"), in)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  List user bookings
// @Tags     bookings
// @Param    id  path  string  true  "User ID"
// @Success  200  {array}  domain.Booking
// @Router   /users/{id}/bookings [get]
func handleListUserBookings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := selfOrAdmin(c)
		if !ok {
			return
		}
		list, err := svcs.Booking.ListByCustomer(c.Request.Context(), userID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// @Summary  List user notifications, newest first
// @Tags     notifications
// @Param    id     path   string  true   "User ID"
// @Param    limit  query  int     false  "max items"
// @Success  200  {array}  domain.Notification
// @Router   /users/{id}/notifications [get]
func handleListNotifications(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := selfOrAdmin(c)
		if !ok {
			return
		}
		list, err := svcs.Notifications.List(c.Request.Context(), userID, parseIntDefault(c.Query("limit"), 50))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// @Summary  Mark notification read
// @Tags     notifications
// @Param    id  path  string  true  "Notification ID"
// @Success  204
// @Router   /notifications/{id}/read [post]
func handleMarkNotificationRead(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svcs.Notifications.MarkRead(c.Request.Context(), c.Param("id"), currentUser(c).ID); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func selfOrAdmin(c *gin.Context) (string, bool) {
	id := c.Param("id")
	u := currentUser(c)
	if u.Role != RoleAdmin && u.ID != id {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "cannot read another user's data", Code: "forbidden"})
		return "", false
	}
	return id, true
}
