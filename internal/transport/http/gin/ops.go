package httpgin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/tripslot/internal/payment"
	"github.com/kirinyoku/tripslot/internal/service"
)

// @Summary  Payment outcome callback
// @Tags     webhooks
// @Param    req  body  PaymentWebhookRequest  true  "outcome"
// @Success  200  {object}  domain.Booking
// @Failure  404  {object}  ErrorResponse
// @Param    X-Webhook-Secret  header  string  false  "shared secret"
// @Failure  401  {object}  ErrorResponse
// @Router   /webhooks/payments [post]
func handlePaymentWebhook(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PaymentWebhookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if req.Handle == "" && req.BookingID == "" {
			badRequest(c, "handle or booking_id required")
			return
		}

		b, err := svcs.Booking.HandlePaymentResult(c.Request.Context(), payment.Result{
			Handle:    req.Handle,
			BookingID: req.BookingID,
			Succeeded: req.Status == "paid",
			Reason:    req.Reason,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  Refund processed callback
// @Tags     webhooks
// @Param    req  body  RefundWebhookRequest  true  "booking"
// @Success  200  {object}  domain.Booking
// @Param    X-Webhook-Secret  header  string  false  "shared secret"
// @Router   /webhooks/refunds [post]
func handleRefundWebhook(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RefundWebhookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		b, err := svcs.Booking.MarkRefundProcessed(c.Request.Context(), req.BookingID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  Run a maintenance job now
// @Tags     admin
// @Param    name  path  string  true  "generate-slots | expire-waitlist | complete-slots | retry-refunds"
// @Success  200  {object}  JobResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /admin/jobs/{name} [post]
func handleRunJob(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sum, err := svcs.Jobs.Run(c.Request.Context(), c.Param("name"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toJobResponse(sum))
	}
}
