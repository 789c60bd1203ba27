package httpgin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/tripslot/internal/service"
	"github.com/kirinyoku/tripslot/internal/service/booking"
)

// @Summary  Create availability rule
// @Tags     vendor
// @Param    id   path  string       true  "Listing ID"
// @Param    req  body  RuleRequest  true  "rule"
// @Success  201  {object}  RuleResponse
// @Failure  400  {object}  ErrorResponse
// @Router   /vendor/listings/{id}/rules [post]
func handleCreateRule(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RuleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		res, err := svcs.Rules.Create(c.Request.Context(), req.toDomain(c.Param("id"), currentUser(c).ID))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, RuleResponse{Rule: *res.Rule, SlotsCreated: res.SlotsCreated})
	}
}

// @Summary  List listing rules
// @Tags     vendor
// @Param    id  path  string  true  "Listing ID"
// @Success  200  {array}  domain.AvailabilityRule
// @Router   /vendor/listings/{id}/rules [get]
func handleListRules(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svcs.Rules.ListByListing(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// @Summary  Get rule
// @Tags     vendor
// @Param    id  path  string  true  "Rule ID"
// @Success  200  {object}  domain.AvailabilityRule
// @Failure  404  {object}  ErrorResponse
// @Router   /vendor/rules/{id} [get]
func handleGetRule(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		rule, err := svcs.Rules.Get(c.Request.Context(), c.Param("id"), vendorScope(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, rule)
	}
}

// @Summary  Replace rule definition (existing slots are kept)
// @Tags     vendor
// @Param    id   path  string       true  "Rule ID"
// @Param    req  body  RuleRequest  true  "rule"
// @Success  200  {object}  RuleResponse
// @Router   /vendor/rules/{id} [put]
func handleUpdateRule(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RuleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		res, err := svcs.Rules.Update(c.Request.Context(), c.Param("id"), vendorScope(c), req.toDomain("", ""))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, RuleResponse{Rule: *res.Rule, SlotsCreated: res.SlotsCreated})
	}
}

// @Summary  Activate or deactivate rule
// @Tags     vendor
// @Param    id   path  string            true  "Rule ID"
// @Param    req  body  SetActiveRequest  true  "flag"
// @Success  200  {object}  RuleResponse
// @Router   /vendor/rules/{id}/active [patch]
func handleSetRuleActive(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		res, err := svcs.Rules.SetActive(c.Request.Context(), c.Param("id"), vendorScope(c), *req.Active)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, RuleResponse{Rule: *res.Rule, SlotsCreated: res.SlotsCreated})
	}
}

// @Summary  Delete rule and its unbooked slots
// @Tags     vendor
// @Param    id  path  string  true  "Rule ID"
// @Success  204
// @Failure  409  {object}  ErrorResponse  "rule_in_use"
// @Router   /vendor/rules/{id} [delete]
func handleDeleteRule(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svcs.Rules.Delete(c.Request.Context(), c.Param("id"), vendorScope(c)); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Generate rule slots now
// @Tags     vendor
// @Param    id  path  string  true  "Rule ID"
// @Success  200  {object}  GenerateResponse
// @Router   /vendor/rules/{id}/generate [post]
func handleGenerateRule(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := svcs.Rules.GenerateNow(c.Request.Context(), c.Param("id"), vendorScope(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, GenerateResponse{SlotsCreated: n})
	}
}

// @Summary  Block empty slot
// @Tags     vendor
// @Param    id  path  string  true  "Slot ID"
// @Success  200  {object}  SlotResponse
// @Failure  409  {object}  ErrorResponse  "slot_has_bookings"
// @Router   /vendor/slots/{id}/block [post]
func handleBlockSlot(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := svcs.Ledger.Block(c.Request.Context(), c.Param("id"), vendorScope(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toSlotResponse(*s))
	}
}

// @Summary  Unblock slot
// @Tags     vendor
// @Param    id  path  string  true  "Slot ID"
// @Success  200  {object}  SlotResponse
// @Router   /vendor/slots/{id}/unblock [post]
func handleUnblockSlot(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := svcs.Ledger.Unblock(c.Request.Context(), c.Param("id"), vendorScope(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toSlotResponse(*s))
	}
}

// @Summary  Cancel slot with all its bookings
// @Tags     vendor
// @Param    id   path  string         true   "Slot ID"
// @Param    req  body  CancelRequest  false  "reason"
// @Success  200  {object}  CancelSlotResponse
// @Router   /vendor/slots/{id}/cancel [post]
func handleCancelSlot(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CancelRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err.Error())
				return
			}
		}

		res, err := svcs.Booking.CancelSlot(c.Request.Context(), c.Param("id"), booking.SlotCancelInput{
			VendorID: vendorScope(c),
			Reason:   req.Reason,
			Message:  req.Message,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, CancelSlotResponse{
			Slot:            toSlotResponse(*res.Slot),
			Cancelled:       res.Cancelled,
			RefundsQueued:   res.RefundsQueued,
			WaitlistExpired: res.WaitlistExpired,
		})
	}
}
