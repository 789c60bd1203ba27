package httpgin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/tripslot/internal/service"
)

const streamPing = 15 * time.Second

// @Summary  List listing slots
// @Tags     availability
// @Param    id    path   string  true   "Listing ID"
// @Param    from  query  string  false  "YYYY-MM-DD"
// @Param    to    query  string  false  "YYYY-MM-DD"
// @Success  200  {array}  SlotResponse
// @Router   /listings/{id}/slots [get]
func handleListSlots(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		slots, err := svcs.Ledger.ListSlots(c.Request.Context(), c.Param("id"), c.Query("from"), c.Query("to"))
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, toSlotResponses(slots), "public, max-age=5")
	}
}

// @Summary  Get slot
// @Tags     availability
// @Param    id  path  string  true  "Slot ID"
// @Success  200  {object}  SlotResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /slots/{id} [get]
func handleGetSlot(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := svcs.Ledger.GetSlot(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, toSlotResponse(*s), "public, max-age=5")
	}
}

// @Summary  Stream slot changes for a listing (SSE)
// @Tags     availability
// @Produce  text/event-stream
// @Param    id  path  string  true  "Listing ID"
// @Success  200
// @Router   /listings/{id}/slots/stream [get]
func handleStreamSlots(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		changes, cancel := svcs.Ledger.Hub().Subscribe(c.Param("id"))
		defer cancel()

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Status(http.StatusOK)
		c.Writer.Flush()

		ping := time.NewTicker(streamPing)
		defer ping.Stop()

		for {
			select {
			case <-c.Request.Context().Done():
				return
			case ch, ok := <-changes:
				if !ok {
					return
				}
				c.SSEvent("slot", ch)
				c.Writer.Flush()
			case <-ping.C:
				c.SSEvent("ping", time.Now().Unix())
				c.Writer.Flush()
			}
		}
	}
}
