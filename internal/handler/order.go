package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/redis"
)

// OrderHandler handles order-side HTTP requests.
type OrderHandler struct {
	cache *redis.CacheStore
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(cache *redis.CacheStore) *OrderHandler {
	return &OrderHandler{cache: cache}
}

// Status handles GET /v1/orders/:orderId/status
//
// The status here is the dispatch view of the order: assignment and
// courier progress. The system of record for the order itself lives
// upstream.
func (h *OrderHandler) Status(c *gin.Context) {
	orderID := c.Param("orderId")
	if orderID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "order id required"})
		return
	}

	status, err := h.cache.GetOrderStatus(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "store unavailable"})
		return
	}
	if status == "" {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "order not tracked"})
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"orderId": orderID, "status": status})
}
