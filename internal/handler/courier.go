package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/domain"
	"dispatch/internal/middleware"
	"dispatch/internal/service"
)

// CourierHandler handles HTTP requests from the courier app.
type CourierHandler struct {
	courierService  *service.CourierService
	offerService    *service.OfferService
	deliveryService *service.DeliveryService
}

// NewCourierHandler creates a new CourierHandler.
func NewCourierHandler(
	courierService *service.CourierService,
	offerService *service.OfferService,
	deliveryService *service.DeliveryService,
) *CourierHandler {
	return &CourierHandler{
		courierService:  courierService,
		offerService:    offerService,
		deliveryService: deliveryService,
	}
}

// UpdateLocationRequest is the HTTP request body for a position update.
type UpdateLocationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SetAvailabilityRequest is the HTTP request body for the availability toggle.
// Coordinates are optional; going available without them relies on the
// last known position still being fresh.
type SetAvailabilityRequest struct {
	Available bool     `json:"available"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// AdvanceDeliveryRequest is the HTTP request body for a status transition.
type AdvanceDeliveryRequest struct {
	Status string `json:"status"`
}

// UpdateLocation handles POST /v1/couriers/location
func (h *CourierHandler) UpdateLocation(c *gin.Context) {
	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	courierID := middleware.CourierID(c)
	if err := h.courierService.UpdateLocation(c.Request.Context(), courierID, req.Latitude, req.Longitude); err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

// SetAvailability handles POST /v1/couriers/availability
func (h *CourierHandler) SetAvailability(c *gin.Context) {
	var req SetAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	courierID := middleware.CourierID(c)
	if err := h.courierService.SetAvailability(c.Request.Context(), courierID, req.Available, req.Latitude, req.Longitude); err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"available": req.Available})
}

// ListOffers handles GET /v1/couriers/offers
func (h *CourierHandler) ListOffers(c *gin.Context) {
	courierID := middleware.CourierID(c)
	offers, err := h.offerService.ListPending(c.Request.Context(), courierID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"offers": offers, "count": len(offers)})
}

// AcceptOffer handles POST /v1/couriers/offers/:orderId/accept
func (h *CourierHandler) AcceptOffer(c *gin.Context) {
	courierID := middleware.CourierID(c)
	orderID := c.Param("orderId")

	delivery, err := h.offerService.Accept(c.Request.Context(), courierID, orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, delivery)
}

// RejectOffer handles POST /v1/couriers/offers/:orderId/reject
func (h *CourierHandler) RejectOffer(c *gin.Context) {
	courierID := middleware.CourierID(c)
	orderID := c.Param("orderId")

	if err := h.offerService.Reject(c.Request.Context(), courierID, orderID); err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"status": "rejected"})
}

// CurrentDelivery handles GET /v1/couriers/delivery
func (h *CourierHandler) CurrentDelivery(c *gin.Context) {
	courierID := middleware.CourierID(c)
	delivery, err := h.deliveryService.Current(c.Request.Context(), courierID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, delivery)
}

// AdvanceDelivery handles POST /v1/couriers/delivery/status
func (h *CourierHandler) AdvanceDelivery(c *gin.Context) {
	var req AdvanceDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	courierID := middleware.CourierID(c)
	delivery, err := h.deliveryService.Advance(c.Request.Context(), courierID, domain.DeliveryStatus(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, delivery)
}

// Earnings handles GET /v1/couriers/earnings?period=today|week|month
func (h *CourierHandler) Earnings(c *gin.Context) {
	courierID := middleware.CourierID(c)
	summary, err := h.courierService.Earnings(c.Request.Context(), courierID, c.Query("period"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, summary)
}
