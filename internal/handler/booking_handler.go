package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/service"
	"github.com/noah-isme/tutorhub-api/pkg/response"
)

type bookingService interface {
	Create(ctx context.Context, studentID string, req service.CreateBookingRequest) (*models.Booking, error)
	List(ctx context.Context, actor service.Actor, q service.BookingQuery) ([]models.Booking, *models.Pagination, error)
	Get(ctx context.Context, actor service.Actor, id string) (*models.Booking, error)
	UpdateStatus(ctx context.Context, actor service.Actor, id string, req service.UpdateBookingStatusRequest) (*models.Booking, error)
}

// BookingHandler exposes booking endpoints.
type BookingHandler struct {
	service bookingService
}

// NewBookingHandler builds a new handler.
func NewBookingHandler(service bookingService) *BookingHandler {
	return &BookingHandler{service: service}
}

// Create godoc
// @Summary Request a lesson
// @Tags Bookings
// @Accept json
// @Produce json
// @Param payload body service.CreateBookingRequest true "Booking"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope "BOOKING_CONFLICT"
// @Failure 422 {object} response.Envelope "OUTSIDE_HOURS, DAY_UNAVAILABLE or NO_AVAILABILITY"
// @Router /bookings [post]
func (h *BookingHandler) Create(c *gin.Context) {
	var req service.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidBody(err, "booking payload"))
		return
	}
	booking, err := h.service.Create(c.Request.Context(), actorFromContext(c).ID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, booking)
}

// List godoc
// @Summary List my bookings
// @Tags Bookings
// @Produce json
// @Param status query string false "Status filter"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /bookings [get]
func (h *BookingHandler) List(c *gin.Context) {
	var q service.BookingQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, invalidBody(err, "booking filter"))
		return
	}
	bookings, pagination, err := h.service.List(c.Request.Context(), actorFromContext(c), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Page(c, bookings, pagination)
}

// Get godoc
// @Summary Get a booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id} [get]
func (h *BookingHandler) Get(c *gin.Context) {
	booking, err := h.service.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, booking)
}

// UpdateStatus godoc
// @Summary Change a booking's status
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body service.UpdateBookingStatusRequest true "New status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "INVALID_TRANSITION"
// @Router /bookings/{id}/status [patch]
func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	var req service.UpdateBookingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidBody(err, "status payload"))
		return
	}
	booking, err := h.service.UpdateStatus(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, booking)
}
