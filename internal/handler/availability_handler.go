package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/service"
	"github.com/noah-isme/tutorhub-api/pkg/response"
)

type availabilityService interface {
	Resolve(ctx context.Context, teacherID string, q service.DateRangeQuery) ([]models.DateAvailability, error)
	Slots(ctx context.Context, teacherID string, q service.SlotQuery) ([]models.DaySlots, error)
	ListWeeklyRules(ctx context.Context, teacherID string) ([]models.WeeklyRule, error)
	CreateWeeklyRule(ctx context.Context, teacherID string, req service.WeeklyRuleRequest) (*models.WeeklyRule, error)
	DeleteWeeklyRule(ctx context.Context, teacherID, ruleID string) error
	ListOverrides(ctx context.Context, teacherID string, q service.DateRangeQuery) ([]models.OverrideRule, error)
	UpsertOverride(ctx context.Context, teacherID string, req service.OverrideRequest) (*models.OverrideRule, error)
	DeleteOverride(ctx context.Context, teacherID, date string) error
}

// AvailabilityHandler exposes teacher availability management and public availability queries.
type AvailabilityHandler struct {
	service availabilityService
}

// NewAvailabilityHandler builds a new handler.
func NewAvailabilityHandler(service availabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: service}
}

// Resolve godoc
// @Summary Resolve a teacher's availability per date
// @Tags Availability
// @Produce json
// @Param id path string true "Teacher ID"
// @Param start query string true "First date (YYYY-MM-DD)"
// @Param end query string true "Last date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /teachers/{id}/availability [get]
func (h *AvailabilityHandler) Resolve(c *gin.Context) {
	var q service.DateRangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, invalidBody(err, "date range"))
		return
	}
	days, err := h.service.Resolve(c.Request.Context(), c.Param("id"), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, days)
}

// Slots godoc
// @Summary List bookable slots of a teacher
// @Tags Availability
// @Produce json
// @Param id path string true "Teacher ID"
// @Param start query string true "First date (YYYY-MM-DD)"
// @Param end query string true "Last date (YYYY-MM-DD)"
// @Param duration query int false "Slot length in minutes"
// @Param course_id query string false "Use the course duration"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/slots [get]
func (h *AvailabilityHandler) Slots(c *gin.Context) {
	var q service.SlotQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, invalidBody(err, "slot query"))
		return
	}
	days, err := h.service.Slots(c.Request.Context(), c.Param("id"), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, days)
}

// ListWeeklyRules godoc
// @Summary List my weekly availability
// @Tags Availability
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /availability/weekly [get]
func (h *AvailabilityHandler) ListWeeklyRules(c *gin.Context) {
	rules, err := h.service.ListWeeklyRules(c.Request.Context(), actorFromContext(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rules)
}

// CreateWeeklyRule godoc
// @Summary Add a weekly availability window
// @Tags Availability
// @Accept json
// @Produce json
// @Param payload body service.WeeklyRuleRequest true "Weekly rule"
// @Success 201 {object} response.Envelope
// @Router /availability/weekly [post]
func (h *AvailabilityHandler) CreateWeeklyRule(c *gin.Context) {
	var req service.WeeklyRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidBody(err, "weekly rule payload"))
		return
	}
	rule, err := h.service.CreateWeeklyRule(c.Request.Context(), actorFromContext(c).ID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rule)
}

// DeleteWeeklyRule godoc
// @Summary Remove a weekly availability window
// @Tags Availability
// @Param id path string true "Rule ID"
// @Success 204
// @Router /availability/weekly/{id} [delete]
func (h *AvailabilityHandler) DeleteWeeklyRule(c *gin.Context) {
	if err := h.service.DeleteWeeklyRule(c.Request.Context(), actorFromContext(c).ID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListOverrides godoc
// @Summary List my date overrides
// @Tags Availability
// @Produce json
// @Param start query string true "First date (YYYY-MM-DD)"
// @Param end query string true "Last date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /availability/overrides [get]
func (h *AvailabilityHandler) ListOverrides(c *gin.Context) {
	var q service.DateRangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, invalidBody(err, "date range"))
		return
	}
	overrides, err := h.service.ListOverrides(c.Request.Context(), actorFromContext(c).ID, q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, overrides)
}

// UpsertOverride godoc
// @Summary Set my availability for one date
// @Tags Availability
// @Accept json
// @Produce json
// @Param payload body service.OverrideRequest true "Override"
// @Success 200 {object} response.Envelope
// @Router /availability/overrides [put]
func (h *AvailabilityHandler) UpsertOverride(c *gin.Context) {
	var req service.OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidBody(err, "override payload"))
		return
	}
	override, err := h.service.UpsertOverride(c.Request.Context(), actorFromContext(c).ID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, override)
}

// DeleteOverride godoc
// @Summary Remove the override for a date
// @Tags Availability
// @Param date path string true "Date (YYYY-MM-DD)"
// @Success 204
// @Router /availability/overrides/{date} [delete]
func (h *AvailabilityHandler) DeleteOverride(c *gin.Context) {
	if err := h.service.DeleteOverride(c.Request.Context(), actorFromContext(c).ID, c.Param("date")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
