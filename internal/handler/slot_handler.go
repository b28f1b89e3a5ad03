package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/promtec/orientation-api/internal/dto"
	"github.com/promtec/orientation-api/internal/models"
	"github.com/promtec/orientation-api/internal/service"
	appErrors "github.com/promtec/orientation-api/pkg/errors"
	"github.com/promtec/orientation-api/pkg/letter"
	"github.com/promtec/orientation-api/pkg/response"
)

// SlotHandler exposes slot endpoints.
type SlotHandler struct {
	slots       *service.SlotService
	enrollments *service.EnrollmentService
	letters     *letter.Builder
}

// NewSlotHandler constructs SlotHandler.
func NewSlotHandler(slots *service.SlotService, enrollments *service.EnrollmentService, letters *letter.Builder) *SlotHandler {
	return &SlotHandler{slots: slots, enrollments: enrollments, letters: letters}
}

// List godoc
// @Summary List slots
// @Tags Slots
// @Produce json
// @Param date query string false "Filter by date (YYYY-MM-DD)"
// @Param period query string false "Filter by time period"
// @Param department query string false "Filter by department"
// @Param genderCategory query string false "Filter by gender category"
// @Param locked query bool false "Filter by locked state"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /slots [get]
func (h *SlotHandler) List(c *gin.Context) {
	var filter models.SlotFilter
	if raw := c.Query("date"); raw != "" {
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date filter"))
			return
		}
		filter.Date = &date
	}
	filter.TimePeriod = models.TimePeriod(strings.ToUpper(c.Query("period")))
	filter.Department = models.Department(strings.ToUpper(c.Query("department")))
	filter.GenderCategory = models.GenderCategory(strings.ToUpper(c.Query("genderCategory")))
	if raw := c.Query("locked"); raw != "" {
		locked := raw == "true"
		filter.Locked = &locked
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "10")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	actor := actorFromContext(c)
	slots, pagination, err := h.slots.List(c.Request.Context(), filter, actor.IsAdmin)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, pagination)
}

// Get godoc
// @Summary Get a slot
// @Tags Slots
// @Produce json
// @Param id path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /slots/{id} [get]
func (h *SlotHandler) Get(c *gin.Context) {
	slot, err := h.slots.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// Create godoc
// @Summary Create a slot
// @Tags Slots
// @Accept json
// @Produce json
// @Param payload body service.CreateSlotRequest true "Slot payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /slots [post]
func (h *SlotHandler) Create(c *gin.Context) {
	var req service.CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	slot, err := h.slots.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// Update godoc
// @Summary Update a slot
// @Tags Slots
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param payload body service.UpdateSlotRequest true "Slot changes"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /slots/{id} [put]
func (h *SlotHandler) Update(c *gin.Context) {
	var req service.UpdateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	slot, err := h.slots.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// Delete godoc
// @Summary Delete a slot
// @Tags Slots
// @Produce json
// @Param id path string true "Slot ID"
// @Success 204
// @Security BearerAuth
// @Router /slots/{id} [delete]
func (h *SlotHandler) Delete(c *gin.Context) {
	if err := h.slots.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Confirm godoc
// @Summary Confirm a slot's attendee list
// @Tags Slots
// @Produce json
// @Param id path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /slots/{id}/confirm [post]
func (h *SlotHandler) Confirm(c *gin.Context) {
	summary, err := h.slots.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Capacity godoc
// @Summary Slot occupancy
// @Tags Slots
// @Produce json
// @Param id path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /slots/{id}/capacity [get]
func (h *SlotHandler) Capacity(c *gin.Context) {
	capacity, err := h.slots.Capacity(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, capacity, nil)
}

// Enrollments godoc
// @Summary List a slot's enrollments
// @Tags Slots
// @Produce json
// @Param id path string true "Slot ID"
// @Param waitingList query bool false "Filter by waiting list state"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /slots/{id}/enrollments [get]
func (h *SlotHandler) Enrollments(c *gin.Context) {
	var waitingList *bool
	if raw := c.Query("waitingList"); raw != "" {
		value := raw == "true"
		waitingList = &value
	}
	enrollments, err := h.enrollments.ListBySlot(c.Request.Context(), c.Param("id"), waitingList)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

// Letter godoc
// @Summary Download confirmation letters for a slot
// @Tags Slots
// @Produce application/pdf
// @Param id path string true "Slot ID"
// @Success 200 {file} binary
// @Security BearerAuth
// @Router /slots/{id}/letter [get]
func (h *SlotHandler) Letter(c *gin.Context) {
	summary, err := h.slots.ConfirmationPreview(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	pdf, err := h.letters.Render(*summary)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render letter"))
		return
	}
	filename := fmt.Sprintf("confirmation-%s.pdf", summary.Slot.Date.Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// Dates godoc
// @Summary Dates that have slots
// @Tags Slots
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /slots/dates [get]
func (h *SlotHandler) Dates(c *gin.Context) {
	dates, err := h.slots.AvailableDates(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	formatted := make([]string, 0, len(dates))
	for _, date := range dates {
		formatted = append(formatted, date.Format("2006-01-02"))
	}
	response.JSON(c, http.StatusOK, formatted, nil)
}

// Options godoc
// @Summary Accepted enum values for slot fields
// @Tags Slots
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /slots/options [get]
func (h *SlotHandler) Options(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.slots.EnumValues(), nil)
}

// Organization godoc
// @Summary Organization contact details
// @Tags Organization
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /organization [get]
func (h *SlotHandler) Organization(c *gin.Context) {
	org := h.slots.OrganizationInfo()
	response.JSON(c, http.StatusOK, dto.OrganizationInfo{
		ContactFirstName: org.ContactFirstName,
		ContactLastName:  org.ContactLastName,
		Telephone:        org.Telephone,
		Email:            org.Email,
	}, nil)
}
