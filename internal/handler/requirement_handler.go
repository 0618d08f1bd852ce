package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/medibook/admin-api/internal/dto"
	"github.com/medibook/admin-api/internal/models"
	"github.com/medibook/admin-api/internal/service"
	appErrors "github.com/medibook/admin-api/pkg/errors"
	"github.com/medibook/admin-api/pkg/response"
)

// RequirementHandler exposes the compliance document review queue and decisions.
type RequirementHandler struct {
	reviews   *service.ReviewService
	approvals *service.ApprovalService
}

// NewRequirementHandler constructs RequirementHandler.
func NewRequirementHandler(reviews *service.ReviewService, approvals *service.ApprovalService) *RequirementHandler {
	return &RequirementHandler{reviews: reviews, approvals: approvals}
}

// List godoc
// @Summary List requirement submissions
// @Tags Requirements
// @Produce json
// @Param status query string false "Filter by approval status"
// @Param requirement query string false "Filter by requirement key"
// @Param providerId query string false "Filter by provider"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /requirements [get]
func (h *RequirementHandler) List(c *gin.Context) {
	var filter models.RequirementFilter
	if status := c.Query("status"); status != "" {
		v := models.ApprovalStatus(status)
		filter.Status = &v
	}
	if key := c.Query("requirement"); key != "" {
		v := models.RequirementKey(key)
		filter.Requirement = &v
	}
	filter.ProviderID = c.Query("providerId")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	page, err := h.reviews.ListRequirements(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, page.Items, &page.Pagination)
}

// Get godoc
// @Summary Get requirement submission detail
// @Tags Requirements
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /requirements/{id} [get]
func (h *RequirementHandler) Get(c *gin.Context) {
	submission, err := h.reviews.GetRequirement(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// Approve godoc
// @Summary Approve a pending requirement submission
// @Tags Requirements
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requirements/{id}/approve [post]
func (h *RequirementHandler) Approve(c *gin.Context) {
	decision, err := h.approvals.Approve(c.Request.Context(), models.KindRequirement, c.Param("id"), claimsFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decisionResponse(decision), nil)
}

// Reject godoc
// @Summary Reject a pending requirement submission
// @Tags Requirements
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.RejectRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requirements/{id}/reject [post]
func (h *RequirementHandler) Reject(c *gin.Context) {
	var req dto.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	decision, err := h.approvals.Reject(c.Request.Context(), models.KindRequirement, c.Param("id"), req.Reason, claimsFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decisionResponse(decision), nil)
}
