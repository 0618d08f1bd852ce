package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/medibook/admin-api/internal/dto"
	"github.com/medibook/admin-api/internal/models"
	"github.com/medibook/admin-api/internal/service"
	appErrors "github.com/medibook/admin-api/pkg/errors"
	"github.com/medibook/admin-api/pkg/response"
)

// OrganizationHandler exposes the organization review queue and decisions.
type OrganizationHandler struct {
	reviews   *service.ReviewService
	approvals *service.ApprovalService
}

// NewOrganizationHandler constructs OrganizationHandler.
func NewOrganizationHandler(reviews *service.ReviewService, approvals *service.ApprovalService) *OrganizationHandler {
	return &OrganizationHandler{reviews: reviews, approvals: approvals}
}

// List godoc
// @Summary List organizations
// @Tags Organizations
// @Produce json
// @Param status query string false "Filter by approval status"
// @Param type query string false "Filter by organization type"
// @Param search query string false "Search by name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /organizations [get]
func (h *OrganizationHandler) List(c *gin.Context) {
	var filter models.OrganizationFilter
	if status := c.Query("status"); status != "" {
		v := models.ApprovalStatus(status)
		filter.Status = &v
	}
	if orgType := c.Query("type"); orgType != "" {
		v := models.OrganizationType(orgType)
		filter.Type = &v
	}
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	page, err := h.reviews.ListOrganizations(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, page.Items, &page.Pagination)
}

// Get godoc
// @Summary Get organization detail
// @Tags Organizations
// @Produce json
// @Param id path string true "Organization ID"
// @Success 200 {object} response.Envelope
// @Router /organizations/{id} [get]
func (h *OrganizationHandler) Get(c *gin.Context) {
	org, err := h.reviews.GetOrganization(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, org, nil)
}

// Approve godoc
// @Summary Approve a pending organization
// @Tags Organizations
// @Produce json
// @Param id path string true "Organization ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /organizations/{id}/approve [post]
func (h *OrganizationHandler) Approve(c *gin.Context) {
	decision, err := h.approvals.Approve(c.Request.Context(), models.KindOrganization, c.Param("id"), claimsFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decisionResponse(decision), nil)
}

// Reject godoc
// @Summary Reject a pending organization
// @Tags Organizations
// @Accept json
// @Produce json
// @Param id path string true "Organization ID"
// @Param payload body dto.RejectRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /organizations/{id}/reject [post]
func (h *OrganizationHandler) Reject(c *gin.Context) {
	var req dto.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	decision, err := h.approvals.Reject(c.Request.Context(), models.KindOrganization, c.Param("id"), req.Reason, claimsFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decisionResponse(decision), nil)
}
