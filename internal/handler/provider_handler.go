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

// ProviderHandler exposes the provider review queue and decisions.
type ProviderHandler struct {
	reviews   *service.ReviewService
	approvals *service.ApprovalService
}

// NewProviderHandler constructs ProviderHandler.
func NewProviderHandler(reviews *service.ReviewService, approvals *service.ApprovalService) *ProviderHandler {
	return &ProviderHandler{reviews: reviews, approvals: approvals}
}

// List godoc
// @Summary List providers
// @Tags Providers
// @Produce json
// @Param status query string false "Filter by approval status"
// @Param specialty query string false "Filter by specialty"
// @Param search query string false "Search by name or email"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /providers [get]
func (h *ProviderHandler) List(c *gin.Context) {
	var filter models.ProviderFilter
	if status := c.Query("status"); status != "" {
		v := models.ApprovalStatus(status)
		filter.Status = &v
	}
	filter.Specialty = c.Query("specialty")
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	page, err := h.reviews.ListProviders(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, page.Items, &page.Pagination)
}

// Get godoc
// @Summary Get provider detail
// @Tags Providers
// @Produce json
// @Param id path string true "Provider ID"
// @Success 200 {object} response.Envelope
// @Router /providers/{id} [get]
func (h *ProviderHandler) Get(c *gin.Context) {
	provider, err := h.reviews.GetProvider(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, provider, nil)
}

// Approve godoc
// @Summary Approve a pending provider
// @Tags Providers
// @Produce json
// @Param id path string true "Provider ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /providers/{id}/approve [post]
func (h *ProviderHandler) Approve(c *gin.Context) {
	decision, err := h.approvals.Approve(c.Request.Context(), models.KindProvider, c.Param("id"), claimsFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decisionResponse(decision), nil)
}

// Reject godoc
// @Summary Reject a pending provider
// @Tags Providers
// @Accept json
// @Produce json
// @Param id path string true "Provider ID"
// @Param payload body dto.RejectRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /providers/{id}/reject [post]
func (h *ProviderHandler) Reject(c *gin.Context) {
	var req dto.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	decision, err := h.approvals.Reject(c.Request.Context(), models.KindProvider, c.Param("id"), req.Reason, claimsFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decisionResponse(decision), nil)
}

func decisionResponse(d *models.Decision) *dto.DecisionResponse {
	if d == nil {
		return nil
	}
	return &dto.DecisionResponse{
		EntityID:  d.EntityID,
		Kind:      d.Kind,
		Status:    d.Status,
		DecidedBy: d.ActorID,
		DecidedAt: d.DecidedAt,
		Reason:    d.Reason,
	}
}
