package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medibook/admin-api/internal/dto"
	"github.com/medibook/admin-api/internal/service"
	appErrors "github.com/medibook/admin-api/pkg/errors"
	"github.com/medibook/admin-api/pkg/response"
)

// OverrideHandler exposes time-boxed account override sessions.
type OverrideHandler struct {
	service *service.OverrideService
}

// NewOverrideHandler constructs OverrideHandler.
func NewOverrideHandler(svc *service.OverrideService) *OverrideHandler {
	return &OverrideHandler{service: svc}
}

// Initiate godoc
// @Summary Start an account override session
// @Description Begin acting on behalf of a non-admin account for a bounded period
// @Tags Override
// @Accept json
// @Produce json
// @Param payload body dto.InitiateOverrideRequest true "Override payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /override [post]
func (h *OverrideHandler) Initiate(c *gin.Context) {
	var req dto.InitiateOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	sess, err := h.service.Initiate(c.Request.Context(), req, claimsFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.NewOverrideSessionResponse(sess))
}

// GetActive godoc
// @Summary Get the current override session
// @Tags Override
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /override [get]
func (h *OverrideHandler) GetActive(c *gin.Context) {
	sess, err := h.service.GetActive(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewOverrideSessionResponse(sess), nil)
}

// End godoc
// @Summary End the current override session
// @Tags Override
// @Produce json
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /override [delete]
func (h *OverrideHandler) End(c *gin.Context) {
	if err := h.service.End(c.Request.Context(), claimsFromContext(c), requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
