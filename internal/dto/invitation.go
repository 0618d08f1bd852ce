package dto

import (
	"time"

	"github.com/medibook/admin-api/internal/models"
)

// CreateInvitationRequest invites a new staff account by email.
type CreateInvitationRequest struct {
	Email string          `json:"email" validate:"required,email"`
	Role  models.UserRole `json:"role" validate:"required,oneof=ADMIN REVIEWER"`
}

// AcceptInvitationRequest completes an invitation and creates the account.
type AcceptInvitationRequest struct {
	Token    string `json:"token" validate:"required"`
	FullName string `json:"full_name" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

// InvitationResponse exposes invitation metadata with its derived status.
type InvitationResponse struct {
	ID        string                  `json:"id"`
	Email     string                  `json:"email"`
	Role      models.UserRole         `json:"role"`
	InvitedBy string                  `json:"invited_by"`
	Status    models.InvitationStatus `json:"status"`
	ExpiresAt time.Time               `json:"expires_at"`
	CreatedAt time.Time               `json:"created_at"`
}

// NewInvitationResponse derives the response shape at the given instant.
func NewInvitationResponse(inv *models.Invitation, now time.Time) InvitationResponse {
	return InvitationResponse{
		ID:        inv.ID,
		Email:     inv.Email,
		Role:      inv.Role,
		InvitedBy: inv.InvitedBy,
		Status:    inv.Status(now),
		ExpiresAt: inv.ExpiresAt,
		CreatedAt: inv.CreatedAt,
	}
}

// CreatedInvitationResponse additionally carries the one-time token.
// The token is only revealed at creation time.
type CreatedInvitationResponse struct {
	InvitationResponse
	Token string `json:"token"`
}
