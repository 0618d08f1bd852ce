package dto

import (
	"time"

	"github.com/medibook/admin-api/internal/models"
)

// InitiateOverrideRequest starts a time-boxed account override session.
type InitiateOverrideRequest struct {
	TargetEmail     string `json:"target_email" validate:"required,email"`
	Reason          string `json:"reason" validate:"required"`
	DurationMinutes int    `json:"duration_minutes" validate:"required"`
}

// OverrideSessionResponse exposes the live session to the caller.
type OverrideSessionResponse struct {
	TargetUserID    string    `json:"target_user_id"`
	TargetUserEmail string    `json:"target_user_email"`
	Reason          string    `json:"reason"`
	StartedAt       time.Time `json:"started_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// NewOverrideSessionResponse maps the domain session onto the response shape.
func NewOverrideSessionResponse(s *models.OverrideSession) *OverrideSessionResponse {
	if s == nil {
		return nil
	}
	return &OverrideSessionResponse{
		TargetUserID:    s.TargetUserID,
		TargetUserEmail: s.TargetUserEmail,
		Reason:          s.Reason,
		StartedAt:       s.StartedAt,
		ExpiresAt:       s.ExpiresAt,
	}
}
