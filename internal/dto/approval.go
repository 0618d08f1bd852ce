package dto

import (
	"time"

	"github.com/medibook/admin-api/internal/models"
)

// RejectRequest carries the mandatory rejection reason.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// DecisionResponse summarises an applied approval decision.
type DecisionResponse struct {
	EntityID  string                `json:"entity_id"`
	Kind      models.EntityKind     `json:"kind"`
	Status    models.ApprovalStatus `json:"status"`
	DecidedBy string                `json:"decided_by"`
	DecidedAt time.Time             `json:"decided_at"`
	Reason    string                `json:"reason,omitempty"`
}
