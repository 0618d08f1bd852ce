package models

import "time"

// ApprovalStatus captures the shared review lifecycle for approvable entities.
// Providers and organizations persist the pending state as PENDING_APPROVAL,
// requirement submissions as PENDING; both feed the same transition logic.
type ApprovalStatus string

const (
	StatusPendingApproval ApprovalStatus = "PENDING_APPROVAL"
	StatusPending         ApprovalStatus = "PENDING"
	StatusApproved        ApprovalStatus = "APPROVED"
	StatusRejected        ApprovalStatus = "REJECTED"
)

// Pending reports whether the status still awaits a decision.
func (s ApprovalStatus) Pending() bool {
	return s == StatusPendingApproval || s == StatusPending
}

// Terminal reports whether no further engine-driven transition is defined.
func (s ApprovalStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// EntityKind identifies the approvable entity families.
type EntityKind string

const (
	KindProvider     EntityKind = "provider"
	KindOrganization EntityKind = "organization"
	KindRequirement  EntityKind = "requirement_submission"
)

// PendingStatus returns the storage spelling of the pending state for the kind.
func (k EntityKind) PendingStatus() ApprovalStatus {
	if k == KindRequirement {
		return StatusPending
	}
	return StatusPendingApproval
}

// Permission returns the permission required to decide on this kind.
func (k EntityKind) Permission() Permission {
	switch k {
	case KindOrganization:
		return PermApproveOrganizations
	case KindRequirement:
		return PermApproveRequirements
	default:
		return PermApproveProviders
	}
}

// Valid reports whether the kind is one of the supported entity families.
func (k EntityKind) Valid() bool {
	switch k {
	case KindProvider, KindOrganization, KindRequirement:
		return true
	}
	return false
}

// ApprovalFields holds the review columns shared by all approvable entities.
type ApprovalFields struct {
	Status          ApprovalStatus `db:"status" json:"status"`
	ApprovedAt      *time.Time     `db:"approved_at" json:"approved_at,omitempty"`
	ApprovedBy      *string        `db:"approved_by" json:"approved_by,omitempty"`
	RejectedAt      *time.Time     `db:"rejected_at" json:"rejected_at,omitempty"`
	RejectionReason *string        `db:"rejection_reason" json:"rejection_reason,omitempty"`
}

// Decision records the outcome applied by the approval engine.
type Decision struct {
	Kind      EntityKind     `json:"kind"`
	EntityID  string         `json:"entity_id"`
	Status    ApprovalStatus `json:"status"`
	ActorID   string         `json:"actor_id"`
	Reason    string         `json:"reason,omitempty"`
	DecidedAt time.Time      `json:"decided_at"`
}
