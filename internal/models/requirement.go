package models

import "time"

// RequirementKey identifies the document a submission satisfies.
type RequirementKey string

const (
	RequirementMedicalLicense RequirementKey = "MEDICAL_LICENSE"
	RequirementInsurance      RequirementKey = "LIABILITY_INSURANCE"
	RequirementIdentity       RequirementKey = "IDENTITY_DOCUMENT"
	RequirementCertification  RequirementKey = "BOARD_CERTIFICATION"
)

// RequirementSubmission represents a compliance document uploaded by a provider.
type RequirementSubmission struct {
	ID          string         `db:"id" json:"id"`
	ProviderID  string         `db:"provider_id" json:"provider_id"`
	Requirement RequirementKey `db:"requirement" json:"requirement"`
	DocumentURL string         `db:"document_url" json:"document_url"`
	SubmittedAt time.Time      `db:"submitted_at" json:"submitted_at"`

	ApprovalFields

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// RequirementFilter constrains submission review-queue listings.
type RequirementFilter struct {
	Status      *ApprovalStatus
	ProviderID  string
	Requirement *RequirementKey
	Page        int
	PageSize    int
}
