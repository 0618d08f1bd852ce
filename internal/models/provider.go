package models

import "time"

// ProviderSpecialty is free-form but a few common values are used in filters.
type ProviderSpecialty string

// Provider represents a service-provider application awaiting admin review.
type Provider struct {
	ID            string  `db:"id" json:"id"`
	FullName      string  `db:"full_name" json:"full_name"`
	Email         string  `db:"email" json:"email"`
	Phone         string  `db:"phone" json:"phone"`
	Specialty     string  `db:"specialty" json:"specialty"`
	LicenseNumber string  `db:"license_number" json:"license_number"`
	OrganizationID *string `db:"organization_id" json:"organization_id,omitempty"`

	ApprovalFields

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ProviderFilter constrains provider review-queue listings.
type ProviderFilter struct {
	Status    *ApprovalStatus
	Specialty string
	Search    string
	Page      int
	PageSize  int
}
