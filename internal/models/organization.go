package models

import "time"

// OrganizationType enumerates supported organization categories.
type OrganizationType string

const (
	OrgTypeClinic   OrganizationType = "CLINIC"
	OrgTypeHospital OrganizationType = "HOSPITAL"
	OrgTypeLab      OrganizationType = "LAB"
	OrgTypePharmacy OrganizationType = "PHARMACY"
)

// Organization represents a healthcare organization application.
type Organization struct {
	ID                 string           `db:"id" json:"id"`
	Name               string           `db:"name" json:"name"`
	Email              string           `db:"email" json:"email"`
	Phone              string           `db:"phone" json:"phone"`
	Type               OrganizationType `db:"type" json:"type"`
	RegistrationNumber string           `db:"registration_number" json:"registration_number"`
	Address            string           `db:"address" json:"address"`

	ApprovalFields

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// OrganizationFilter constrains organization review-queue listings.
type OrganizationFilter struct {
	Status   *ApprovalStatus
	Type     *OrganizationType
	Search   string
	Page     int
	PageSize int
}
