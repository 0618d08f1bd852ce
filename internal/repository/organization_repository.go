package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medibook/admin-api/internal/models"
)

const organizationColumns = `id, name, email, phone, type, registration_number, address,
       status, approved_at, approved_by, rejected_at, rejection_reason, created_at, updated_at`

// OrganizationRepository provides database access for organization applications.
type OrganizationRepository struct {
	db *sqlx.DB
}

// NewOrganizationRepository creates a new instance of OrganizationRepository.
func NewOrganizationRepository(db *sqlx.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// Kind identifies the approvable family served by this repository.
func (r *OrganizationRepository) Kind() models.EntityKind {
	return models.KindOrganization
}

// FindByID returns an organization application by identifier.
func (r *OrganizationRepository) FindByID(ctx context.Context, id string) (*models.Organization, error) {
	query := fmt.Sprintf(`SELECT %s FROM organizations WHERE id = $1 LIMIT 1`, organizationColumns)
	var org models.Organization
	if err := r.db.GetContext(ctx, &org, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find organization by id: %w", err)
	}
	return &org, nil
}

// GetStatus fetches only the approval status for the given organization.
func (r *OrganizationRepository) GetStatus(ctx context.Context, id string) (models.ApprovalStatus, error) {
	return fetchStatus(ctx, r.db, "organizations", id)
}

// CompareAndSwapStatus transitions the organization only while its status
// still matches expected. Returns sql.ErrNoRows when the swap did not occur.
func (r *OrganizationRepository) CompareAndSwapStatus(ctx context.Context, id string, expected models.ApprovalStatus, upd ApprovalUpdate) error {
	return compareAndSwapStatus(ctx, r.db, "organizations", id, expected, upd)
}

// Create inserts a new organization application awaiting review.
func (r *OrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	if org.Status == "" {
		org.Status = models.StatusPendingApproval
	}
	now := time.Now().UTC()
	if org.CreatedAt.IsZero() {
		org.CreatedAt = now
	}
	org.UpdatedAt = now

	const query = `INSERT INTO organizations
	(id, name, email, phone, type, registration_number, address, status, created_at, updated_at)
	VALUES (:id, :name, :email, :phone, :type, :registration_number, :address, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, org); err != nil {
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

// List returns organization applications based on filters with total count.
func (r *OrganizationRepository) List(ctx context.Context, filter models.OrganizationFilter) ([]models.Organization, int, error) {
	baseQuery := `FROM organizations WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, *filter.Type)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(email) LIKE $%d OR LOWER(name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", organizationColumns, baseQuery, pageSize, offset)

	var orgs []models.Organization
	if err := r.db.SelectContext(ctx, &orgs, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list organizations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count organizations: %w", err)
	}

	return orgs, total, nil
}
