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

const providerColumns = `id, full_name, email, phone, specialty, license_number, organization_id,
       status, approved_at, approved_by, rejected_at, rejection_reason, created_at, updated_at`

// ProviderRepository provides database access for provider applications.
type ProviderRepository struct {
	db *sqlx.DB
}

// NewProviderRepository creates a new instance of ProviderRepository.
func NewProviderRepository(db *sqlx.DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

// Kind identifies the approvable family served by this repository.
func (r *ProviderRepository) Kind() models.EntityKind {
	return models.KindProvider
}

// FindByID returns a provider application by identifier.
func (r *ProviderRepository) FindByID(ctx context.Context, id string) (*models.Provider, error) {
	query := fmt.Sprintf(`SELECT %s FROM providers WHERE id = $1 LIMIT 1`, providerColumns)
	var provider models.Provider
	if err := r.db.GetContext(ctx, &provider, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find provider by id: %w", err)
	}
	return &provider, nil
}

// GetStatus fetches only the approval status for the given provider.
func (r *ProviderRepository) GetStatus(ctx context.Context, id string) (models.ApprovalStatus, error) {
	return fetchStatus(ctx, r.db, "providers", id)
}

// CompareAndSwapStatus transitions the provider only while its status still
// matches expected. Returns sql.ErrNoRows when the swap did not occur.
func (r *ProviderRepository) CompareAndSwapStatus(ctx context.Context, id string, expected models.ApprovalStatus, upd ApprovalUpdate) error {
	return compareAndSwapStatus(ctx, r.db, "providers", id, expected, upd)
}

// Create inserts a new provider application awaiting review.
func (r *ProviderRepository) Create(ctx context.Context, provider *models.Provider) error {
	if provider.ID == "" {
		provider.ID = uuid.NewString()
	}
	if provider.Status == "" {
		provider.Status = models.StatusPendingApproval
	}
	now := time.Now().UTC()
	if provider.CreatedAt.IsZero() {
		provider.CreatedAt = now
	}
	provider.UpdatedAt = now

	const query = `INSERT INTO providers
	(id, full_name, email, phone, specialty, license_number, organization_id, status, created_at, updated_at)
	VALUES (:id, :full_name, :email, :phone, :specialty, :license_number, :organization_id, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, provider); err != nil {
		return fmt.Errorf("create provider: %w", err)
	}
	return nil
}

// List returns provider applications based on filters with total count.
func (r *ProviderRepository) List(ctx context.Context, filter models.ProviderFilter) ([]models.Provider, int, error) {
	baseQuery := `FROM providers WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Specialty != "" {
		conditions = append(conditions, fmt.Sprintf("specialty = $%d", len(args)+1))
		args = append(args, filter.Specialty)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(email) LIKE $%d OR LOWER(full_name) LIKE $%d)", len(args)+1, len(args)+1))
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

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", providerColumns, baseQuery, pageSize, offset)

	var providers []models.Provider
	if err := r.db.SelectContext(ctx, &providers, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list providers: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count providers: %w", err)
	}

	return providers, total, nil
}
