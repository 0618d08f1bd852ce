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

const requirementColumns = `id, provider_id, requirement, document_url, submitted_at,
       status, approved_at, approved_by, rejected_at, rejection_reason, created_at, updated_at`

// RequirementRepository provides database access for requirement submissions.
type RequirementRepository struct {
	db *sqlx.DB
}

// NewRequirementRepository creates a new instance of RequirementRepository.
func NewRequirementRepository(db *sqlx.DB) *RequirementRepository {
	return &RequirementRepository{db: db}
}

// Kind identifies the approvable family served by this repository.
func (r *RequirementRepository) Kind() models.EntityKind {
	return models.KindRequirement
}

// FindByID returns a requirement submission by identifier.
func (r *RequirementRepository) FindByID(ctx context.Context, id string) (*models.RequirementSubmission, error) {
	query := fmt.Sprintf(`SELECT %s FROM requirement_submissions WHERE id = $1 LIMIT 1`, requirementColumns)
	var submission models.RequirementSubmission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find requirement submission by id: %w", err)
	}
	return &submission, nil
}

// GetStatus fetches only the approval status for the given submission.
func (r *RequirementRepository) GetStatus(ctx context.Context, id string) (models.ApprovalStatus, error) {
	return fetchStatus(ctx, r.db, "requirement_submissions", id)
}

// CompareAndSwapStatus transitions the submission only while its status still
// matches expected. Returns sql.ErrNoRows when the swap did not occur.
func (r *RequirementRepository) CompareAndSwapStatus(ctx context.Context, id string, expected models.ApprovalStatus, upd ApprovalUpdate) error {
	return compareAndSwapStatus(ctx, r.db, "requirement_submissions", id, expected, upd)
}

// Create inserts a new requirement submission awaiting review.
func (r *RequirementRepository) Create(ctx context.Context, submission *models.RequirementSubmission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.Status == "" {
		submission.Status = models.StatusPending
	}
	now := time.Now().UTC()
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = now
	}
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = now
	}
	submission.UpdatedAt = now

	const query = `INSERT INTO requirement_submissions
	(id, provider_id, requirement, document_url, submitted_at, status, created_at, updated_at)
	VALUES (:id, :provider_id, :requirement, :document_url, :submitted_at, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		return fmt.Errorf("create requirement submission: %w", err)
	}
	return nil
}

// List returns requirement submissions based on filters with total count.
func (r *RequirementRepository) List(ctx context.Context, filter models.RequirementFilter) ([]models.RequirementSubmission, int, error) {
	baseQuery := `FROM requirement_submissions WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.ProviderID != "" {
		conditions = append(conditions, fmt.Sprintf("provider_id = $%d", len(args)+1))
		args = append(args, filter.ProviderID)
	}
	if filter.Requirement != nil {
		conditions = append(conditions, fmt.Sprintf("requirement = $%d", len(args)+1))
		args = append(args, *filter.Requirement)
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

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY submitted_at DESC LIMIT %d OFFSET %d", requirementColumns, baseQuery, pageSize, offset)

	var submissions []models.RequirementSubmission
	if err := r.db.SelectContext(ctx, &submissions, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list requirement submissions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count requirement submissions: %w", err)
	}

	return submissions, total, nil
}
