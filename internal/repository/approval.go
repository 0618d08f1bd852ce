package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/medibook/admin-api/internal/models"
)

// ApprovalUpdate groups the review columns written by a decision.
// Approval and rejection fields are mutually exclusive: applying one
// clears the other.
type ApprovalUpdate struct {
	Status          models.ApprovalStatus
	ApprovedAt      *time.Time
	ApprovedBy      *string
	RejectedAt      *time.Time
	RejectionReason *string
	DecidedAt       time.Time
}

// compareAndSwapStatus performs the conditional status write shared by all
// approvable tables. The row is only touched while its status still matches
// expected; zero affected rows surface as sql.ErrNoRows so the caller can
// distinguish a lost race from a storage fault.
func compareAndSwapStatus(ctx context.Context, db *sqlx.DB, table, id string, expected models.ApprovalStatus, upd ApprovalUpdate) error {
	query := fmt.Sprintf(`UPDATE %s
SET status = $3, approved_at = $4, approved_by = $5, rejected_at = $6, rejection_reason = $7, updated_at = $8
WHERE id = $1 AND status = $2`, table)

	result, err := db.ExecContext(ctx, query,
		id,
		expected,
		upd.Status,
		upd.ApprovedAt,
		upd.ApprovedBy,
		upd.RejectedAt,
		upd.RejectionReason,
		upd.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("update %s status: %w", table, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s status update rows: %w", table, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func fetchStatus(ctx context.Context, db *sqlx.DB, table, id string) (models.ApprovalStatus, error) {
	query := fmt.Sprintf(`SELECT status FROM %s WHERE id = $1`, table)
	var status models.ApprovalStatus
	if err := db.GetContext(ctx, &status, query, id); err != nil {
		if err == sql.ErrNoRows {
			return "", err
		}
		return "", fmt.Errorf("fetch %s status: %w", table, err)
	}
	return status, nil
}
