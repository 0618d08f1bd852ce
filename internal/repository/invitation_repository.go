package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medibook/admin-api/internal/models"
)

const invitationColumns = `id, email, role, token, invited_by, expires_at, accepted_at, revoked_at, created_at`

// InvitationRepository persists admin invitations.
type InvitationRepository struct {
	db *sqlx.DB
}

// NewInvitationRepository constructs the repository.
func NewInvitationRepository(db *sqlx.DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

// Create inserts a new invitation row.
func (r *InvitationRepository) Create(ctx context.Context, inv *models.Invitation) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO invitations (id, email, role, token, invited_by, expires_at, accepted_at, revoked_at, created_at)
	VALUES (:id, :email, :role, :token, :invited_by, :expires_at, :accepted_at, :revoked_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, inv); err != nil {
		return fmt.Errorf("create invitation: %w", err)
	}
	return nil
}

// FindByToken returns an invitation by its one-time token.
func (r *InvitationRepository) FindByToken(ctx context.Context, token string) (*models.Invitation, error) {
	query := fmt.Sprintf(`SELECT %s FROM invitations WHERE token = $1 LIMIT 1`, invitationColumns)
	var inv models.Invitation
	if err := r.db.GetContext(ctx, &inv, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find invitation by token: %w", err)
	}
	return &inv, nil
}

// FindByID returns an invitation by identifier.
func (r *InvitationRepository) FindByID(ctx context.Context, id string) (*models.Invitation, error) {
	query := fmt.Sprintf(`SELECT %s FROM invitations WHERE id = $1 LIMIT 1`, invitationColumns)
	var inv models.Invitation
	if err := r.db.GetContext(ctx, &inv, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find invitation by id: %w", err)
	}
	return &inv, nil
}

// HasOpenInvitation reports whether a pending, unexpired invitation exists for the email.
func (r *InvitationRepository) HasOpenInvitation(ctx context.Context, email string, now time.Time) (bool, error) {
	const query = `SELECT COUNT(*) FROM invitations WHERE email = $1 AND accepted_at IS NULL AND revoked_at IS NULL AND expires_at > $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, email, now); err != nil {
		return false, fmt.Errorf("check open invitation: %w", err)
	}
	return count > 0, nil
}

// List returns all invitations, newest first.
func (r *InvitationRepository) List(ctx context.Context, limit, offset int) ([]models.Invitation, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM invitations ORDER BY created_at DESC LIMIT %d OFFSET %d`, invitationColumns, limit, offset)
	var invitations []models.Invitation
	if err := r.db.SelectContext(ctx, &invitations, query); err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	return invitations, nil
}

// MarkAccepted records acceptance; the conditional write only succeeds while
// the invitation is still open. Returns sql.ErrNoRows when it was not.
func (r *InvitationRepository) MarkAccepted(ctx context.Context, id string, acceptedAt time.Time) error {
	const query = `UPDATE invitations SET accepted_at = $2 WHERE id = $1 AND accepted_at IS NULL AND revoked_at IS NULL AND expires_at > $2`
	result, err := r.db.ExecContext(ctx, query, id, acceptedAt)
	if err != nil {
		return fmt.Errorf("accept invitation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check invitation accept rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Reopen clears a recorded acceptance so the token becomes usable again.
// A revoked invitation stays closed.
func (r *InvitationRepository) Reopen(ctx context.Context, id string) error {
	const query = `UPDATE invitations SET accepted_at = NULL WHERE id = $1 AND revoked_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("reopen invitation: %w", err)
	}
	return nil
}

// MarkRevoked records revocation; only an open invitation can be revoked.
func (r *InvitationRepository) MarkRevoked(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE invitations SET revoked_at = $2 WHERE id = $1 AND accepted_at IS NULL AND revoked_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, revokedAt)
	if err != nil {
		return fmt.Errorf("revoke invitation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check invitation revoke rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
