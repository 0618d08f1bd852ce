package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibook/admin-api/internal/models"
)

func TestInvitationCreateFillsDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInvitationRepository(db)

	mock.ExpectExec("INSERT INTO invitations").WillReturnResult(sqlmock.NewResult(1, 1))

	inv := &models.Invitation{
		Email:     "new.admin@medibook.example",
		Role:      models.RoleReviewer,
		Token:     "tok-1",
		InvitedBy: "admin-1",
		ExpiresAt: time.Now().Add(72 * time.Hour),
	}
	err := repo.Create(context.Background(), inv)
	require.NoError(t, err)
	assert.NotEmpty(t, inv.ID)
	assert.False(t, inv.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvitationFindByToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInvitationRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "email", "role", "token", "invited_by", "expires_at", "accepted_at", "revoked_at", "created_at",
	}).AddRow("inv-1", "new.admin@medibook.example", string(models.RoleReviewer), "tok-1", "admin-1",
		now.Add(time.Hour), nil, nil, now)

	mock.ExpectQuery("FROM invitations WHERE token = \\$1 LIMIT 1").
		WithArgs("tok-1").
		WillReturnRows(rows)

	inv, err := repo.FindByToken(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "inv-1", inv.ID)
	assert.Equal(t, models.InvitationPending, inv.Status(now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvitationMarkAcceptedAlreadyClosed(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInvitationRepository(db)

	mock.ExpectExec("UPDATE invitations SET accepted_at").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkAccepted(context.Background(), "inv-1", time.Now())
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvitationReopen(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInvitationRepository(db)

	mock.ExpectExec("UPDATE invitations SET accepted_at = NULL").
		WithArgs("inv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Reopen(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvitationMarkRevoked(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInvitationRepository(db)

	mock.ExpectExec("UPDATE invitations SET revoked_at").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkRevoked(context.Background(), "inv-1", time.Now())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
