package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibook/admin-api/internal/models"
)

func auditRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "user_id", "action", "resource", "resource_id", "old_values", "new_values", "ip_address", "user_agent", "created_at",
	}).AddRow("a1", "admin-1", models.AuditActionApprove, "provider", "p1",
		`{"status":"PENDING_APPROVAL"}`, `{"status":"APPROVED"}`, "10.0.0.1", "curl/8.0", now)
}

func TestAuditCreateAuditLog(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	actor := "admin-1"
	target := "p1"
	log := &models.AuditLog{
		UserID:     &actor,
		Action:     models.AuditActionApprove,
		Resource:   "provider",
		ResourceID: &target,
	}
	err := repo.CreateAuditLog(context.Background(), log)
	require.NoError(t, err)
	assert.NotEmpty(t, log.ID)
	assert.False(t, log.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditListWithFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectQuery("FROM audit_logs WHERE 1=1 AND user_id = \\$1 AND action = \\$2 ORDER BY created_at DESC LIMIT 50 OFFSET 0").
		WithArgs("admin-1", models.AuditActionApprove).
		WillReturnRows(auditRows())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_logs WHERE 1=1 AND user_id = $1 AND action = $2")).
		WithArgs("admin-1", models.AuditActionApprove).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	logs, total, err := repo.List(context.Background(), models.AuditFilter{
		UserID: "admin-1",
		Action: models.AuditActionApprove,
	})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, models.AuditActionApprove, logs[0].Action)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditListForExportOldestFirst(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectQuery("FROM audit_logs WHERE 1=1 ORDER BY created_at ASC LIMIT 100").
		WillReturnRows(auditRows())

	logs, err := repo.ListForExport(context.Background(), models.AuditFilter{}, 100)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
