package service

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibook/admin-api/internal/dto"
	"github.com/medibook/admin-api/internal/models"
	"github.com/medibook/admin-api/internal/repository"
	"github.com/medibook/admin-api/pkg/config"
	appErrors "github.com/medibook/admin-api/pkg/errors"
	"github.com/medibook/admin-api/pkg/jobs"
	"github.com/medibook/admin-api/pkg/storage"
)

type stubExportJobStore struct {
	jobs    map[string]*models.AuditExportJob
	updates []repository.UpdateExportJobParams
}

func newStubExportJobStore() *stubExportJobStore {
	return &stubExportJobStore{jobs: make(map[string]*models.AuditExportJob)}
}

func (s *stubExportJobStore) Create(ctx context.Context, job *models.AuditExportJob) error {
	if job.ID == "" {
		job.ID = "job-1"
	}
	if job.Status == "" {
		job.Status = models.ExportStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *stubExportJobStore) GetByID(ctx context.Context, id string) (*models.AuditExportJob, error) {
	if job, ok := s.jobs[id]; ok {
		return job, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubExportJobStore) Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error {
	s.updates = append(s.updates, params)
	job, ok := s.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.FilePath != nil {
		job.FilePath = params.FilePath
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (s *stubExportJobStore) ListQueued(ctx context.Context, limit int) ([]models.AuditExportJob, error) {
	var out []models.AuditExportJob
	for _, job := range s.jobs {
		if job.Status == models.ExportStatusQueued {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (s *stubExportJobStore) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.AuditExportJob, error) {
	return nil, nil
}

type stubDispatcher struct {
	enqueued []jobs.Job
	err      error
}

func (s *stubDispatcher) Enqueue(job jobs.Job) error {
	if s.err != nil {
		return s.err
	}
	s.enqueued = append(s.enqueued, job)
	return nil
}

type stubAuditLister struct {
	logs []models.AuditLog
}

func (s *stubAuditLister) ListForExport(ctx context.Context, filter models.AuditFilter, limit int) ([]models.AuditLog, error) {
	return s.logs, nil
}

func exportFixture(t *testing.T) (*ExportService, *stubExportJobStore, *stubDispatcher, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := newStubExportJobStore()
	queue := &stubDispatcher{}
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	audit := &stubAuditLogger{}
	cfg := config.AuditExportConfig{SignedURLTTL: time.Hour, MaxRows: 100}
	svc := NewExportService(repo, queue, signer, store, audit, cfg, nil)
	return svc, repo, queue, store
}

func TestCreateExportJob(t *testing.T) {
	svc, repo, queue, _ := exportFixture(t)

	resp, err := svc.CreateJob(context.Background(), dto.CreateExportRequest{
		Format: models.ExportFormatCSV,
	}, adminClaims(), RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, resp.Status)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, resp.ID, queue.enqueued[0].ID)
	assert.Contains(t, repo.jobs, resp.ID)
}

func TestCreateExportJobInvalidFormat(t *testing.T) {
	svc, _, _, _ := exportFixture(t)

	_, err := svc.CreateJob(context.Background(), dto.CreateExportRequest{
		Format: models.ExportFormat("xlsx"),
	}, adminClaims(), RequestMeta{})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestCreateExportJobRequiresPermission(t *testing.T) {
	svc, _, _, _ := exportFixture(t)

	_, err := svc.CreateJob(context.Background(), dto.CreateExportRequest{
		Format: models.ExportFormatCSV,
	}, reviewerClaims(), RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestExportWorkerProducesDownloadableFile(t *testing.T) {
	svc, repo, _, store := exportFixture(t)
	ctx := context.Background()

	actor := "admin-1"
	lister := &stubAuditLister{logs: []models.AuditLog{
		{ID: "a1", UserID: &actor, Action: models.AuditActionApprove, Resource: "provider", IPAddress: "10.0.0.1", CreatedAt: time.Now()},
	}}
	worker := NewExportWorker(repo, lister, store, 100, 3, nil)

	resp, err := svc.CreateJob(ctx, dto.CreateExportRequest{Format: models.ExportFormatCSV}, adminClaims(), RequestMeta{})
	require.NoError(t, err)

	require.NoError(t, worker.Handle(ctx, jobs.Job{ID: resp.ID}))

	status, err := svc.GetStatus(ctx, resp.ID, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFinished, status.Status)
	require.NotNil(t, status.DownloadURL)

	token := strings.TrimPrefix(*status.DownloadURL, "/api/v1/audit/downloads/")
	download, err := svc.ResolveDownload(ctx, token)
	require.NoError(t, err)
	defer download.File.Close()

	content, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Contains(t, string(content), "APPROVE")
	assert.Contains(t, string(content), "10.0.0.1")
}

func TestExportWorkerMarksFailedAfterRetries(t *testing.T) {
	_, repo, _, store := exportFixture(t)
	ctx := context.Background()

	job := &models.AuditExportJob{
		Params: models.ExportJobParams{Format: models.ExportFormatCSV},
	}
	require.NoError(t, repo.Create(ctx, job))

	failing := &failingAuditLister{}
	worker := NewExportWorker(repo, failing, store, 100, 2, nil)

	err := worker.Handle(ctx, jobs.Job{ID: job.ID, Attempt: 2})
	require.Error(t, err)
	assert.Equal(t, models.ExportStatusFailed, repo.jobs[job.ID].Status)
	require.NotNil(t, repo.jobs[job.ID].ErrorMessage)
}

type failingAuditLister struct{}

func (f *failingAuditLister) ListForExport(ctx context.Context, filter models.AuditFilter, limit int) ([]models.AuditLog, error) {
	return nil, assert.AnError
}

func TestGetStatusOwnership(t *testing.T) {
	svc, _, _, _ := exportFixture(t)
	ctx := context.Background()

	resp, err := svc.CreateJob(ctx, dto.CreateExportRequest{Format: models.ExportFormatCSV}, adminClaims(), RequestMeta{})
	require.NoError(t, err)

	other := &models.JWTClaims{UserID: "admin-2", Role: models.RoleAdmin}
	_, err = svc.GetStatus(ctx, resp.ID, other)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	// Superadmins may inspect any job.
	root := &models.JWTClaims{UserID: "root-1", Role: models.RoleSuperAdmin}
	status, err := svc.GetStatus(ctx, resp.ID, root)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, status.Status)
}

func TestRecoverPendingJobs(t *testing.T) {
	svc, repo, queue, _ := exportFixture(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.AuditExportJob{
		Params: models.ExportJobParams{Format: models.ExportFormatCSV},
	}))
	queue.enqueued = nil

	svc.RecoverPendingJobs(ctx)
	assert.Len(t, queue.enqueued, 1)
}
