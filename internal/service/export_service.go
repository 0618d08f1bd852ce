package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/medibook/admin-api/internal/dto"
	"github.com/medibook/admin-api/internal/models"
	"github.com/medibook/admin-api/internal/repository"
	"github.com/medibook/admin-api/pkg/config"
	appErrors "github.com/medibook/admin-api/pkg/errors"
	"github.com/medibook/admin-api/pkg/export"
	"github.com/medibook/admin-api/pkg/jobs"
)

type exportJobStore interface {
	Create(ctx context.Context, job *models.AuditExportJob) error
	GetByID(ctx context.Context, id string) (*models.AuditExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.AuditExportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.AuditExportJob, error)
}

type auditExportLister interface {
	ListForExport(ctx context.Context, filter models.AuditFilter, limit int) ([]models.AuditLog, error)
}

type exportDispatcher interface {
	Enqueue(job jobs.Job) error
}

type exportStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type downloadSigner interface {
	Generate(exportID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (exportID, relPath string, expiresAt time.Time, err error)
}

// ExportDownload is a resolved, ready-to-stream export file.
type ExportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ExportFormat
	ExpiresAt time.Time
}

// ExportService runs asynchronous audit trail exports. Jobs are persisted,
// processed by a worker pool, and downloaded through short-lived signed URLs.
type ExportService struct {
	repo    exportJobStore
	queue   exportDispatcher
	signer  downloadSigner
	storage exportStorage
	audit   auditLogger
	cfg     config.AuditExportConfig
	logger  *zap.Logger
}

// NewExportService constructs the service.
func NewExportService(repo exportJobStore, queue exportDispatcher, signer downloadSigner, store exportStorage, audit auditLogger, cfg config.AuditExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		repo:    repo,
		queue:   queue,
		signer:  signer,
		storage: store,
		audit:   audit,
		cfg:     cfg,
		logger:  logger,
	}
}

// CreateJob validates the request, persists the job, and enqueues processing.
func (s *ExportService) CreateJob(ctx context.Context, req dto.CreateExportRequest, actor *models.JWTClaims, meta RequestMeta) (*dto.ExportJobResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.HasPermission(models.PermViewAuditLogs) {
		return nil, appErrors.ErrForbidden
	}
	if req.Format != models.ExportFormatCSV && req.Format != models.ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	job := &models.AuditExportJob{
		Params: models.ExportJobParams{
			Format:   req.Format,
			UserID:   req.UserID,
			Action:   req.Action,
			Resource: req.Resource,
			From:     req.From,
			To:       req.To,
		},
		Status:    models.ExportStatusQueued,
		CreatedBy: actor.UserID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "audit_export"}); err != nil {
		failed := models.ExportStatusFailed
		msg := "failed to enqueue job"
		now := time.Now().UTC()
		_ = s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
			Status:       &failed,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}

	jobID := job.ID
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &job.CreatedBy,
		Action:     models.AuditActionAuditExport,
		Resource:   "audit_export",
		ResourceID: &jobID,
		NewValues:  []byte(fmt.Sprintf(`{"format":%q}`, req.Format)),
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record export audit entry", zap.Error(err))
	}

	return &dto.ExportJobResponse{ID: job.ID, Status: job.Status}, nil
}

// GetStatus exposes job progress. Once finished it carries a signed download URL.
func (s *ExportService) GetStatus(ctx context.Context, id string, actor *models.JWTClaims) (*dto.ExportStatusResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.HasPermission(models.PermViewAuditLogs) {
		return nil, appErrors.ErrForbidden
	}
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.CreatedBy != actor.UserID && actor.Role != models.RoleSuperAdmin {
		return nil, appErrors.ErrForbidden
	}
	resp := &dto.ExportStatusResponse{
		ID:         job.ID,
		Status:     job.Status,
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.FinishedAt,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.ErrorMessage = job.ErrorMessage
	}
	if job.Status == models.ExportStatusFinished && job.FilePath != nil {
		token, expiresAt, err := s.signer.Generate(job.ID, *job.FilePath)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download URL")
		}
		url := "/api/v1/audit/downloads/" + token
		resp.DownloadURL = &url
		resp.ExpiresAt = &expiresAt
	}
	return resp, nil
}

// ResolveDownload validates a signed token and opens the stored export file.
func (s *ExportService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	jobID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.FilePath == nil || *job.FilePath != relPath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.ExportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not ready")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ExportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    job.Params.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// RecoverPendingJobs replays queued jobs after a process restart.
func (s *ExportService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Warn("failed to recover queued export jobs", zap.Error(err))
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "audit_export"}); err != nil {
			s.logger.Warn("failed to requeue export job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

// StartCleanup boots a goroutine that purges expired export files periodically.
func (s *ExportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *ExportService) cleanupExpired(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.SignedURLTTL)
	finished, err := s.repo.ListFinishedBefore(ctx, cutoff, 100)
	if err != nil {
		s.logger.Warn("export cleanup list failed", zap.Error(err))
		return
	}
	for _, job := range finished {
		if job.FilePath == nil {
			continue
		}
		if err := s.storage.Delete(*job.FilePath); err != nil {
			s.logger.Warn("export cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	if _, err := s.storage.CleanupOlderThan(s.cfg.SignedURLTTL); err != nil {
		s.logger.Warn("export filesystem cleanup failed", zap.Error(err))
	}
}

type exportMetrics interface {
	RecordExportJob(status models.ExportStatus)
}

// ExportWorker bridges queue jobs to the export pipeline.
type ExportWorker struct {
	repo       exportJobStore
	audits     auditExportLister
	storage    exportStorage
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	metrics    exportMetrics
	maxRows    int
	maxRetries int
	logger     *zap.Logger
}

// WithMetrics enables terminal-status counters and returns the worker.
func (w *ExportWorker) WithMetrics(metrics exportMetrics) *ExportWorker {
	w.metrics = metrics
	return w
}

// NewExportWorker constructs a worker.
func NewExportWorker(repo exportJobStore, audits auditExportLister, store exportStorage, maxRows, maxRetries int, logger *zap.Logger) *ExportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRows <= 0 {
		maxRows = 10000
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &ExportWorker{
		repo:       repo,
		audits:     audits,
		storage:    store,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		maxRows:    maxRows,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Handle processes a queue job.
func (w *ExportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	processing := models.ExportStatusProcessing
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{Status: &processing}); err != nil {
		return err
	}

	relPath, err := w.generate(ctx, record)
	if err != nil {
		msg := err.Error()
		if job.Attempt >= w.maxRetries {
			failed := models.ExportStatusFailed
			now := time.Now().UTC()
			if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
				Status:       &failed,
				ErrorMessage: &msg,
				FinishedAt:   &now,
			}); updateErr != nil {
				w.logger.Warn("failed to mark export job failed", zap.String("job_id", job.ID), zap.Error(updateErr))
			}
			if w.metrics != nil {
				w.metrics.RecordExportJob(models.ExportStatusFailed)
			}
		} else {
			queued := models.ExportStatusQueued
			if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
				Status:       &queued,
				ErrorMessage: &msg,
			}); updateErr != nil {
				w.logger.Warn("failed to requeue export job", zap.String("job_id", job.ID), zap.Error(updateErr))
			}
		}
		return err
	}

	finished := models.ExportStatusFinished
	now := time.Now().UTC()
	clear := ""
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:       &finished,
		FilePath:     &relPath,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Warn("failed to mark export job finished", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	if w.metrics != nil {
		w.metrics.RecordExportJob(models.ExportStatusFinished)
	}
	return nil
}

func (w *ExportWorker) generate(ctx context.Context, job *models.AuditExportJob) (string, error) {
	filter := models.AuditFilter{
		UserID:   job.Params.UserID,
		Action:   job.Params.Action,
		Resource: job.Params.Resource,
		From:     job.Params.From,
		To:       job.Params.To,
	}
	logs, err := w.audits.ListForExport(ctx, filter, w.maxRows)
	if err != nil {
		return "", fmt.Errorf("load audit entries: %w", err)
	}

	dataset := auditDataset(logs)
	var payload []byte
	switch job.Params.Format {
	case models.ExportFormatPDF:
		payload, err = w.pdf.Render(dataset, "Audit Trail")
	default:
		payload, err = w.csv.Render(dataset)
	}
	if err != nil {
		return "", fmt.Errorf("render export: %w", err)
	}

	filename := fmt.Sprintf("audit-%s.%s", job.ID, job.Params.Format)
	relPath, err := w.storage.Save(filename, payload)
	if err != nil {
		return "", fmt.Errorf("store export: %w", err)
	}
	return relPath, nil
}

func auditDataset(logs []models.AuditLog) export.Dataset {
	rows := make([][]string, 0, len(logs))
	for _, entry := range logs {
		actor := ""
		if entry.UserID != nil {
			actor = *entry.UserID
		}
		resourceID := ""
		if entry.ResourceID != nil {
			resourceID = *entry.ResourceID
		}
		rows = append(rows, []string{
			entry.CreatedAt.UTC().Format(time.RFC3339),
			actor,
			entry.Action,
			entry.Resource,
			resourceID,
			entry.IPAddress,
		})
	}
	return export.Dataset{
		Headers: []string{"Timestamp", "Actor", "Action", "Resource", "Resource ID", "IP Address"},
		Rows:    rows,
	}
}
