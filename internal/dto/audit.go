package dto

import (
	"time"

	"github.com/medibook/admin-api/internal/models"
)

// CreateExportRequest asks for an asynchronous audit trail export.
type CreateExportRequest struct {
	Format   models.ExportFormat `json:"format"`
	UserID   string              `json:"user_id,omitempty"`
	Action   string              `json:"action,omitempty"`
	Resource string              `json:"resource,omitempty"`
	From     *time.Time          `json:"from,omitempty"`
	To       *time.Time          `json:"to,omitempty"`
}

// ExportJobResponse acknowledges a queued export.
type ExportJobResponse struct {
	ID     string              `json:"id"`
	Status models.ExportStatus `json:"status"`
}

// ExportStatusResponse reports progress and, once finished, a signed download URL.
type ExportStatusResponse struct {
	ID           string              `json:"id"`
	Status       models.ExportStatus `json:"status"`
	DownloadURL  *string             `json:"download_url,omitempty"`
	ExpiresAt    *time.Time          `json:"expires_at,omitempty"`
	ErrorMessage *string             `json:"error_message,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	FinishedAt   *time.Time          `json:"finished_at,omitempty"`
}
