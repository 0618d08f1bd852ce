// Package session stores active account override sessions keyed by the
// admin who initiated them. Two backends exist: an in-process map for
// single-instance deployments and a Redis store for multi-instance ones.
package session

import (
	"context"

	"github.com/medibook/admin-api/internal/models"
)

// Store persists at most one active override session per admin.
// Get must treat an expired session as absent.
type Store interface {
	// Get returns the live session for the admin, or nil when none exists.
	Get(ctx context.Context, adminID string) (*models.OverrideSession, error)

	// Put stores the session under its originating admin, replacing any
	// previous one.
	Put(ctx context.Context, session *models.OverrideSession) error

	// PutIfAbsent stores the session only when the admin holds no live one,
	// reporting whether the write happened. The check and the write are a
	// single atomic step, so concurrent callers see exactly one success.
	PutIfAbsent(ctx context.Context, session *models.OverrideSession) (bool, error)

	// Delete removes the admin's session if present. Deleting a missing
	// session is not an error.
	Delete(ctx context.Context, adminID string) error
}
