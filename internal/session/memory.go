package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/medibook/admin-api/internal/models"
)

// MemoryStore keeps override sessions in an in-process map. Expiry is lazy:
// an expired session is dropped the next time it is read. A background sweep
// reclaims sessions whose admin never comes back.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.OverrideSession
	logger   *zap.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates the store and starts its sweep loop. Pass a
// non-positive sweepInterval to disable sweeping.
func NewMemoryStore(sweepInterval time.Duration, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MemoryStore{
		sessions: make(map[string]*models.OverrideSession),
		logger:   logger,
		stop:     make(chan struct{}),
	}
	if sweepInterval > 0 {
		go s.sweepLoop(sweepInterval)
	}
	return s
}

// Get returns the admin's session, or nil when none is live.
func (s *MemoryStore) Get(ctx context.Context, adminID string) (*models.OverrideSession, error) {
	s.mu.RLock()
	sess, ok := s.sessions[adminID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !sess.Active(time.Now()) {
		s.mu.Lock()
		// Re-check under the write lock; another goroutine may have replaced it.
		if cur, ok := s.sessions[adminID]; ok && !cur.Active(time.Now()) {
			delete(s.sessions, adminID)
		}
		s.mu.Unlock()
		return nil, nil
	}
	copied := *sess
	return &copied, nil
}

// Put stores the session, replacing any previous one for the same admin.
func (s *MemoryStore) Put(ctx context.Context, session *models.OverrideSession) error {
	copied := *session
	s.mu.Lock()
	s.sessions[session.OriginalAdminID] = &copied
	s.mu.Unlock()
	return nil
}

// PutIfAbsent stores the session under the write lock unless the admin
// already holds a live one. An expired leftover does not block the write.
func (s *MemoryStore) PutIfAbsent(ctx context.Context, session *models.OverrideSession) (bool, error) {
	copied := *session
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.sessions[copied.OriginalAdminID]; ok && cur.Active(time.Now()) {
		return false, nil
	}
	s.sessions[copied.OriginalAdminID] = &copied
	return true, nil
}

// Delete removes the admin's session if present.
func (s *MemoryStore) Delete(ctx context.Context, adminID string) error {
	s.mu.Lock()
	delete(s.sessions, adminID)
	s.mu.Unlock()
	return nil
}

// Close stops the sweep loop.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if removed := s.sweep(time.Now()); removed > 0 {
				s.logger.Debug("swept expired override sessions", zap.Int("removed", removed))
			}
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for adminID, sess := range s.sessions {
		if !sess.Active(now) {
			delete(s.sessions, adminID)
			removed++
		}
	}
	return removed
}
