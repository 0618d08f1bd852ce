package models

import "time"

// OverrideSession is a time-boxed grant letting an admin act as another account.
type OverrideSession struct {
	OriginalAdminID string    `json:"original_admin_id"`
	TargetUserID    string    `json:"target_user_id"`
	TargetUserEmail string    `json:"target_user_email"`
	Reason          string    `json:"reason"`
	StartedAt       time.Time `json:"started_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Active reports whether the session is still live at the given instant.
func (s *OverrideSession) Active(now time.Time) bool {
	if s == nil {
		return false
	}
	return now.Before(s.ExpiresAt)
}
