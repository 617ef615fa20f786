package sessions

import "time"

// UserSession tracks one login session as persisted state, independent of the
// Redis-backed cookie session. SessionKey is unique across all rows.
type UserSession struct {
	ID             int64
	UserID         int64
	SessionKey     string
	IP             string
	UserAgent      string
	DeviceInfo     string
	LoginAt        time.Time
	LastActivityAt time.Time
	LogoutAt       *time.Time
	IsActive       bool
	IsSuspicious   bool
}

// IdleFor reports how long the session has been inactive as of now.
func (s UserSession) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivityAt)
}
