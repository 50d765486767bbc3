package session

import "time"

const schemaVersionCurrent = 1

// Session is one authenticated device session. TwoFactorVerified records
// whether the MFA step completed; Persistent marks remember-me sessions.
type Session struct {
	SessionID         string
	UserID            string
	TeamID            string
	DeviceID          string
	TwoFactorVerified bool
	Persistent        bool

	CreatedAt int64
	ExpiresAt int64
}

// TTL returns the remaining lifetime relative to now, or zero when expired.
func (s *Session) TTL(now time.Time) time.Duration {
	remaining := time.Unix(s.ExpiresAt, 0).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

type sessionRecord struct {
	Version           int    `json:"v"`
	SessionID         string `json:"sid"`
	UserID            string `json:"uid"`
	TeamID            string `json:"tid"`
	DeviceID          string `json:"did,omitempty"`
	TwoFactorVerified bool   `json:"tfv"`
	Persistent        bool   `json:"prs"`
	CreatedAt         int64  `json:"cat"`
	ExpiresAt         int64  `json:"eat"`
}
