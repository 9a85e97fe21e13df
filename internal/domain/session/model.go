package session

import (
	"time"
)

// Session is one issued refresh token. Only Revoked, LastUsedAt and
// ReplacedBy change after creation, and only from unset to set.
type Session struct {
	ID         string     `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID     string     `gorm:"column:user_id;type:uuid;not null;index:idx_sessions_user_revoked,priority:1" json:"user_id"`
	CreatedAt  time.Time  `gorm:"column:created_at;not null" json:"created_at"`
	ExpiresAt  time.Time  `gorm:"column:expires_at;not null;index" json:"expires_at"`
	LastUsedAt *time.Time `gorm:"column:last_used_at" json:"last_used_at,omitempty"`
	Revoked    bool       `gorm:"column:revoked;not null;default:false;index:idx_sessions_user_revoked,priority:2" json:"revoked"`
	ReplacedBy *string    `gorm:"column:replaced_by;type:uuid" json:"replaced_by,omitempty"`

	IPAddress string `gorm:"column:ip_address;type:text" json:"ip_address,omitempty"`
	UserAgent string `gorm:"column:user_agent;type:text" json:"user_agent,omitempty"`
}

// TableName overrides the table name used by GORM
func (Session) TableName() string {
	return "sessions"
}

// Expired reports whether the session's expiry has passed at now
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}

// ClientMeta is provenance recorded on new sessions. It is informational only.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

// Issued is the result of a login or a rotation
type Issued struct {
	SessionID        string
	UserID           string
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// RefreshClaims is what a verified refresh token carries
type RefreshClaims struct {
	SessionID string
	UserID    string
}

// Stats is a point-in-time census of the sessions table
type Stats struct {
	Total    int64 `json:"total"`
	Active   int64 `json:"active"`
	Revoked  int64 `json:"revoked"`
	Expired  int64 `json:"expired"`
	Obsolete int64 `json:"obsolete"`
}

// CleanupResult reports what a deep cleanup pass removed
type CleanupResult struct {
	Expired   int64     `json:"expired_refresh_tokens"`
	Revoked   int64     `json:"revoked_refresh_tokens"`
	Total     int64     `json:"total_cleaned"`
	Timestamp time.Time `json:"timestamp"`
}
