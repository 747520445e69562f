package auth

import "time"

// SessionRecord is the durable trace of an issued session token. The live
// session lives in Redis; the row exists for revocation auditing and pruning.
type SessionRecord struct {
	Token     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	IP        string
	UserAgent string
}
