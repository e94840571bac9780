package models

import "time"

// Session is a persisted opaque login session. The token is the sole
// credential; expiry is evaluated on every lookup, expired rows are rejected
// but not eagerly deleted.
type Session struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Token     string    `db:"session_token" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
