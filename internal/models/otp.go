package models

import "time"

// OTPCode is a one-time activation code bound to a user and target email.
// The is_used flag only ever moves from false to true.
type OTPCode struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Email     string    `db:"email" json:"email"`
	Code      string    `db:"code" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	IsUsed    bool      `db:"is_used" json:"is_used"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Expired reports whether the code is past its expiry at the given instant.
func (o *OTPCode) Expired(now time.Time) bool {
	return now.UTC().After(o.ExpiresAt)
}
