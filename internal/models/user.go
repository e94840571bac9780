package models

import "time"

// User represents an account in the users table. Accounts are pre-registered
// by an administrator with only the external identifier and full name; email
// and password hash are set once, when OTP activation succeeds.
type User struct {
	ID           int64      `db:"id" json:"id"`
	ExternalID   string     `db:"user_id" json:"user_id"`
	FullName     string     `db:"full_name" json:"full_name"`
	Email        *string    `db:"email" json:"email,omitempty"`
	PasswordHash *string    `db:"password_hash" json:"-"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	IsAdmin      bool       `db:"is_admin" json:"is_admin"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	ActivatedAt  *time.Time `db:"activated_at" json:"activated_at,omitempty"`
}

// Identity is the projection of a user returned by login and session checks.
type Identity struct {
	UserID     int64  `json:"user_id"`
	ExternalID string `json:"user_identifier"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	IsAdmin    bool   `json:"is_admin"`
}

// IdentityOf builds the identity projection for a user row.
func IdentityOf(u *User) Identity {
	email := ""
	if u.Email != nil {
		email = *u.Email
	}
	return Identity{
		UserID:     u.ID,
		ExternalID: u.ExternalID,
		FullName:   u.FullName,
		Email:      email,
		IsAdmin:    u.IsAdmin,
	}
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
