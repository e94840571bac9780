package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Recognized permission keys. Roles may carry additional keys; they survive
// the merge but nothing in the API checks them.
const (
	PermUpload      = "upload"
	PermDelete      = "delete"
	PermEdit        = "edit"
	PermManageUsers = "manage_users"
	PermViewAll     = "view_all"
)

// RecognizedPermissions lists the keys every merged result starts from.
var RecognizedPermissions = []string{PermUpload, PermDelete, PermEdit, PermManageUsers, PermViewAll}

// PermissionSet maps permission keys to grants. Stored as JSONB.
type PermissionSet map[string]bool

// Value implements driver.Valuer for JSONB storage.
func (p PermissionSet) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner for JSONB retrieval.
func (p *PermissionSet) Scan(src interface{}) error {
	if src == nil {
		*p = PermissionSet{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported permission set type %T", src)
	}
	return json.Unmarshal(raw, p)
}

// BasePermissions returns the baseline where every recognized key is denied.
func BasePermissions() PermissionSet {
	base := make(PermissionSet, len(RecognizedPermissions))
	for _, key := range RecognizedPermissions {
		base[key] = false
	}
	return base
}

// Role groups a named permission set that can be assigned to users.
type Role struct {
	ID          int64         `db:"id" json:"id"`
	Name        string        `db:"name" json:"name"`
	Description string        `db:"description" json:"description"`
	Permissions PermissionSet `db:"permissions" json:"permissions"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
}
