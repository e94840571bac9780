package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/MoainAlabbasi/telegram-archive-bot/internal/models"
)

const roleColumns = `id, name, description, permissions, created_at`

// RoleRepository provides database access for roles and role assignments.
type RoleRepository struct {
	db *sqlx.DB
}

// NewRoleRepository creates a new instance of RoleRepository.
func NewRoleRepository(db *sqlx.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// Create inserts a role. A duplicate name surfaces as a unique violation.
func (r *RoleRepository) Create(ctx context.Context, role *models.Role) error {
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO roles (name, description, permissions, created_at) VALUES ($1, $2, $3, $4) RETURNING id`
	if err := r.db.GetContext(ctx, &role.ID, query, role.Name, role.Description, role.Permissions, role.CreatedAt); err != nil {
		return fmt.Errorf("create role: %w", err)
	}
	return nil
}

// Update replaces the role's name, description and permission grants.
func (r *RoleRepository) Update(ctx context.Context, role *models.Role) error {
	const query = `UPDATE roles SET name = $2, description = $3, permissions = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, role.ID, role.Name, role.Description, role.Permissions); err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	return nil
}

// Delete removes a role by id.
func (r *RoleRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM roles WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	return nil
}

// FindByID returns a role by id.
func (r *RoleRepository) FindByID(ctx context.Context, id int64) (*models.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE id = $1 LIMIT 1`
	var role models.Role
	if err := r.db.GetContext(ctx, &role, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find role by id: %w", err)
	}
	return &role, nil
}

// FindByName returns a role by its unique name.
func (r *RoleRepository) FindByName(ctx context.Context, name string) (*models.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE name = $1 LIMIT 1`
	var role models.Role
	if err := r.db.GetContext(ctx, &role, query, name); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find role by name: %w", err)
	}
	return &role, nil
}

// List returns all roles ordered by name.
func (r *RoleRepository) List(ctx context.Context) ([]models.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles ORDER BY name ASC`
	var roles []models.Role
	if err := r.db.SelectContext(ctx, &roles, query); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// CountAssignments returns how many users currently hold the role.
func (r *RoleRepository) CountAssignments(ctx context.Context, roleID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM user_roles WHERE role_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, roleID); err != nil {
		return 0, fmt.Errorf("count role assignments: %w", err)
	}
	return count, nil
}

// Assign grants a role to a user. A repeated grant surfaces as a unique
// violation on the (user_id, role_id) pair.
func (r *RoleRepository) Assign(ctx context.Context, userID, roleID int64) error {
	const query = `INSERT INTO user_roles (user_id, role_id, assigned_at) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, userID, roleID, time.Now().UTC()); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

// Unassign revokes a role from a user and reports whether a grant existed.
func (r *RoleRepository) Unassign(ctx context.Context, userID, roleID int64) (bool, error) {
	const query = `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`
	res, err := r.db.ExecContext(ctx, query, userID, roleID)
	if err != nil {
		return false, fmt.Errorf("unassign role: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unassign role rows affected: %w", err)
	}
	return affected > 0, nil
}

// RolesForUser returns all roles granted to a user.
func (r *RoleRepository) RolesForUser(ctx context.Context, userID int64) ([]models.Role, error) {
	const query = `SELECT r.id, r.name, r.description, r.permissions, r.created_at FROM roles r JOIN user_roles ur ON ur.role_id = r.id WHERE ur.user_id = $1 ORDER BY r.name ASC`
	var roles []models.Role
	if err := r.db.SelectContext(ctx, &roles, query, userID); err != nil {
		return nil, fmt.Errorf("roles for user: %w", err)
	}
	return roles, nil
}

// UsersForRole returns the users currently holding the role.
func (r *RoleRepository) UsersForRole(ctx context.Context, roleID int64) ([]models.User, error) {
	const query = `SELECT u.id, u.user_id, u.full_name, u.email, u.password_hash, u.is_active, u.is_admin, u.last_login, u.created_at, u.activated_at FROM users u JOIN user_roles ur ON ur.user_id = u.id WHERE ur.role_id = $1 ORDER BY u.full_name ASC`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, roleID); err != nil {
		return nil, fmt.Errorf("users for role: %w", err)
	}
	return users, nil
}
