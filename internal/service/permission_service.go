package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/MoainAlabbasi/telegram-archive-bot/internal/models"
	"github.com/MoainAlabbasi/telegram-archive-bot/internal/repository"
	appErrors "github.com/MoainAlabbasi/telegram-archive-bot/pkg/errors"
)

type permissionUserRepository interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
}

type permissionRoleRepository interface {
	Create(ctx context.Context, role *models.Role) error
	Update(ctx context.Context, role *models.Role) error
	Delete(ctx context.Context, id int64) error
	FindByID(ctx context.Context, id int64) (*models.Role, error)
	List(ctx context.Context) ([]models.Role, error)
	CountAssignments(ctx context.Context, roleID int64) (int, error)
	Assign(ctx context.Context, userID, roleID int64) error
	Unassign(ctx context.Context, userID, roleID int64) (bool, error)
	RolesForUser(ctx context.Context, userID int64) ([]models.Role, error)
}

// RoleRequest carries the fields for creating or updating a role.
type RoleRequest struct {
	Name        string               `json:"name" validate:"required,min=2,max=64"`
	Description string               `json:"description"`
	Permissions models.PermissionSet `json:"permissions"`
}

// PermissionService computes effective permissions and manages roles.
type PermissionService struct {
	users     permissionUserRepository
	roles     permissionRoleRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPermissionService constructs a PermissionService instance.
func NewPermissionService(users permissionUserRepository, roles permissionRoleRepository, validate *validator.Validate, logger *zap.Logger) *PermissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &PermissionService{users: users, roles: roles, validator: validate, logger: logger}
}

// EffectivePermissions merges the permission maps of every role assigned to
// the user. The merge starts from the denied baseline and only ever flips
// keys to true. Keys outside the recognized set survive the merge.
func (s *PermissionService) EffectivePermissions(ctx context.Context, userID int64) (models.PermissionSet, error) {
	roles, err := s.roles.RolesForUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch roles")
	}

	merged := models.BasePermissions()
	for _, role := range roles {
		for key, granted := range role.Permissions {
			if granted {
				merged[key] = true
			} else if _, known := merged[key]; !known {
				merged[key] = false
			}
		}
	}
	return merged, nil
}

// HasPermission reports whether the user may perform the keyed action. The
// admin flag short-circuits before any role lookup.
func (s *PermissionService) HasPermission(ctx context.Context, userID int64, key string) (bool, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if user.IsAdmin {
		return true, nil
	}

	perms, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return perms[key], nil
}

// CreateRole adds a role. A duplicate name is detected by the store's unique
// constraint, so two racing creates cannot both win.
func (s *PermissionService) CreateRole(ctx context.Context, req RoleRequest) (*models.Role, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}

	role := &models.Role{
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
	}
	if role.Permissions == nil {
		role.Permissions = models.PermissionSet{}
	}
	if err := s.roles.Create(ctx, role); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateName, "role name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create role")
	}
	return role, nil
}

// UpdateRole replaces a role's name, description and grants.
func (s *PermissionService) UpdateRole(ctx context.Context, id int64, req RoleRequest) (*models.Role, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}

	role, err := s.roles.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "role not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch role")
	}

	role.Name = req.Name
	role.Description = req.Description
	role.Permissions = req.Permissions
	if role.Permissions == nil {
		role.Permissions = models.PermissionSet{}
	}
	if err := s.roles.Update(ctx, role); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateName, "role name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update role")
	}
	return role, nil
}

// DeleteRole removes a role unless any user still holds it.
func (s *PermissionService) DeleteRole(ctx context.Context, id int64) error {
	if _, err := s.roles.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "role not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch role")
	}

	count, err := s.roles.CountAssignments(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count assignments")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrRoleInUse, "role is assigned to one or more users")
	}

	if err := s.roles.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete role")
	}
	return nil
}

// GetRole returns a single role by id.
func (s *PermissionService) GetRole(ctx context.Context, id int64) (*models.Role, error) {
	role, err := s.roles.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "role not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch role")
	}
	return role, nil
}

// UserRoles returns the roles currently assigned to a user.
func (s *PermissionService) UserRoles(ctx context.Context, userID int64) ([]models.Role, error) {
	roles, err := s.roles.RolesForUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch roles")
	}
	return roles, nil
}

// ListRoles returns every role.
func (s *PermissionService) ListRoles(ctx context.Context) ([]models.Role, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roles")
	}
	return roles, nil
}

// AssignRole grants a role to a user. The duplicate check rides on the
// store's unique (user, role) constraint rather than a pre-read.
func (s *PermissionService) AssignRole(ctx context.Context, userID, roleID int64) error {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if _, err := s.roles.FindByID(ctx, roleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "role not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch role")
	}

	if err := s.roles.Assign(ctx, userID, roleID); err != nil {
		if repository.IsUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrAlreadyAssigned, "role already assigned to this user")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign role")
	}
	return nil
}

// UnassignRole revokes a role from a user. Revoking a grant that does not
// exist succeeds; the end state is the same either way.
func (s *PermissionService) UnassignRole(ctx context.Context, userID, roleID int64) error {
	if _, err := s.roles.Unassign(ctx, userID, roleID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unassign role")
	}
	return nil
}
