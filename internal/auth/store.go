package auth

import (
	"context"
	"errors"
)

// ErrNotFound is returned by stores when a record is absent.
var ErrNotFound = errors.New("auth: not found")

// Store aggregates the persistence operations the auth core consumes.
type Store interface {
	Users() UserStore
	Roles() RoleStore
	Permissions() PermissionStore
	Departments() DepartmentStore
}

// UserStore looks up administrative accounts.
type UserStore interface {
	Find(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
}

// RoleStore resolves role assignments.
type RoleStore interface {
	RolesForUser(ctx context.Context, userID string) ([]string, error)
}

// PermissionStore aggregates permission strings over roles.
type PermissionStore interface {
	PermissionsForRoles(ctx context.Context, roleIDs []string) ([]string, error)
}

// DepartmentStore resolves the department scope visible to a role set.
// allDepartments short-circuits scoping to every department; the flag is
// decided by policy at the call site, not in the store.
type DepartmentStore interface {
	DepartmentsForRoles(ctx context.Context, roleIDs []string, allDepartments bool) ([]string, error)
}
