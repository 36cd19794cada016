package auth

import (
	"context"
	"database/sql"
	"sort"
	"strings"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users() UserStore             { return &userStore{db: s.db} }
func (s *PGStore) Roles() RoleStore             { return &roleStore{db: s.db} }
func (s *PGStore) Permissions() PermissionStore { return &permissionStore{db: s.db} }
func (s *PGStore) Departments() DepartmentStore { return &departmentStore{db: s.db} }

// User store ---------------------------------------------------------------
type userStore struct{ db *sql.DB }

const userColumns = `id, username, name, password_hash, status, password_version, department_id, created_at, updated_at`

func scanUser(row *sql.Row) (*User, error) {
	var (
		u          User
		department sql.NullString
	)
	err := row.Scan(&u.ID, &u.Username, &u.Name, &u.PasswordHash, &u.Status,
		&u.PasswordVersion, &department, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.DepartmentID = department.String
	return &u, nil
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *userStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where username=$1`, username)
	return scanUser(row)
}

// Role store ---------------------------------------------------------------
type roleStore struct{ db *sql.DB }

func (s *roleStore) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select role_id from user_roles where user_id=$1 order by role_id asc`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

// Permission store ----------------------------------------------------------
// Permissions live on menu records as comma-separated capability strings;
// the aggregate over a role set is their deduplicated union.
type permissionStore struct{ db *sql.DB }

func (s *permissionStore) PermissionsForRoles(ctx context.Context, roleIDs []string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, roleID := range roleIDs {
		rows, err := s.db.QueryContext(ctx,
			`select m.perms from menus m
			 join role_menus rm on rm.menu_id = m.id
			 where rm.role_id=$1 and m.perms <> ''`, roleID)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var perms string
			if err := rows.Scan(&perms); err != nil {
				rows.Close()
				return nil, err
			}
			for _, p := range strings.Split(perms, ",") {
				p = strings.TrimSpace(p)
				if p != "" {
					seen[p] = struct{}{}
				}
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	res := make([]string, 0, len(seen))
	for p := range seen {
		res = append(res, p)
	}
	sort.Strings(res)
	return res, nil
}

// Department store -----------------------------------------------------------
type departmentStore struct{ db *sql.DB }

func (s *departmentStore) DepartmentsForRoles(ctx context.Context, roleIDs []string, allDepartments bool) ([]string, error) {
	if allDepartments {
		rows, err := s.db.QueryContext(ctx,
			`select id from departments order by order_num asc, id asc`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return collectIDs(rows)
	}

	seen := make(map[string]struct{})
	var res []string
	for _, roleID := range roleIDs {
		rows, err := s.db.QueryContext(ctx,
			`select department_id from role_departments where role_id=$1 order by department_id asc`, roleID)
		if err != nil {
			return nil, err
		}
		ids, err := collectIDs(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			res = append(res, id)
		}
	}
	return res, nil
}

func collectIDs(rows *sql.Rows) ([]string, error) {
	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}
