package sqlite

import (
	"context"
	"time"

	"github.com/authcorehq/authcore/internal/auth/domain"
)

type rolesRepo struct {
	db dbtx
}

const roleColumns = `id, name, description, permissions, created_at, updated_at`

func scanRole(row interface{ Scan(...any) error }) (domain.Role, error) {
	var (
		r           domain.Role
		permissions string
	)
	err := row.Scan(&r.ID, &r.Name, &r.Description, &permissions, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return domain.Role{}, mapNotFound(err)
	}
	r.Permissions = splitList(permissions)
	return r, nil
}

func (r *rolesRepo) GetRoleByID(ctx context.Context, id string) (domain.Role, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id = ?`, id)
	return scanRole(row)
}

func (r *rolesRepo) GetRoleByName(ctx context.Context, name string) (domain.Role, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE name = ?`, name)
	return scanRole(row)
}

func (r *rolesRepo) ListRoles(ctx context.Context) ([]domain.Role, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+roleColumns+` FROM roles ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *rolesRepo) CreateRole(ctx context.Context, role domain.Role) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO roles (id, name, description, permissions, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		role.ID, role.Name, role.Description, joinList(role.Permissions),
		role.CreatedAt, role.UpdatedAt)
	return mapConstraint(err)
}

func (r *rolesRepo) DeleteRole(ctx context.Context, roleID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM roles WHERE id = ?`, roleID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *rolesRepo) ListUserRoles(ctx context.Context, userID string) ([]domain.RoleAssignment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ur.user_id, ur.role_id, ro.name, ur.assigned_at
		 FROM user_roles ur
		 JOIN roles ro ON ro.id = ur.role_id
		 WHERE ur.user_id = ?
		 ORDER BY ur.assigned_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RoleAssignment
	for rows.Next() {
		var a domain.RoleAssignment
		if err := rows.Scan(&a.UserID, &a.RoleID, &a.RoleName, &a.AssignedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *rolesRepo) AssignRole(ctx context.Context, userID, roleID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_id, assigned_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (user_id, role_id) DO NOTHING`,
		userID, roleID, at)
	return err
}

func (r *rolesRepo) UnassignRole(ctx context.Context, userID, roleID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = ? AND role_id = ?`,
		userID, roleID)
	if err != nil {
		return err
	}
	return requireRow(res)
}
