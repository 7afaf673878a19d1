package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/authcorehq/authcore/internal/auth/domain"
	"github.com/authcorehq/authcore/internal/auth/store"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, name, email, password_hash, status, last_login, password_last_changed, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var (
		u                    domain.User
		status               string
		lastLogin, pwChanged sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &status,
		&lastLogin, &pwChanged, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.Status = domain.UserStatus(status)
	u.LastLogin = mapNullTimePtr(lastLogin)
	u.PasswordLastChanged = mapNullTimePtr(pwChanged)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower(?)`, email)
	return scanUser(row)
}

func (r *usersRepo) ListUsers(ctx context.Context, p store.ListUsersParams) ([]domain.User, int, error) {
	where := []string{"1 = 1"}
	args := []any{}

	if p.Search != "" {
		where = append(where, `(instr(lower(name), lower(?)) > 0 OR instr(lower(email), lower(?)) > 0)`)
		args = append(args, p.Search, p.Search)
	}
	if p.Status != "" {
		where = append(where, `status = ?`)
		args = append(args, p.Status)
	}
	if p.Role != "" {
		where = append(where, `id IN (
			SELECT ur.user_id FROM user_roles ur
			JOIN roles r ON r.id = ur.role_id
			WHERE r.name = ?)`)
		args = append(args, p.Role)
	}

	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, limit := normalizePage(p.Page, p.Limit)
	args = append(args, limit, (page-1)*limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+cond+`
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, status, last_login,
		                    password_last_changed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, string(u.Status),
		mapOptionalTime(u.LastLogin), mapOptionalTime(u.PasswordLastChanged),
		u.CreatedAt, u.UpdatedAt)
	return mapConstraint(err)
}

func (r *usersRepo) UpdateUser(ctx context.Context, u domain.User) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		u.Name, u.Email, string(u.Status), u.UpdatedAt, u.ID)
	if err != nil {
		return mapConstraint(err)
	}
	return requireRow(res)
}

func (r *usersRepo) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login = ?, updated_at = ? WHERE id = ?`,
		at, at, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, newHash string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, password_last_changed = ?, updated_at = ?
		 WHERE id = ?`,
		newHash, at, at, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) DeleteUser(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}
