package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/authcorehq/authcore/internal/auth/domain"
	"github.com/authcorehq/authcore/internal/auth/store"
)

type applicationsRepo struct {
	db dbtx
}

const applicationColumns = `id, name, client_id, client_secret_hash, redirect_uris,
	cors_origins, access_token_ttl, refresh_token_ttl, status, created_at, updated_at, deleted_at`

func scanApplication(row interface{ Scan(...any) error }) (domain.Application, error) {
	var (
		a                     domain.Application
		redirectURIs, origins string
		status                string
		deletedAt             sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Name, &a.ClientID, &a.ClientSecretHash,
		&redirectURIs, &origins, &a.AccessTokenTTL, &a.RefreshTokenTTL,
		&status, &a.CreatedAt, &a.UpdatedAt, &deletedAt)
	if err != nil {
		return domain.Application{}, mapNotFound(err)
	}
	a.RedirectURIs = splitList(redirectURIs)
	a.CORSOrigins = splitList(origins)
	a.Status = domain.ApplicationStatus(status)
	a.DeletedAt = mapNullTimePtr(deletedAt)
	return a, nil
}

func (r *applicationsRepo) GetApplicationByID(ctx context.Context, id string) (domain.Application, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications
		 WHERE id = ? AND deleted_at IS NULL`, id)
	return scanApplication(row)
}

func (r *applicationsRepo) GetApplicationByClientID(ctx context.Context, clientID string) (domain.Application, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications
		 WHERE client_id = ? AND deleted_at IS NULL`, clientID)
	return scanApplication(row)
}

func (r *applicationsRepo) ListApplications(ctx context.Context, p store.ListApplicationsParams) ([]domain.Application, int, error) {
	where := []string{"deleted_at IS NULL"}
	args := []any{}

	if p.Search != "" {
		where = append(where, `instr(lower(name), lower(?)) > 0`)
		args = append(args, p.Search)
	}
	if p.Status != "" {
		where = append(where, `status = ?`)
		args = append(args, p.Status)
	}

	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM applications WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, limit := normalizePage(p.Page, p.Limit)
	args = append(args, limit, (page-1)*limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE `+cond+`
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var apps []domain.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, 0, err
		}
		apps = append(apps, a)
	}
	return apps, total, rows.Err()
}

func (r *applicationsRepo) CreateApplication(ctx context.Context, a domain.Application) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO applications (id, name, client_id, client_secret_hash,
		        redirect_uris, cors_origins, access_token_ttl, refresh_token_ttl,
		        status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.ClientID, a.ClientSecretHash,
		joinList(a.RedirectURIs), joinList(a.CORSOrigins),
		a.AccessTokenTTL, a.RefreshTokenTTL, string(a.Status),
		a.CreatedAt, a.UpdatedAt)
	return mapConstraint(err)
}

func (r *applicationsRepo) UpdateApplication(ctx context.Context, a domain.Application) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE applications
		 SET name = ?, redirect_uris = ?, cors_origins = ?,
		     access_token_ttl = ?, refresh_token_ttl = ?, status = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		a.Name, joinList(a.RedirectURIs), joinList(a.CORSOrigins),
		a.AccessTokenTTL, a.RefreshTokenTTL, string(a.Status), a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *applicationsRepo) UpdateClientSecretHash(ctx context.Context, id, secretHash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE applications SET client_secret_hash = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		secretHash, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *applicationsRepo) DeleteApplication(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE applications SET deleted_at = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		now, now, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *applicationsRepo) AllowsOrigin(ctx context.Context, origin string) (bool, error) {
	// Origins are stored space-delimited; pad both sides so a substring
	// match cannot cross entry boundaries.
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM applications
		 WHERE deleted_at IS NULL
		   AND instr(' ' || cors_origins || ' ', ' ' || lower(?) || ' ') > 0`,
		strings.TrimSpace(origin)).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *applicationsRepo) IsUserAssigned(ctx context.Context, userID, applicationID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_applications
		 WHERE user_id = ? AND application_id = ?`,
		userID, applicationID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *applicationsRepo) AssignUser(ctx context.Context, userID, applicationID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_applications (user_id, application_id, assigned_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (user_id, application_id) DO NOTHING`,
		userID, applicationID, at)
	return err
}

func (r *applicationsRepo) UnassignUser(ctx context.Context, userID, applicationID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM user_applications WHERE user_id = ? AND application_id = ?`,
		userID, applicationID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *applicationsRepo) ListApplicationUsers(ctx context.Context, applicationID string) ([]domain.ApplicationAssignment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ua.user_id, ua.application_id, a.name, ua.assigned_at
		 FROM user_applications ua
		 JOIN applications a ON a.id = ua.application_id
		 WHERE ua.application_id = ?
		 ORDER BY ua.assigned_at ASC`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAssignments(rows)
}

func (r *applicationsRepo) ListUserApplications(ctx context.Context, userID string) ([]domain.ApplicationAssignment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ua.user_id, ua.application_id, a.name, ua.assigned_at
		 FROM user_applications ua
		 JOIN applications a ON a.id = ua.application_id
		 WHERE ua.user_id = ? AND a.deleted_at IS NULL
		 ORDER BY ua.assigned_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAssignments(rows)
}

func scanAssignments(rows *sql.Rows) ([]domain.ApplicationAssignment, error) {
	var out []domain.ApplicationAssignment
	for rows.Next() {
		var a domain.ApplicationAssignment
		if err := rows.Scan(&a.UserID, &a.ApplicationID, &a.ApplicationName, &a.AssignedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
