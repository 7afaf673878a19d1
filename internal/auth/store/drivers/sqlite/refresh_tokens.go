package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/authcorehq/authcore/internal/auth/domain"
)

type refreshTokensRepo struct {
	db dbtx
}

const refreshTokenColumns = `id, user_id, application_id, token_hash, type, issued_at, expires_at, revoked_at`

func scanRefreshToken(row interface{ Scan(...any) error }) (domain.RefreshToken, error) {
	var (
		t         domain.RefreshToken
		revokedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.UserID, &t.ApplicationID, &t.TokenHash,
		&t.Type, &t.IssuedAt, &t.ExpiresAt, &revokedAt)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	t.RevokedAt = mapNullTimePtr(revokedAt)
	return t, nil
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, application_id, token_hash,
		        type, issued_at, expires_at, revoked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.ApplicationID, t.TokenHash,
		t.Type, t.IssuedAt, t.ExpiresAt, mapOptionalTime(t.RevokedAt))
	return mapConstraint(err)
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token_hash = ?`, hash)
	return scanRefreshToken(row)
}

func (r *refreshTokensRepo) RevokeRefreshToken(ctx context.Context, tokenHash string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ?
		 WHERE token_hash = ? AND revoked_at IS NULL`,
		now, tokenHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *refreshTokensRepo) RevokeAllLive(ctx context.Context, userID, applicationID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ?
		 WHERE user_id = ? AND application_id = ?
		   AND revoked_at IS NULL AND expires_at > ?`,
		now, userID, applicationID, now)
	return err
}

func (r *refreshTokensRepo) RevokeAllLiveForUser(ctx context.Context, userID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ?
		 WHERE user_id = ? AND revoked_at IS NULL AND expires_at > ?`,
		now, userID, now)
	return err
}

func (r *refreshTokensRepo) ListUserApplicationTokens(ctx context.Context, userID, applicationID string) ([]domain.RefreshToken, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens
		 WHERE user_id = ? AND application_id = ?
		 ORDER BY issued_at DESC, id DESC`, userID, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []domain.RefreshToken
	for rows.Next() {
		t, err := scanRefreshToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (r *refreshTokensRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < ?`, cutoff)
	return err
}
