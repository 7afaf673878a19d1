package sqlite

import (
	"context"
	"database/sql"

	"github.com/authcorehq/authcore/internal/auth/store"
)

type txStore struct {
	tx *sql.Tx
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error { return nil } // outer DB stays open; caller commits or rolls back

// Ping is a no-op inside a transaction; the connection already exists.
func (t *txStore) Ping(ctx context.Context) error { return nil }

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	// Nested tx not supported; could emulate with SAVEPOINT if needed
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) ApplyMigrations() error { return nil } // migrations run before any tx starts

func (t *txStore) Users() store.Users                 { return &usersRepo{db: t.tx} }
func (t *txStore) Applications() store.Applications   { return &applicationsRepo{db: t.tx} }
func (t *txStore) Roles() store.Roles                 { return &rolesRepo{db: t.tx} }
func (t *txStore) RefreshTokens() store.RefreshTokens { return &refreshTokensRepo{db: t.tx} }
func (t *txStore) AuditLogs() store.AuditLogs         { return &auditLogsRepo{db: t.tx} }
