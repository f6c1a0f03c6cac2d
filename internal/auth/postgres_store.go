package auth

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists API keys in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed key store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, key *APIKey) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, hash, account_id, name, created_at, last_used, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.Hash, key.AccountID, key.Name, key.CreatedAt,
		nullTime(key.LastUsed), key.ExpiresAt, key.Revoked,
	)
	return err
}

func (p *PostgresStore) GetByHash(ctx context.Context, hash string) (*APIKey, error) {
	return p.scanKey(p.db.QueryRowContext(ctx, `
		SELECT id, hash, account_id, name, created_at, last_used, expires_at, revoked
		FROM api_keys WHERE hash = $1`, hash))
}

func (p *PostgresStore) GetByAccount(ctx context.Context, accountID string) ([]*APIKey, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, hash, account_id, name, created_at, last_used, expires_at, revoked
		FROM api_keys WHERE account_id = $1 ORDER BY created_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var keys []*APIKey
	for rows.Next() {
		key, err := scanKeyRow(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, key *APIKey) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE api_keys SET last_used = $1, expires_at = $2, revoked = $3
		WHERE id = $4`,
		nullTime(key.LastUsed), key.ExpiresAt, key.Revoked, key.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrKeyNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (p *PostgresStore) scanKey(row *sql.Row) (*APIKey, error) {
	key, err := scanKeyRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	return key, err
}

func scanKeyRow(row rowScanner) (*APIKey, error) {
	key := &APIKey{}
	var lastUsed sql.NullTime
	err := row.Scan(&key.ID, &key.Hash, &key.AccountID, &key.Name,
		&key.CreatedAt, &lastUsed, &key.ExpiresAt, &key.Revoked)
	if err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		key.LastUsed = lastUsed.Time
	}
	return key, nil
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
