package tenant

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// PostgresStore persists tenants in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed tenant store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, t *Tenant) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO tenants (id, account_id, name, slug, timezone, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.AccountID, t.Name, t.Slug, t.Timezone, string(t.Status),
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrSlugTaken
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Tenant, error) {
	return p.scanTenant(p.db.QueryRowContext(ctx, `
		SELECT id, account_id, name, slug, timezone, status, created_at, updated_at
		FROM tenants WHERE id = $1`, id))
}

func (p *PostgresStore) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return p.scanTenant(p.db.QueryRowContext(ctx, `
		SELECT id, account_id, name, slug, timezone, status, created_at, updated_at
		FROM tenants WHERE slug = $1`, slug))
}

func (p *PostgresStore) Update(ctx context.Context, t *Tenant) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE tenants SET name = $1, timezone = $2, status = $3, updated_at = $4
		WHERE id = $5`,
		t.Name, t.Timezone, string(t.Status), t.UpdatedAt, t.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (p *PostgresStore) scanTenant(row *sql.Row) (*Tenant, error) {
	t := &Tenant{}
	var status string
	err := row.Scan(&t.ID, &t.AccountID, &t.Name, &t.Slug, &t.Timezone, &status,
		&t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Status = Status(status)
	return t, nil
}
