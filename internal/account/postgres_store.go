package account

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lib/pq"
)

// PostgresStore persists accounts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed account store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, a *Account) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, role, tenant_id, onboarding_step, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, strings.ToLower(a.Email), string(a.Role), nullIfEmpty(a.TenantID),
		a.OnboardingStep, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Account, error) {
	return p.scanAccount(p.db.QueryRowContext(ctx, `
		SELECT id, email, role, tenant_id, onboarding_step, created_at, updated_at
		FROM accounts WHERE id = $1`, id))
}

func (p *PostgresStore) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return p.scanAccount(p.db.QueryRowContext(ctx, `
		SELECT id, email, role, tenant_id, onboarding_step, created_at, updated_at
		FROM accounts WHERE email = $1`, strings.ToLower(email)))
}

func (p *PostgresStore) Update(ctx context.Context, a *Account) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE accounts SET email = $1, role = $2, tenant_id = $3,
			onboarding_step = $4, updated_at = $5
		WHERE id = $6`,
		strings.ToLower(a.Email), string(a.Role), nullIfEmpty(a.TenantID),
		a.OnboardingStep, a.UpdatedAt, a.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// AdvanceOnboarding bumps onboarding_step to step in a single conditional
// update, so concurrent webhook retries cannot move it backward.
func (p *PostgresStore) AdvanceOnboarding(ctx context.Context, id string, step int) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE accounts SET onboarding_step = $1, updated_at = NOW()
		WHERE id = $2 AND onboarding_step < $1`, step, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Either the account is already at/past the step (fine) or it does
		// not exist. Distinguish so callers can log missing accounts.
		var exists bool
		if err := p.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrAccountNotFound
		}
	}
	return nil
}

func (p *PostgresStore) scanAccount(row *sql.Row) (*Account, error) {
	a := &Account{}
	var (
		role     string
		tenantID sql.NullString
	)
	err := row.Scan(&a.ID, &a.Email, &role, &tenantID, &a.OnboardingStep,
		&a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Role = Role(role)
	if tenantID.Valid {
		a.TenantID = tenantID.String
	}
	return a, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
