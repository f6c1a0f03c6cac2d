package billing

import (
	"context"
	"database/sql"
)

// PostgresStore persists billing records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed billing store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `tenant_id, account_id, status, stripe_customer_id,
	stripe_subscription_id, stripe_price_id, cancel_at_period_end,
	current_period_start, current_period_end, billing_started_at,
	billing_canceled_at, updated_at`

func (p *PostgresStore) Get(ctx context.Context, tenantID string) (*Record, error) {
	return p.scanRecord(p.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM tenant_billing WHERE tenant_id = $1`, tenantID))
}

// FindByRemoteRef matches on stored subscription ID or customer ID in one
// query; a single round trip keeps the race window to one lookup. Empty
// arguments are excluded so unlinked rows never match.
func (p *PostgresStore) FindByRemoteRef(ctx context.Context, subscriptionID, customerID string) (*Record, error) {
	if subscriptionID == "" && customerID == "" {
		return nil, ErrRecordNotFound
	}
	return p.scanRecord(p.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM tenant_billing
		WHERE (stripe_subscription_id = $1 AND $1 <> '')
		   OR (stripe_customer_id = $2 AND $2 <> '')
		LIMIT 1`, subscriptionID, customerID))
}

// Upsert writes the projection keyed by tenant ID. Plain last-writer-wins:
// every writer computes the same deterministic projection from the remote
// source of truth, so no concurrency token is needed.
func (p *PostgresStore) Upsert(ctx context.Context, rec *Record) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO tenant_billing (tenant_id, account_id, status,
			stripe_customer_id, stripe_subscription_id, stripe_price_id,
			cancel_at_period_end, current_period_start, current_period_end,
			billing_started_at, billing_canceled_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (tenant_id) DO UPDATE SET
			account_id = COALESCE(NULLIF(EXCLUDED.account_id, ''), tenant_billing.account_id),
			status = EXCLUDED.status,
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			stripe_price_id = EXCLUDED.stripe_price_id,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			billing_started_at = EXCLUDED.billing_started_at,
			billing_canceled_at = EXCLUDED.billing_canceled_at,
			updated_at = EXCLUDED.updated_at`,
		rec.TenantID, rec.AccountID, string(rec.Status),
		rec.StripeCustomerID, rec.StripeSubscriptionID, rec.StripePriceID,
		rec.CancelAtPeriodEnd, rec.CurrentPeriodStart, rec.CurrentPeriodEnd,
		rec.BillingStartedAt, rec.BillingCanceledAt, rec.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) scanRecord(row *sql.Row) (*Record, error) {
	rec := &Record{}
	var (
		status      string
		customerID  sql.NullString
		subID       sql.NullString
		priceID     sql.NullString
		periodStart sql.NullTime
		periodEnd   sql.NullTime
		startedAt   sql.NullTime
		canceledAt  sql.NullTime
	)
	err := row.Scan(&rec.TenantID, &rec.AccountID, &status, &customerID,
		&subID, &priceID, &rec.CancelAtPeriodEnd, &periodStart, &periodEnd,
		&startedAt, &canceledAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	rec.StripeCustomerID = customerID.String
	rec.StripeSubscriptionID = subID.String
	rec.StripePriceID = priceID.String
	if periodStart.Valid {
		t := periodStart.Time
		rec.CurrentPeriodStart = &t
	}
	if periodEnd.Valid {
		t := periodEnd.Time
		rec.CurrentPeriodEnd = &t
	}
	if startedAt.Valid {
		t := startedAt.Time
		rec.BillingStartedAt = &t
	}
	if canceledAt.Valid {
		t := canceledAt.Time
		rec.BillingCanceledAt = &t
	}
	return rec, nil
}

// Migrate creates the tenant_billing table (used in dev/test; prod uses
// migration files).
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tenant_billing (
			tenant_id              TEXT PRIMARY KEY,
			account_id             TEXT NOT NULL DEFAULT '',
			status                 TEXT NOT NULL DEFAULT 'inactive',
			stripe_customer_id     TEXT NOT NULL DEFAULT '',
			stripe_subscription_id TEXT NOT NULL DEFAULT '',
			stripe_price_id        TEXT NOT NULL DEFAULT '',
			cancel_at_period_end   BOOLEAN NOT NULL DEFAULT FALSE,
			current_period_start   TIMESTAMPTZ,
			current_period_end     TIMESTAMPTZ,
			billing_started_at     TIMESTAMPTZ,
			billing_canceled_at    TIMESTAMPTZ,
			updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_tenant_billing_subscription
			ON tenant_billing(stripe_subscription_id) WHERE stripe_subscription_id <> '';
		CREATE INDEX IF NOT EXISTS idx_tenant_billing_customer
			ON tenant_billing(stripe_customer_id) WHERE stripe_customer_id <> ''`)
	return err
}
