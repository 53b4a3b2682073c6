// internal/procurement/postgres.go
package procurement

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// EnsureSchema creates the account and entitlement tables if they do not
// already exist. Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS accounts (
  id text PRIMARY KEY,
  provider_id text NOT NULL DEFAULT '',
  state text NOT NULL,
  metadata jsonb NOT NULL DEFAULT '{}'::jsonb,
  created_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS entitlements (
  id text PRIMARY KEY,
  account_id text NOT NULL REFERENCES accounts(id),
  state text NOT NULL,
  plan text NOT NULL DEFAULT '',
  provider_id text NOT NULL DEFAULT '',
  usage_reporting_id text NOT NULL DEFAULT '',
  offer_start_time timestamptz,
  offer_end_time timestamptz,
  cancellation_reason text NOT NULL DEFAULT '',
  metadata jsonb NOT NULL DEFAULT '{}'::jsonb,
  created_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS entitlements_account_idx ON entitlements(account_id);
`)
	return err
}

type pgAccountRepo struct {
	dbPool *pgxpool.Pool
	log    *zap.SugaredLogger
}

func NewPostgresAccountRepo(dbPool *pgxpool.Pool, log *zap.SugaredLogger) AccountRepo {
	return &pgAccountRepo{dbPool: dbPool, log: log}
}

func (r *pgAccountRepo) Get(ctx context.Context, id string) (*Account, error) {
	row := r.dbPool.QueryRow(ctx, `SELECT id, provider_id, state, metadata, created_at, updated_at FROM accounts WHERE id=$1`, id)
	var a Account
	var meta []byte
	if err := row.Scan(&a.ID, &a.ProviderID, &a.State, &meta, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal(meta, &a.Metadata)
	return &a, nil
}

func (r *pgAccountRepo) Upsert(ctx context.Context, a *Account) error {
	meta := toJSONMap(a.Metadata)
	a.UpdatedAt = time.Now()
	_, err := r.dbPool.Exec(ctx, `INSERT INTO accounts(id, provider_id, state, metadata)
	  VALUES ($1,$2,$3,$4)
	  ON CONFLICT (id) DO UPDATE SET provider_id=EXCLUDED.provider_id, state=EXCLUDED.state, metadata=EXCLUDED.metadata, updated_at=NOW()`,
		a.ID, a.ProviderID, a.State, meta)
	return err
}

type pgEntitlementRepo struct {
	dbPool *pgxpool.Pool
	log    *zap.SugaredLogger
}

func NewPostgresEntitlementRepo(dbPool *pgxpool.Pool, log *zap.SugaredLogger) EntitlementRepo {
	return &pgEntitlementRepo{dbPool: dbPool, log: log}
}

func (r *pgEntitlementRepo) Get(ctx context.Context, id string) (*Entitlement, error) {
	row := r.dbPool.QueryRow(ctx, `SELECT id, account_id, state, plan, provider_id, usage_reporting_id, offer_start_time, offer_end_time, cancellation_reason, metadata, created_at, updated_at FROM entitlements WHERE id=$1`, id)
	var e Entitlement
	var meta []byte
	if err := row.Scan(&e.ID, &e.AccountID, &e.State, &e.Plan, &e.ProviderID, &e.UsageReportingID, &e.OfferStartTime, &e.OfferEndTime, &e.CancellationReason, &meta, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal(meta, &e.Metadata)
	return &e, nil
}

func (r *pgEntitlementRepo) Upsert(ctx context.Context, e *Entitlement) error {
	meta := toJSONMap(e.Metadata)
	e.UpdatedAt = time.Now()
	_, err := r.dbPool.Exec(ctx, `INSERT INTO entitlements(id, account_id, state, plan, provider_id, usage_reporting_id, offer_start_time, offer_end_time, cancellation_reason, metadata)
	  VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	  ON CONFLICT (id) DO UPDATE SET
	    account_id=EXCLUDED.account_id, state=EXCLUDED.state, plan=EXCLUDED.plan,
	    provider_id=EXCLUDED.provider_id, usage_reporting_id=EXCLUDED.usage_reporting_id,
	    offer_start_time=EXCLUDED.offer_start_time, offer_end_time=EXCLUDED.offer_end_time,
	    cancellation_reason=EXCLUDED.cancellation_reason, metadata=EXCLUDED.metadata, updated_at=NOW()`,
		e.ID, e.AccountID, e.State, e.Plan, e.ProviderID, e.UsageReportingID, e.OfferStartTime, e.OfferEndTime, e.CancellationReason, meta)
	return err
}

func toJSONMap(m map[string]string) []byte {
	if m == nil {
		m = map[string]string{}
	}
	b, _ := json.Marshal(m)
	return b
}
