// internal/dcr/store.go
package dcr

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var (
	ErrClientNotFound = errors.New("dcr: client not found")
	// ErrDuplicateOrder surfaces the order_id uniqueness violation; the
	// caller falls back to reading the winner's record.
	ErrDuplicateOrder = errors.New("dcr: client already registered for order")
)

// RegisteredClient is the issued OAuth client for one order. At most one
// exists per order_id; the storage layer enforces it.
type RegisteredClient struct {
	ClientID        string
	SecretEncrypted []byte
	OrderID         string
	AccountID       string
	RedirectURIs    []string
	GrantTypes      []string
	CreatedAt       time.Time
	Metadata        map[string]string
}

type ClientStore interface {
	GetByOrder(ctx context.Context, orderID string) (*RegisteredClient, error)
	Create(ctx context.Context, c *RegisteredClient) error
}

// EnsureSchema creates the registered_clients table. Safe to call
// repeatedly (idempotent).
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS registered_clients (
  client_id text PRIMARY KEY,
  client_secret_encrypted bytea NOT NULL,
  order_id text NOT NULL UNIQUE,
  account_id text NOT NULL,
  redirect_uris text[] NOT NULL DEFAULT '{}',
  grant_types text[] NOT NULL DEFAULT '{}',
  metadata jsonb NOT NULL DEFAULT '{}'::jsonb,
  created_at timestamptz NOT NULL DEFAULT NOW()
);
`)
	return err
}

type pgClientStore struct {
	dbPool *pgxpool.Pool
	log    *zap.SugaredLogger
}

func NewPostgresClientStore(dbPool *pgxpool.Pool, log *zap.SugaredLogger) ClientStore {
	return &pgClientStore{dbPool: dbPool, log: log}
}

func (s *pgClientStore) GetByOrder(ctx context.Context, orderID string) (*RegisteredClient, error) {
	row := s.dbPool.QueryRow(ctx, `SELECT client_id, client_secret_encrypted, order_id, account_id, redirect_uris, grant_types, metadata, created_at FROM registered_clients WHERE order_id=$1`, orderID)
	var c RegisteredClient
	var meta []byte
	if err := row.Scan(&c.ClientID, &c.SecretEncrypted, &c.OrderID, &c.AccountID, &c.RedirectURIs, &c.GrantTypes, &meta, &c.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal(meta, &c.Metadata)
	return &c, nil
}

func (s *pgClientStore) Create(ctx context.Context, c *RegisteredClient) error {
	meta := c.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, _ := json.Marshal(meta)
	_, err := s.dbPool.Exec(ctx, `INSERT INTO registered_clients(client_id, client_secret_encrypted, order_id, account_id, redirect_uris, grant_types, metadata)
	  VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		c.ClientID, c.SecretEncrypted, c.OrderID, c.AccountID, c.RedirectURIs, c.GrantTypes, metaJSON)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateOrder
		}
		return err
	}
	return nil
}

// memClientStore emulates the unique constraint under a mutex; it backs dev
// mode and tests.
type memClientStore struct {
	mu      sync.Mutex
	byOrder map[string]RegisteredClient
}

func NewMemoryClientStore() ClientStore {
	return &memClientStore{byOrder: map[string]RegisteredClient{}}
}

func (s *memClientStore) GetByOrder(ctx context.Context, orderID string) (*RegisteredClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byOrder[orderID]; ok {
		cp := c
		return &cp, nil
	}
	return nil, ErrClientNotFound
}

func (s *memClientStore) Create(ctx context.Context, c *RegisteredClient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byOrder[c.OrderID]; ok {
		return ErrDuplicateOrder
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.byOrder[c.OrderID] = *c
	return nil
}
