// internal/dcr/service.go
package dcr

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"billgate/internal/procurement"
	"billgate/internal/secrets"
	"billgate/internal/statement"
	"billgate/pkg/metrics"
)

// Credentials is the fixed three-field response contract. Secrets issued
// here never expire, so the expiry field is always zero.
type Credentials struct {
	ClientID              string `json:"client_id"`
	ClientSecret          string `json:"client_secret"`
	ClientSecretExpiresAt int64  `json:"client_secret_expires_at"`
}

// StatementValidator verifies a software statement and returns its claims.
type StatementValidator interface {
	Validate(ctx context.Context, raw string) (statement.Claims, error)
}

type Options struct {
	// SkipApproval bypasses the account/entitlement state checks. Dev and
	// test only.
	SkipApproval bool
	// Static credentials: when set, registration echoes this pair after
	// statement validation instead of issuing anything.
	StaticClientID     string
	StaticClientSecret string
}

// Service implements dynamic client registration: exactly one client per
// order, replays answered with the original credentials.
type Service struct {
	log          *zap.SugaredLogger
	validator    StatementValidator
	cipher       *secrets.Cipher
	store        ClientStore
	accounts     procurement.AccountRepo
	entitlements procurement.EntitlementRepo
	idp          IdPClient // nil means mint locally
	opts         Options
}

func NewService(
	log *zap.SugaredLogger,
	validator StatementValidator,
	cipher *secrets.Cipher,
	store ClientStore,
	accounts procurement.AccountRepo,
	entitlements procurement.EntitlementRepo,
	idp IdPClient,
	opts Options,
) *Service {
	return &Service{
		log:          log,
		validator:    validator,
		cipher:       cipher,
		store:        store,
		accounts:     accounts,
		entitlements: entitlements,
		idp:          idp,
		opts:         opts,
	}
}

func (s *Service) Register(ctx context.Context, rawStatement string) (Credentials, *Error) {
	claims, err := s.validator.Validate(ctx, rawStatement)
	if err != nil {
		if errors.Is(err, statement.ErrExpired) {
			return Credentials{}, errf(KindExpired, err, "software statement expired")
		}
		return Credentials{}, errf(KindInvalidStatement, err, "software statement rejected")
	}

	if !s.opts.SkipApproval {
		if derr := s.authorize(ctx, claims); derr != nil {
			return Credentials{}, derr
		}
	}

	if s.opts.StaticClientID != "" {
		return Credentials{ClientID: s.opts.StaticClientID, ClientSecret: s.opts.StaticClientSecret}, nil
	}

	// Replay: the vendor may call registration any number of times for the
	// same order and must always receive the identical pair.
	if creds, derr, found := s.replay(ctx, claims.OrderID); found {
		return creds, derr
	}

	clientID, clientSecret, err := s.mint(ctx, claims.OrderID)
	if err != nil {
		return Credentials{}, errf(KindServerError, err, "client creation failed")
	}

	enc, err := s.cipher.Encrypt([]byte(clientSecret))
	if err != nil {
		return Credentials{}, errf(KindServerError, err, "secret encryption failed")
	}

	rec := &RegisteredClient{
		ClientID:        clientID,
		SecretEncrypted: enc,
		OrderID:         claims.OrderID,
		AccountID:       claims.AccountID,
		GrantTypes:      []string{"client_credentials"},
	}
	if err := s.store.Create(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateOrder) {
			// Lost a first-issuance race: return the winner's credentials.
			if creds, derr, found := s.replay(ctx, claims.OrderID); found {
				return creds, derr
			}
		}
		return Credentials{}, errf(KindServerError, err, "client persistence failed")
	}

	s.linkEntitlement(ctx, claims.OrderID, clientID)
	metrics.ClientsIssued.Inc()
	s.log.Infow("client registered", "order", claims.OrderID, "client", clientID)
	return Credentials{ClientID: clientID, ClientSecret: clientSecret}, nil
}

func (s *Service) authorize(ctx context.Context, claims statement.Claims) *Error {
	acct, err := s.accounts.Get(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, procurement.ErrNotFound) {
			return errf(KindUnapproved, nil, "account %s not provisioned", claims.AccountID)
		}
		return errf(KindServerError, err, "account lookup failed")
	}
	if acct.State != procurement.AccountStateActive {
		return errf(KindUnapproved, nil, "account %s is %s", acct.ID, acct.State)
	}

	ent, err := s.entitlements.Get(ctx, claims.OrderID)
	if err != nil {
		if errors.Is(err, procurement.ErrNotFound) {
			return errf(KindUnapproved, nil, "order %s not provisioned", claims.OrderID)
		}
		return errf(KindServerError, err, "order lookup failed")
	}
	if ent.AccountID != acct.ID {
		return errf(KindUnapproved, nil, "order %s does not belong to account %s", ent.ID, acct.ID)
	}
	if ent.State != procurement.EntitlementStateActive {
		return errf(KindUnapproved, nil, "order %s is %s", ent.ID, ent.State)
	}
	return nil
}

func (s *Service) replay(ctx context.Context, orderID string) (Credentials, *Error, bool) {
	rec, err := s.store.GetByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return Credentials{}, nil, false
		}
		return Credentials{}, errf(KindServerError, err, "client lookup failed"), true
	}
	plain, err := s.cipher.Decrypt(rec.SecretEncrypted)
	if err != nil {
		return Credentials{}, errf(KindServerError, err, "stored secret unreadable"), true
	}
	metrics.ClientsReplayed.Inc()
	return Credentials{ClientID: rec.ClientID, ClientSecret: string(plain)}, nil, true
}

func (s *Service) mint(ctx context.Context, orderID string) (string, string, error) {
	if s.idp != nil {
		return s.idp.CreateClient(ctx, orderID, nil, []string{"client_credentials"})
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	return uuid.NewString(), base64.RawURLEncoding.EncodeToString(buf), nil
}

// linkEntitlement records the client id on the entitlement for operator
// visibility. Best effort: the registered_clients row is the authority.
func (s *Service) linkEntitlement(ctx context.Context, orderID, clientID string) {
	ent, err := s.entitlements.Get(ctx, orderID)
	if err != nil {
		return
	}
	if ent.Metadata == nil {
		ent.Metadata = map[string]string{}
	}
	ent.Metadata["client_id"] = clientID
	if err := s.entitlements.Upsert(ctx, ent); err != nil {
		s.log.Warnw("entitlement client link failed", "order", orderID, "err", err)
	}
}
