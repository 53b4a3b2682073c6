// internal/statement/validator.go
package statement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Claim carrying the marketplace order this statement asserts rights over.
const orderClaim = "entitlement_id"

var (
	ErrInvalid = errors.New("invalid software statement")
	ErrExpired = errors.New("software statement expired")
)

// Claims is the verified content of a software statement.
type Claims struct {
	OrderID   string
	AccountID string
}

// Validator verifies vendor-signed software statements. Verification is a
// fixed pipeline; there are no retries beyond the single forced certificate
// refresh on an unknown key ID.
type Validator struct {
	certs    *CertificateCache
	issuer   string
	audience string
	skew     time.Duration
}

func NewValidator(certs *CertificateCache, issuer, audience string) *Validator {
	return &Validator{certs: certs, issuer: issuer, audience: audience, skew: time.Minute}
}

func (v *Validator) Validate(ctx context.Context, raw string) (Claims, error) {
	msg, err := jws.Parse([]byte(raw))
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	sigs := msg.Signatures()
	if len(sigs) == 0 {
		return Claims{}, fmt.Errorf("%w: no signature", ErrInvalid)
	}
	hdr := sigs[0].ProtectedHeaders()
	kid := hdr.KeyID()
	if kid == "" {
		return Claims{}, fmt.Errorf("%w: kid header missing", ErrInvalid)
	}
	if hdr.Algorithm() != jwa.RS256 {
		return Claims{}, fmt.Errorf("%w: algorithm %q not allowed", ErrInvalid, hdr.Algorithm())
	}

	key, err := v.certs.Get(ctx, kid)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: certificate fetch: %v", ErrInvalid, err)
	}
	if key == nil {
		// The vendor may have rotated certificates since our last fetch.
		v.certs.ForceRefresh()
		key, err = v.certs.Get(ctx, kid)
		if err != nil || key == nil {
			return Claims{}, fmt.Errorf("%w: key not found for kid %q", ErrInvalid, kid)
		}
	}

	tok, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.RS256, key),
		jwt.WithValidate(true),
		jwt.WithAudience(v.audience),
		jwt.WithAcceptableSkew(v.skew),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			return Claims{}, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	// Exact match only; a prefix match would accept lookalike issuers.
	if tok.Issuer() != v.issuer {
		return Claims{}, fmt.Errorf("%w: issuer %q", ErrInvalid, tok.Issuer())
	}

	orderID := ""
	if raw, ok := tok.Get(orderClaim); ok {
		orderID, _ = raw.(string)
	}
	if orderID == "" {
		return Claims{}, fmt.Errorf("%w: %s claim missing", ErrInvalid, orderClaim)
	}

	return Claims{OrderID: orderID, AccountID: tok.Subject()}, nil
}
