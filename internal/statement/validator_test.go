package statement

import (
	"context"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(t *testing.T, cs *certServer) *Validator {
	t.Helper()
	return NewValidator(cs.cache(t, time.Hour), testIssuer, testAudience)
}

func TestValidateOK(t *testing.T) {
	key := newVendorKey(t, "kid-1")
	v := newValidator(t, newCertServer(key))

	raw := signStatement(t, key, statementOpts{orderID: "order-42", subject: "acct-7"})

	claims, err := v.Validate(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "order-42", claims.OrderID)
	assert.Equal(t, "acct-7", claims.AccountID)
}

func TestValidateMalformedToken(t *testing.T) {
	v := newValidator(t, newCertServer(newVendorKey(t, "kid-1")))

	_, err := v.Validate(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidateMissingKid(t *testing.T) {
	key := newVendorKey(t, "kid-1")
	v := newValidator(t, newCertServer(key))

	raw := signStatement(t, key, statementOpts{kid: " ", orderID: "order-1"})
	// A blank kid never resolves to a certificate.
	_, err := v.Validate(context.Background(), raw)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidateDisallowedAlgorithm(t *testing.T) {
	key := newVendorKey(t, "kid-1")
	v := newValidator(t, newCertServer(key))

	raw := signStatement(t, key, statementOpts{alg: jwa.PS256, orderID: "order-1"})

	_, err := v.Validate(context.Background(), raw)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidateUnknownKidForcesSingleRefresh(t *testing.T) {
	known := newVendorKey(t, "kid-known")
	stranger := newVendorKey(t, "kid-stranger")
	cs := newCertServer(known)
	v := newValidator(t, cs)

	// Prime the cache.
	_, err := v.Validate(context.Background(), signStatement(t, known, statementOpts{orderID: "o"}))
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), signStatement(t, stranger, statementOpts{orderID: "o"}))
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Equal(t, int64(2), cs.hits.Load(), "exactly one forced refresh")
}

func TestValidatePicksUpRotatedCertificate(t *testing.T) {
	old := newVendorKey(t, "kid-old")
	cs := newCertServer(old)
	v := newValidator(t, cs)

	_, err := v.Validate(context.Background(), signStatement(t, old, statementOpts{orderID: "o"}))
	require.NoError(t, err)

	rotated := newVendorKey(t, "kid-new")
	cs.setKeys(rotated)

	claims, err := v.Validate(context.Background(), signStatement(t, rotated, statementOpts{orderID: "order-9"}))
	require.NoError(t, err)
	assert.Equal(t, "order-9", claims.OrderID)
}

func TestValidateExpired(t *testing.T) {
	key := newVendorKey(t, "kid-1")
	v := newValidator(t, newCertServer(key))

	raw := signStatement(t, key, statementOpts{orderID: "o", expires: time.Now().Add(-time.Hour)})

	_, err := v.Validate(context.Background(), raw)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestValidateWrongAudience(t *testing.T) {
	key := newVendorKey(t, "kid-1")
	v := newValidator(t, newCertServer(key))

	raw := signStatement(t, key, statementOpts{orderID: "o", audience: "https://elsewhere.example.com"})

	_, err := v.Validate(context.Background(), raw)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidateIssuerMustMatchExactly(t *testing.T) {
	key := newVendorKey(t, "kid-1")
	v := newValidator(t, newCertServer(key))

	for _, iss := range []string{
		"https://vendor.example.com/statements/extra",
		"https://vendor.example.com",
		"https://vendor.example.com.evil.net/statements",
	} {
		raw := signStatement(t, key, statementOpts{orderID: "o", issuer: iss})
		_, err := v.Validate(context.Background(), raw)
		assert.ErrorIs(t, err, ErrInvalid, "issuer %q must be rejected", iss)
	}
}

func TestValidateMissingOrderClaim(t *testing.T) {
	key := newVendorKey(t, "kid-1")
	v := newValidator(t, newCertServer(key))

	raw := signStatement(t, key, statementOpts{})

	_, err := v.Validate(context.Background(), raw)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidateTamperedSignature(t *testing.T) {
	key := newVendorKey(t, "kid-1")
	other := newVendorKey(t, "kid-1")
	v := newValidator(t, newCertServer(key))

	// Signed by a different key claiming the same kid.
	raw := signStatement(t, other, statementOpts{orderID: "o"})

	_, err := v.Validate(context.Background(), raw)
	assert.ErrorIs(t, err, ErrInvalid)
}
