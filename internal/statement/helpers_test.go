package statement

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testIssuer   = "https://vendor.example.com/statements"
	testAudience = "https://agent.example.com"
)

type vendorKey struct {
	kid  string
	priv *rsa.PrivateKey
	pem  string
}

func newVendorKey(t *testing.T, kid string) vendorKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "vendor-signing"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return vendorKey{kid: kid, priv: priv, pem: string(pemBytes)}
}

// certServer serves the vendor certificate endpoint and counts fetches.
type certServer struct {
	srv   *httptest.Server
	certs atomic.Value // map[string]string
	hits  atomic.Int64
	fail  atomic.Bool
}

func newCertServer(keys ...vendorKey) *certServer {
	cs := &certServer{}
	cs.setKeys(keys...)
	cs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.hits.Add(1)
		if cs.fail.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(cs.certs.Load())
	}))
	return cs
}

func (cs *certServer) setKeys(keys ...vendorKey) {
	m := map[string]string{}
	for _, k := range keys {
		m[k.kid] = k.pem
	}
	cs.certs.Store(m)
}

func (cs *certServer) cache(t *testing.T, ttl time.Duration) *CertificateCache {
	t.Helper()
	t.Cleanup(cs.srv.Close)
	return NewCertificateCache(cs.srv.URL, ttl, 5*time.Second, zap.NewNop().Sugar())
}

type statementOpts struct {
	kid      string
	alg      jwa.KeyAlgorithm
	issuer   string
	audience string
	subject  string
	orderID  string
	expires  time.Time
}

func signStatement(t *testing.T, key vendorKey, opts statementOpts) string {
	t.Helper()
	if opts.kid == "" {
		opts.kid = key.kid
	}
	if opts.alg == nil {
		opts.alg = jwa.RS256
	}
	if opts.issuer == "" {
		opts.issuer = testIssuer
	}
	if opts.audience == "" {
		opts.audience = testAudience
	}
	if opts.subject == "" {
		opts.subject = "acct-1"
	}
	if opts.expires.IsZero() {
		opts.expires = time.Now().Add(time.Hour)
	}

	b := jwt.NewBuilder().
		Issuer(opts.issuer).
		Audience([]string{opts.audience}).
		Subject(opts.subject).
		IssuedAt(time.Now().Add(-time.Minute)).
		Expiration(opts.expires)
	if opts.orderID != "" {
		b = b.Claim(orderClaim, opts.orderID)
	}
	tok, err := b.Build()
	require.NoError(t, err)

	hdrs := jws.NewHeaders()
	require.NoError(t, hdrs.Set(jws.KeyIDKey, opts.kid))
	signed, err := jwt.Sign(tok, jwt.WithKey(opts.alg, key.priv, jws.WithProtectedHeaders(hdrs)))
	require.NoError(t, err)
	return string(signed)
}
