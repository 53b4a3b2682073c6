// internal/statement/certcache.go
package statement

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CertificateCache holds the vendor's signing certificates keyed by
// certificate ID. The vendor endpoint serves a JSON object mapping
// certificate ID to a PEM-encoded X.509 certificate.
type CertificateCache struct {
	url    string
	ttl    time.Duration
	client *http.Client
	log    *zap.SugaredLogger

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	lastFetch time.Time
}

func NewCertificateCache(url string, ttl time.Duration, timeout time.Duration, log *zap.SugaredLogger) *CertificateCache {
	return &CertificateCache{
		url:    url,
		ttl:    ttl,
		client: &http.Client{Timeout: timeout},
		log:    log,
		keys:   map[string]*rsa.PublicKey{},
	}
}

// Get returns the public key for kid, or nil if the current certificate set
// has no such key. It refreshes the set when the TTL has elapsed or the
// cache is empty; concurrent callers share a single fetch.
func (c *CertificateCache) Get(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fresh() {
		return c.keys[kid], nil
	}
	if err := c.refreshLocked(ctx); err != nil {
		// Keep serving the stale set if we have one.
		if len(c.keys) == 0 {
			return nil, err
		}
		c.log.Warnw("certificate refresh failed, serving stale set", "err", err)
	}
	return c.keys[kid], nil
}

// ForceRefresh invalidates the TTL so the next Get re-fetches.
func (c *CertificateCache) ForceRefresh() {
	c.mu.Lock()
	c.lastFetch = time.Time{}
	c.mu.Unlock()
}

func (c *CertificateCache) fresh() bool {
	return len(c.keys) > 0 && time.Since(c.lastFetch) < c.ttl
}

func (c *CertificateCache) refreshLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("certificate endpoint returned %d", resp.StatusCode)
	}
	var pems map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&pems); err != nil {
		return err
	}
	keys := make(map[string]*rsa.PublicKey, len(pems))
	for kid, raw := range pems {
		key, err := parseCertKey(raw)
		if err != nil {
			c.log.Warnw("skipping unparseable certificate", "kid", kid, "err", err)
			continue
		}
		keys[kid] = key
	}
	// Replace the whole set atomically; partial updates would let revoked
	// certificates linger.
	c.keys = keys
	c.lastFetch = time.Now()
	return nil
}

func parseCertKey(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("no PEM block")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("certificate key is %T, want RSA", cert.PublicKey)
	}
	return key, nil
}
