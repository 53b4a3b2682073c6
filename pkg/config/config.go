// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string

	// Public identity of this deployment; expected audience of inbound
	// software statements.
	BasePublicURL string

	// Vendor signing material
	VendorIssuer   string
	VendorCertsURL string
	CertCacheTTL   time.Duration

	// Client secret encryption key (deployment-wide)
	SecretKey string

	// Procurement approval API
	ProcurementURL string

	// Billing control API
	BillingURL string

	// Optional identity-provider admin API for real client creation
	IdPAdminURL   string
	IdPAdminToken string

	// Disabled-DCR mode: echo fixed credentials after validation
	StaticClientID     string
	StaticClientSecret string

	// Dev/test only: skip account/entitlement approval checks
	SkipApproval bool

	// Usage reporting
	ReportRetryMax      int
	ReportRetryInterval time.Duration
	MetricMapFile       string

	// Outbound HTTP timeout (single attempt per call site)
	OutboundTimeout time.Duration

	// Redis & Postgres
	RedisURL    string
	DatabaseURL string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:                 env("BILLGATE_ENV", "dev"),
		HTTPAddr:            env("BILLGATE_HTTP_ADDR", ":8080"),
		BasePublicURL:       env("BASE_PUBLIC_URL", "http://localhost:8080"),
		VendorIssuer:        env("VENDOR_ISSUER", ""),
		VendorCertsURL:      env("VENDOR_CERTS_URL", ""),
		CertCacheTTL:        envDur("CERT_CACHE_TTL_SEC", 3600) * time.Second,
		SecretKey:           env("SECRET_ENCRYPTION_KEY", ""),
		ProcurementURL:      env("PROCUREMENT_API_URL", ""),
		BillingURL:          env("BILLING_API_URL", ""),
		IdPAdminURL:         env("IDP_ADMIN_URL", ""),
		IdPAdminToken:       env("IDP_ADMIN_TOKEN", ""),
		StaticClientID:      env("DCR_STATIC_CLIENT_ID", ""),
		StaticClientSecret:  env("DCR_STATIC_CLIENT_SECRET", ""),
		SkipApproval:        envBool("SKIP_APPROVAL_CHECKS", false),
		ReportRetryMax:      envInt("REPORT_RETRY_MAX", 3),
		ReportRetryInterval: envDur("REPORT_RETRY_INTERVAL_SEC", 300) * time.Second,
		MetricMapFile:       env("METRIC_MAP_FILE", ""),
		OutboundTimeout:     envDur("OUTBOUND_TIMEOUT_SEC", 15) * time.Second,
		RedisURL:            env("REDIS_URL", ""),
		DatabaseURL:         env("DATABASE_URL", ""),
	}
	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set — using in-memory repositories for dev")
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		b, _ := strconv.ParseBool(v)
		return b
	}
	return def
}
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return i
	}
	return def
}
func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return time.Duration(i)
	}
	return time.Duration(def)
}
