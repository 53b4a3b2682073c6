// cmd/billgate-service/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"billgate/internal/dcr"
	"billgate/internal/procurement"
	"billgate/internal/secrets"
	"billgate/internal/statement"
	"billgate/internal/usage"
	"billgate/pkg/config"
	"billgate/pkg/db"
	"billgate/pkg/logger"
	"billgate/pkg/middleware"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)

	pool := db.MustConnect(cfg, log)
	rdb := db.MustRedis(cfg, log)

	ctx := context.Background()

	var accounts procurement.AccountRepo
	var entitlements procurement.EntitlementRepo
	var clients dcr.ClientStore
	var meter usage.Meter
	if pool != nil {
		if err := procurement.EnsureSchema(ctx, pool); err != nil {
			log.Fatalw("procurement schema", "err", err)
		}
		if err := dcr.EnsureSchema(ctx, pool); err != nil {
			log.Fatalw("dcr schema", "err", err)
		}
		if err := usage.EnsureSchema(ctx, pool); err != nil {
			log.Fatalw("usage schema", "err", err)
		}
		accounts = procurement.NewPostgresAccountRepo(pool, log)
		entitlements = procurement.NewPostgresEntitlementRepo(pool, log)
		clients = dcr.NewPostgresClientStore(pool, log)
		meter = usage.NewPostgresMeter(pool)
	} else {
		accounts = procurement.NewMemoryAccountRepo()
		entitlements = procurement.NewMemoryEntitlementRepo()
		clients = dcr.NewMemoryClientStore()
		meter = usage.NewMemoryMeter()
	}

	// Procurement lifecycle
	approver := procurement.NewApprovalClient(cfg.ProcurementURL, cfg.OutboundTimeout)
	procSvc := procurement.NewService(log, accounts, entitlements, approver)

	// Dynamic client registration
	certs := statement.NewCertificateCache(cfg.VendorCertsURL, cfg.CertCacheTTL, cfg.OutboundTimeout, log)
	validator := statement.NewValidator(certs, cfg.VendorIssuer, cfg.BasePublicURL)
	cipher := secrets.NewCipher(cfg.SecretKey)
	var idp dcr.IdPClient
	if cfg.IdPAdminURL != "" {
		idp = dcr.NewIdPAdminClient(cfg.IdPAdminURL, cfg.IdPAdminToken, cfg.OutboundTimeout)
	}
	dcrSvc := dcr.NewService(log, validator, cipher, clients, accounts, entitlements, idp, dcr.Options{
		SkipApproval:       cfg.SkipApproval,
		StaticClientID:     cfg.StaticClientID,
		StaticClientSecret: cfg.StaticClientSecret,
	})

	// Usage reporting
	mapping := usage.NewMetricMap()
	if cfg.MetricMapFile != "" {
		m, err := usage.LoadMetricMap(cfg.MetricMapFile)
		if err != nil {
			log.Fatalw("metric map", "file", cfg.MetricMapFile, "err", err)
		}
		mapping = m
	}
	queue := usage.NewRetryQueue(log, rdb)
	queue.Restore(ctx)
	billing := usage.NewBillingClient(cfg.BillingURL, cfg.OutboundTimeout)
	reporter := usage.NewReporter(log, entitlements, meter, billing, mapping, queue, cfg.ReportRetryMax,
		func(rep usage.Report) {
			log.Errorw("ALERT usage report lost", "order", rep.OrderID, "start", rep.Start, "end", rep.End, "err", rep.ErrorMessage)
		})
	scheduler := usage.NewScheduler(log, reporter, cfg.ReportRetryInterval)
	scheduler.Start(ctx)

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(log))
	r.Use(middleware.Tracing(cfg))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	dcr.NewHandler(log, dcrSvc).Routes(r)
	procurement.NewHandler(log, procSvc).Routes(r)
	usage.NewHandler(log, reporter).Routes(r)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Infow("billgate-service listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	scheduler.Stop()
	fmt.Println("billgate-service stopped")
}
