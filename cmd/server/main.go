package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"didgate/internal/identity/contentstore"
	"didgate/internal/identity/events"
	"didgate/internal/identity/handler"
	"didgate/internal/identity/metrics"
	"didgate/internal/identity/publication"
	"didgate/internal/identity/resolution"
	"didgate/internal/identity/tracer"
	"didgate/internal/platform/config"
	"didgate/internal/platform/health"
	"didgate/internal/platform/logger"
	"didgate/pkg/platform/circuit"
	"didgate/pkg/platform/middleware/request"
	"didgate/pkg/platform/middleware/wallet"
	"didgate/pkg/platform/validation"
)

// main loads configuration, wires the pipelines behind the HTTP router and
// runs until SIGINT or SIGTERM.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	log.Info("initializing didgate",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"registry_backend", cfg.Registry.Backend,
		"gateways", len(cfg.ContentStore.Gateways),
		"events_enabled", len(cfg.Kafka.Brokers) > 0,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	identityMetrics := metrics.NewWithRegisterer(reg)
	trace := tracer.NewOTel()
	healthHandler := health.New(cfg.Environment)

	deps, err := wireInfrastructure(ctx, cfg, log, reg, healthHandler)
	if err != nil {
		return err
	}
	defer deps.Close(log)

	store, err := contentstore.New(contentstore.Config{
		APIURL:        cfg.ContentStore.APIURL,
		Credential:    cfg.ContentStore.Credential,
		Gateways:      cfg.ContentStore.Gateways,
		FetchTimeout:  cfg.ContentStore.FetchTimeout,
		UploadTimeout: cfg.ContentStore.UploadTimeout,
	},
		contentstore.WithLogger(log),
		contentstore.WithMetrics(identityMetrics),
		contentstore.WithTracer(trace),
		contentstore.WithBreaker(circuit.New("pinning-api")),
	)
	if err != nil {
		return fmt.Errorf("content store: %w", err)
	}
	if err := store.WriteReady(); err != nil {
		log.Warn("publication disabled until storage is configured", "error", err)
	}

	publisher := publication.New(store, deps.registry,
		publication.WithLogger(log),
		publication.WithMetrics(identityMetrics),
		publication.WithTracer(trace),
		publication.WithEvents(events.NewPublisher(deps.sender,
			events.WithTopic(cfg.Kafka.Topic),
			events.WithLogger(log),
		)),
	)
	resolver := resolution.NewResolver(deps.registry, store,
		resolution.WithLogger(log),
		resolution.WithMetrics(identityMetrics),
		resolution.WithTracer(trace),
	)
	identities := handler.New(publisher, resolver, store,
		handler.WithLogger(log),
		handler.WithMaxImageBytes(cfg.MaxUploadBytes),
	)

	r := chi.NewRouter()
	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(request.ClientMetadata(cfg.TrustedProxies))
	r.Use(request.Logger(log))
	r.Use(request.Latency(request.NewMetrics(reg)))
	healthHandler.Register(r)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Group(func(r chi.Router) {
		r.Use(request.BodyLimit(cfg.MaxUploadBytes + validation.MultipartOverhead))
		r.Use(request.Timeout(2 * time.Minute))
		r.Use(wallet.Connect(log))
		identities.Register(r)
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if deps.redis != nil {
		g.Go(func() error { return deps.redis.ReportPoolStats(gctx, 15*time.Second) })
	}
	return g.Wait()
}
