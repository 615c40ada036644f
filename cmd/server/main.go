package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/linkguard/internal/config"
	"github.com/turtacn/linkguard/internal/domain/service"
	"github.com/turtacn/linkguard/internal/infrastructure/audit"
	"github.com/turtacn/linkguard/internal/infrastructure/consumers"
	"github.com/turtacn/linkguard/internal/infrastructure/crypto"
	"github.com/turtacn/linkguard/internal/infrastructure/monitoring"
	"github.com/turtacn/linkguard/internal/infrastructure/persistence"
	"github.com/turtacn/linkguard/internal/infrastructure/ratelimit"
	"github.com/turtacn/linkguard/internal/infrastructure/revocation"
	httpapi "github.com/turtacn/linkguard/internal/interfaces/http"
	"github.com/turtacn/linkguard/internal/interfaces/http/handlers"
	"github.com/turtacn/linkguard/pkg/logger"
)

// jwtLeeway tolerates clock skew between the issuer and the gateway.
const jwtLeeway = 5 * time.Second

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:           "linkguard",
		Short:         "Access control gateway for the URL shortener",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	bootLogger, err := monitoring.NewZapLogger(config.LogConfig{Level: "info"})
	if err != nil {
		return err
	}
	loader := config.NewLoader(configPath, bootLogger)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	zl, err := monitoring.NewZapLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()
	log := zl.WithComponent("main")

	tracing, err := monitoring.NewTracingManager(cfg.Tracing, zl)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	store, err := persistence.NewStore(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(context.Background(), "Failed to close store", err)
		}
	}()

	policyMap, err := cfg.RateLimit.RateLimitPolicies()
	if err != nil {
		return err
	}
	policies, err := ratelimit.NewPolicySetFromMap(policyMap)
	if err != nil {
		return err
	}

	auditSvc, err := audit.NewService(cfg.Audit, cfg.Kafka, metrics, zl)
	if err != nil {
		return err
	}
	var auditor service.AuditService
	if auditSvc != nil {
		auditor = auditSvc
	}

	registry := revocation.NewRegistry(store, metrics, auditor, zl, revocation.Config{
		RevokeAllOnLogout: cfg.Registry.RevokeAllOnLogout,
		MaxTokenLifetime:  cfg.Registry.MaxTokenLifetime,
		Region:            cfg.Kafka.Region,
	})
	verifier, err := crypto.NewJWTManager(crypto.JWTConfig{
		Secret: []byte(cfg.JWT.Secret),
		Issuer: cfg.JWT.Issuer,
		Leeway: jwtLeeway,
	}, zl)
	if err != nil {
		return err
	}

	engine, err := httpapi.NewRouter(cfg, httpapi.Dependencies{
		Limiter:  ratelimit.NewFixedWindowLimiter(store, metrics, zl),
		Policies: policies,
		Verifier: verifier,
		Registry: registry,
		Health:   handlers.NewHealthHandler(map[string]handlers.Pinger{"store": store}, time.Second, zl),
		Metrics:  metrics,
		Tracer:   tracing,
		Gatherer: reg,
	}, zl)
	if err != nil {
		return err
	}

	loader.Watch(func(c *config.Config) {
		if err := zl.SetLevel(c.Log.Level); err != nil {
			log.Warn(ctx, "Ignoring invalid log level", logger.String("level", c.Log.Level), logger.Err(err))
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpapi.NewServer(cfg.Server, engine, zl).Run(gctx)
	})
	if cfg.Kafka.ConsumeRevocations {
		consumer := consumers.NewRevocationConsumer(cfg.Kafka, registry, zl)
		g.Go(func() error { return consumer.Run(gctx) })
	}
	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if auditSvc != nil {
		if err := auditSvc.Close(shutdownCtx); err != nil {
			log.Error(shutdownCtx, "Failed to flush audit events", err)
		}
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "Failed to flush traces", err)
	}
	log.Info(shutdownCtx, "Shutdown complete")
	return runErr
}
