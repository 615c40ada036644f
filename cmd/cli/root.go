// Package cli implements the linkguard-admin command tree.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/turtacn/linkguard/internal/config"
	"github.com/turtacn/linkguard/internal/infrastructure/crypto"
	"github.com/turtacn/linkguard/internal/infrastructure/monitoring"
	"github.com/turtacn/linkguard/internal/infrastructure/persistence"
	"github.com/turtacn/linkguard/internal/infrastructure/ratelimit"
	"github.com/turtacn/linkguard/internal/infrastructure/revocation"
	"github.com/turtacn/linkguard/pkg/logger"
)

// env holds what the subcommands operate on. It is built once per invocation.
type env struct {
	cfg      *config.Config
	store    persistence.Store
	policies *ratelimit.PolicySet
	limiter  *ratelimit.FixedWindowLimiter
	registry *revocation.Registry
	jwt      *crypto.JWTManager
}

func (e *env) close() {
	if e != nil && e.store != nil {
		_ = e.store.Close()
	}
}

func newEnv(ctx context.Context, configPath string, log logger.Logger) (*env, error) {
	cfg, err := config.LoadConfig(configPath, log)
	if err != nil {
		return nil, err
	}
	store, err := persistence.NewStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	policyMap, err := cfg.RateLimit.RateLimitPolicies()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	policies, err := ratelimit.NewPolicySetFromMap(policyMap)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	jwtManager, err := crypto.NewJWTManager(crypto.JWTConfig{
		Secret: []byte(cfg.JWT.Secret),
		Issuer: cfg.JWT.Issuer,
	}, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	metrics := monitoring.NoopMetrics{}
	return &env{
		cfg:      cfg,
		store:    store,
		policies: policies,
		limiter:  ratelimit.NewFixedWindowLimiter(store, metrics, log),
		registry: revocation.NewRegistry(store, metrics, nil, log, revocation.Config{
			RevokeAllOnLogout: cfg.Registry.RevokeAllOnLogout,
			MaxTokenLifetime:  cfg.Registry.MaxTokenLifetime,
			Region:            cfg.Kafka.Region,
		}),
		jwt: jwtManager,
	}, nil
}

// NewRootCommand builds the linkguard-admin command tree.
func NewRootCommand() *cobra.Command {
	var (
		configPath string
		verbose    bool
		e          *env
	)

	root := &cobra.Command{
		Use:           "linkguard-admin",
		Short:         "Administer linkguard rate limits and session tokens",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := "error"
			if verbose {
				level = "debug"
			}
			zl, err := monitoring.NewZapLogger(config.LogConfig{Level: level, Development: true})
			if err != nil {
				return err
			}
			e, err = newEnv(cmd.Context(), configPath, zl)
			return err
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			e.close()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")

	getEnv := func() *env { return e }
	root.AddCommand(newRateLimitCommand(getEnv), newTokensCommand(getEnv))
	return root
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
