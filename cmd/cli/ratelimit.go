package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/linkguard/internal/interfaces/http/middleware"
)

type identityFlags struct {
	identity string
	clientIP string
	route    string
}

func (f *identityFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.identity, "identity", "", "client identity as passed to the limiter")
	cmd.Flags().StringVar(&f.clientIP, "client-ip", "", "derive the identity from a client address (with --route)")
	cmd.Flags().StringVar(&f.route, "route", "", "route template, e.g. /api/v1/auth/login (with --client-ip)")
}

func (f *identityFlags) resolve() (string, error) {
	switch {
	case f.identity != "":
		return f.identity, nil
	case f.clientIP != "" && f.route != "":
		return middleware.HashClientRoute(f.clientIP, f.route), nil
	}
	return "", fmt.Errorf("either --identity or both --client-ip and --route are required")
}

func newRateLimitCommand(getEnv func() *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Inspect and reset rate limit counters",
	}

	var policyName string
	var ids identityFlags

	usage := &cobra.Command{
		Use:   "usage",
		Short: "Show the current window of a counter",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := getEnv()
			policy, err := e.policies.Require(policyName)
			if err != nil {
				return err
			}
			identity, err := ids.resolve()
			if err != nil {
				return err
			}
			u, err := e.limiter.Usage(cmd.Context(), identity, policy)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "key:       %s\n", u.Key)
			fmt.Fprintf(out, "used:      %d/%d (%.0f%%)\n", u.Used, u.Limit, u.Percentage)
			fmt.Fprintf(out, "remaining: %d\n", u.Remaining)
			if !u.ResetAt.IsZero() {
				fmt.Fprintf(out, "resets at: %s\n", u.ResetAt.UTC().Format(time.RFC3339))
			}
			return nil
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Clear a counter so the client starts a fresh window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := getEnv()
			policy, err := e.policies.Require(policyName)
			if err != nil {
				return err
			}
			identity, err := ids.resolve()
			if err != nil {
				return err
			}
			if err := e.limiter.Reset(cmd.Context(), identity, policy); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %s counter for %s\n", policy.Name, identity)
			return nil
		},
	}

	for _, c := range []*cobra.Command{usage, reset} {
		c.Flags().StringVar(&policyName, "policy", "", "policy name, e.g. auth")
		_ = c.MarkFlagRequired("policy")
		ids.register(c)
	}
	cmd.AddCommand(usage, reset)
	return cmd
}
