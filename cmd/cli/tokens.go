package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newTokensCommand(getEnv func() *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Manage session tokens and the blacklist",
	}

	var userID string
	revokeAll := &cobra.Command{
		Use:   "revoke-all",
		Short: "Revoke every registered token of a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := getEnv()
			before, err := e.registry.ActiveTokenCount(cmd.Context(), userID)
			if err != nil {
				return err
			}
			e.registry.InvalidateAllUserTokens(cmd.Context(), userID)
			after, err := e.registry.ActiveTokenCount(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if after > 0 {
				return fmt.Errorf("revoked %d of %d tokens for %s; rerun to retry", before-after, before, userID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %d tokens for %s\n", before, userID)
			return nil
		},
	}

	count := &cobra.Command{
		Use:   "count",
		Short: "Show how many tokens a user has registered",
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := getEnv().registry.ActiveTokenCount(cmd.Context(), userID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", n)
			return nil
		},
	}

	for _, c := range []*cobra.Command{revokeAll, count} {
		c.Flags().StringVar(&userID, "user", "", "user id")
		_ = c.MarkFlagRequired("user")
	}

	var token string
	check := &cobra.Command{
		Use:   "check",
		Short: "Report whether a token is blacklisted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := getEnv()
			if err := e.store.Ping(cmd.Context()); err != nil {
				return err
			}
			state := "active"
			if e.registry.IsBlacklisted(cmd.Context(), token) {
				state = "blacklisted"
			}
			fmt.Fprintln(cmd.OutOrStdout(), state)
			return nil
		},
	}
	check.Flags().StringVar(&token, "token", "", "raw bearer token")
	_ = check.MarkFlagRequired("token")

	var (
		issueUser string
		ttl       time.Duration
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Sign a session token for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := getEnv()
			if ttl == 0 {
				ttl = e.cfg.JWT.AccessTokenTTL
			}
			if ttl > e.cfg.Registry.MaxTokenLifetime {
				return fmt.Errorf("ttl %s exceeds the maximum token lifetime %s", ttl, e.cfg.Registry.MaxTokenLifetime)
			}
			signed, _, err := e.jwt.Issue(cmd.Context(), issueUser, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
	issue.Flags().StringVar(&issueUser, "user", "", "user id")
	issue.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to jwt.access_token_ttl)")
	_ = issue.MarkFlagRequired("user")

	cmd.AddCommand(revokeAll, count, check, issue)
	return cmd
}
