package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"pkt.systems/spoold/api"
	"pkt.systems/spoold/internal/auth"
)

func newTokenCommand() *cobra.Command {
	var (
		origin string
		secret string
		expiry time.Duration
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an HS256 bearer token accepted by a spoold server",
		Example: `
  # Token for the "lab-ci" origin, valid 24h
  spoold token --origin lab-ci --secret $SPOOLD_JWT_SECRET

  # Non-expiring token, JSON output
  spoold token --origin lab-ci --secret $SPOOLD_JWT_SECRET --expiry 0 --json
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if origin == "" {
				return errors.New("--origin is required")
			}
			if secret == "" {
				return errors.New("--secret is required (a server with an empty secret accepts any token)")
			}
			now := time.Now()
			token, err := auth.Sign(origin, secret, now, expiry)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			if asJSON {
				resp := api.TokenResponse{Token: token}
				if expiry > 0 {
					resp.ExpiresAt = now.Add(expiry).UTC().Format(time.RFC3339)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&origin, "origin", "o", "", "origin claim identifying the submitting system")
	flags.StringVarP(&secret, "secret", "s", "", "HS256 secret shared with the server")
	flags.DurationVarP(&expiry, "expiry", "e", 24*time.Hour, "token lifetime (0 mints a non-expiring token)")
	flags.BoolVar(&asJSON, "json", false, "emit a JSON document instead of the bare token")
	return cmd
}
