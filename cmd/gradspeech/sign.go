package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-gradspeech/webhooks"
	"github.com/spf13/cobra"
)

func newSignCmd() *cobra.Command {
	var (
		secret    string
		file      string
		timestamp int64
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print a Stripe-Signature header for a payload",
		Long: `Print a Stripe-Signature header for a payload read from --file or stdin.

Examples:
  gradspeech sign --secret whsec_test --file event.json
  cat event.json | gradspeech sign --secret whsec_test`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(secret) == "" {
				secret = os.Getenv("STRIPE_WEBHOOK_SECRET")
			}
			if strings.TrimSpace(secret) == "" {
				return fmt.Errorf("--secret or STRIPE_WEBHOOK_SECRET is required")
			}
			var (
				body []byte
				err  error
			)
			if file != "" {
				body, err = os.ReadFile(file)
			} else {
				body, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}
			signedAt := time.Now()
			if timestamp > 0 {
				signedAt = time.Unix(timestamp, 0)
			}
			fmt.Fprintln(cmd.OutOrStdout(), webhooks.SignHeader(body, secret, signedAt))
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "webhook signing secret")
	cmd.Flags().StringVar(&file, "file", "", "payload file (stdin when empty)")
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "unix timestamp to sign with (now when zero)")
	return cmd
}
