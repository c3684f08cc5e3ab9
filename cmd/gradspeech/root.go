package main

import (
	"context"
	"io"
	"os"

	"github.com/goliatone/go-gradspeech/adapters/gologger"
	"github.com/goliatone/go-gradspeech/core"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	logLevel    string
	environment string
	storeURL    string
	storeDriver string
	// lookupEnv is swapped in tests.
	lookupEnv core.LookupEnvFunc
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{lookupEnv: os.LookupEnv}
	cmd := &cobra.Command{
		Use:   "gradspeech",
		Short: "Stripe checkout ingestion for graduation speech orders",
		Long: `gradspeech receives Stripe checkout webhooks, records paid speech orders
and hands them to the speech generator.

Configuration is read from the environment (STRIPE_SECRET_KEY,
STRIPE_WEBHOOK_SECRET, STORE_URL, ...). Flags override it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.environment, "env", "", "deployment environment override")
	cmd.PersistentFlags().StringVar(&opts.storeURL, "store-url", "", "record store url override")
	cmd.PersistentFlags().StringVar(&opts.storeDriver, "store-driver", "", "record store driver override (postgres, sqlite3)")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newPendingCmd(opts),
		newMarkProcessedCmd(opts),
		newSignCmd(),
	)
	return cmd
}

// loadConfig layers defaults, environment and flag overrides.
func (o *rootOptions) loadConfig(ctx context.Context) (core.Config, error) {
	loader := core.NewEnvConfigLoader()
	if o.lookupEnv != nil {
		loader.Lookup = o.lookupEnv
	}
	runtime := core.Config{
		Environment: o.environment,
		Store: core.StoreConfig{
			URL:    o.storeURL,
			Driver: o.storeDriver,
		},
	}
	return core.LoadConfig(ctx, core.NewCfgxConfigProvider(loader), core.GoOptionsResolver{}, runtime)
}

func (o *rootOptions) newLogger(w io.Writer) *gologger.ZerologProvider {
	return gologger.NewZerologProvider(gologger.NewZerologLogger(w, o.logLevel))
}
