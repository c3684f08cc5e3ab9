package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	gradspeech "github.com/goliatone/go-gradspeech"
	gojobadapter "github.com/goliatone/go-gradspeech/adapters/gojob"
	promadapter "github.com/goliatone/go-gradspeech/adapters/prometheus"
	sentryadapter "github.com/goliatone/go-gradspeech/adapters/sentry"
	"github.com/goliatone/go-gradspeech/server"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	addr            string
	migrate         bool
	shutdownTimeout time.Duration
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook HTTP server",
		Long: `Run the webhook HTTP server.

Examples:
  gradspeech serve
  gradspeech serve --addr :9090 --migrate`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (defaults to HTTP_ADDR or :8080)")
	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "apply migrations before serving")
	cmd.Flags().DurationVar(&opts.shutdownTimeout, "shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
	return cmd
}

func runServe(ctx context.Context, root *rootOptions, opts *serveOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := root.loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(opts.addr) != "" {
		cfg.HTTP.Addr = opts.addr
	}
	if cfg.IsProduction() {
		if err := cfg.RequireComplete(); err != nil {
			return fmt.Errorf("production config: %w", err)
		}
		gin.SetMode(gin.ReleaseMode)
	}

	loggers := root.newLogger(os.Stdout)
	logger := loggers.GetLogger("serve")
	recorder := promadapter.NewRecorder()

	setupOpts := []gradspeech.Option{
		gradspeech.WithLoggerProvider(loggers),
		gradspeech.WithMetricsRecorder(recorder),
	}

	if dsn := strings.TrimSpace(cfg.ErrorTracking.DSN); dsn != "" {
		environment := cfg.ErrorTracking.Environment
		if strings.TrimSpace(environment) == "" {
			environment = cfg.Environment
		}
		reporter, err := sentryadapter.NewReporter(sentryadapter.Config{
			DSN:         dsn,
			Environment: environment,
			Release:     cfg.ServiceName,
		})
		if err != nil {
			return fmt.Errorf("error tracking: %w", err)
		}
		defer reporter.Flush()
		setupOpts = append(setupOpts, gradspeech.WithErrorReporter(reporter))
	}

	if amqpURL := strings.TrimSpace(cfg.Jobs.AMQPURL); amqpURL != "" {
		enqueuer, err := gojobadapter.DialAMQPEnqueuer(amqpURL, cfg.Jobs.Queue)
		if err != nil {
			return fmt.Errorf("speech job queue: %w", err)
		}
		defer enqueuer.Close()
		setupOpts = append(setupOpts, gradspeech.WithJobEnqueuer(gojobadapter.NewEnqueuerAdapter(enqueuer)))
	}

	var ping func(context.Context) error
	if strings.TrimSpace(cfg.Store.URL) != "" {
		client, err := openDatabase(cfg.Store)
		if err != nil {
			return err
		}
		defer client.Close()
		if opts.migrate {
			if err := migrate(ctx, client, cfg.Store.Driver); err != nil {
				return err
			}
		}
		cacheService, err := repositorycache.NewCacheService(repositorycache.DefaultConfig())
		if err != nil {
			return fmt.Errorf("completion cache: %w", err)
		}
		setupOpts = append(setupOpts, gradspeech.WithDB(client.DB()), gradspeech.WithCacheService(cacheService))
		ping = func(ctx context.Context) error {
			return client.DB().PingContext(ctx)
		}
	} else {
		logger.Warn("no record store configured, completions are kept in memory")
	}

	app, err := gradspeech.Setup(ctx, cfg, setupOpts...)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer app.Close()

	srv, err := server.New(cfg.HTTP, server.Dependencies{
		Webhook:     app.Handler(),
		Completions: app.Completions(),
		Gatherer:    recorder.Gatherer(),
		Ping:        ping,
		Telemetry:   app.Telemetry(),
	})
	if err != nil {
		return err
	}

	logger.Info("starting webhook server", "addr", srv.Addr(), "environment", cfg.Environment, "webhook_path", cfg.HTTP.WebhookPath)
	return srv.Run(ctx, opts.shutdownTimeout)
}
