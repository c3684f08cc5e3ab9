package gradspeech

import (
	"context"
	"fmt"
	"strings"

	gocommandadapter "github.com/goliatone/go-gradspeech/adapters/gocommand"
	"github.com/goliatone/go-gradspeech/completion"
	"github.com/goliatone/go-gradspeech/core"
	"github.com/goliatone/go-gradspeech/inbound"
	sqlstore "github.com/goliatone/go-gradspeech/store/sql"
	"github.com/goliatone/go-gradspeech/webhooks"
	glog "github.com/goliatone/go-logger/glog"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

type Config = core.Config

type CompletionRecord = core.CompletionRecord

type CheckoutCompletion = core.CheckoutCompletion

type CompletionOutcome = core.CompletionOutcome

func DefaultConfig() Config {
	return core.DefaultConfig()
}

type setupBuilder struct {
	logger          core.Logger
	loggerProvider  core.LoggerProvider
	metrics         core.MetricsRecorder
	reporter        core.ErrorReporter
	configProvider  core.ConfigProvider
	optionsResolver core.OptionsResolver
	db              *bun.DB
	completions     core.CompletionStore
	ledger          webhooks.DeliveryLedger
	cacheService    repositorycache.CacheService
	jobs            core.JobEnqueuer
	customerLookup  completion.CustomerEmailLookup
	skipBus         bool
}

type Option func(*setupBuilder)

func WithLogger(logger core.Logger) Option {
	return func(b *setupBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(b *setupBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(b *setupBuilder) {
		b.metrics = recorder
	}
}

func WithErrorReporter(reporter core.ErrorReporter) Option {
	return func(b *setupBuilder) {
		b.reporter = reporter
	}
}

// WithConfigProvider layers loaded configuration under the config passed to
// Setup. Non-zero runtime values win.
func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(b *setupBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(b *setupBuilder) {
		b.optionsResolver = resolver
	}
}

// WithDB backs completions and the delivery ledger with SQL tables. The
// schema must already be migrated.
func WithDB(db *bun.DB) Option {
	return func(b *setupBuilder) {
		b.db = db
	}
}

func WithCompletionStore(store core.CompletionStore) Option {
	return func(b *setupBuilder) {
		b.completions = store
	}
}

func WithDeliveryLedger(ledger webhooks.DeliveryLedger) Option {
	return func(b *setupBuilder) {
		b.ledger = ledger
	}
}

// WithCacheService puts preview lookups behind a read-through cache.
func WithCacheService(service repositorycache.CacheService) Option {
	return func(b *setupBuilder) {
		b.cacheService = service
	}
}

func WithJobEnqueuer(jobs core.JobEnqueuer) Option {
	return func(b *setupBuilder) {
		b.jobs = jobs
	}
}

func WithCustomerLookup(lookup completion.CustomerEmailLookup) Option {
	return func(b *setupBuilder) {
		b.customerLookup = lookup
	}
}

// WithoutCommandBus skips registering the command and query handlers on the
// process-wide dispatcher.
func WithoutCommandBus() Option {
	return func(b *setupBuilder) {
		b.skipBus = true
	}
}

// App is the composed webhook ingestion service.
type App struct {
	config      Config
	logger      core.Logger
	telemetry   core.Telemetry
	completions core.CompletionStore
	ledger      webhooks.DeliveryLedger
	processor   *completion.Processor
	deliveries  *webhooks.Processor
	handler     *inbound.Handler
	bus         *gocommandadapter.Bus
	facade      *Facade
}

// Setup resolves configuration and wires stores, the completion processor
// and the ingestion handler. Missing secrets do not fail Setup; the handler
// answers those requests with a configuration error instead.
func Setup(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	builder := setupBuilder{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("gradspeech", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("gradspeech"); named != nil {
			logger = glog.Ensure(named)
		}
	}
	if builder.metrics == nil {
		builder.metrics = core.NopMetricsRecorder{}
	}
	if builder.reporter == nil {
		builder.reporter = core.NopErrorReporter{}
	}

	resolved, err := resolveConfig(ctx, cfg, builder)
	if err != nil {
		return nil, err
	}
	if err := resolved.Validate(); err != nil {
		return nil, err
	}

	telemetry := core.NewTelemetry(logger, builder.metrics)
	completions, ledger, err := resolveStores(builder)
	if err != nil {
		return nil, err
	}

	if builder.customerLookup == nil && strings.TrimSpace(resolved.Stripe.SecretKey) != "" {
		lookup, lookupErr := completion.NewStripeCustomerLookup(resolved.Stripe.SecretKey)
		if lookupErr != nil {
			return nil, lookupErr
		}
		builder.customerLookup = lookup
	}
	processorOpts := []completion.Option{completion.WithTelemetry(telemetry)}
	if builder.jobs != nil {
		processorOpts = append(processorOpts, completion.WithJobEnqueuer(builder.jobs))
	}
	if builder.customerLookup != nil {
		processorOpts = append(processorOpts, completion.WithCustomerLookup(builder.customerLookup))
	}
	processor, err := completion.NewProcessor(completions, processorOpts...)
	if err != nil {
		return nil, err
	}

	deliveries := webhooks.NewProcessor(ledger)
	handler, err := inbound.NewHandler(
		resolved,
		processor,
		inbound.WithDeliveryProcessor(deliveries),
		inbound.WithErrorReporter(builder.reporter),
		inbound.WithTelemetry(telemetry),
	)
	if err != nil {
		return nil, err
	}

	app := &App{
		config:      resolved,
		logger:      logger,
		telemetry:   telemetry,
		completions: completions,
		ledger:      ledger,
		processor:   processor,
		deliveries:  deliveries,
		handler:     handler,
	}
	app.facade, err = NewFacade(processor, completions)
	if err != nil {
		return nil, err
	}
	if !builder.skipBus {
		bus := gocommandadapter.NewBus(nil)
		if err := gocommandadapter.RegisterCompletionHandlers(bus, gocommandadapter.CompletionHandlers{
			Processor: processor,
			Marker:    processor,
			Reader:    completions,
		}); err != nil {
			bus.Close()
			return nil, fmt.Errorf("gradspeech: register command handlers: %w", err)
		}
		if err := bus.Initialize(); err != nil {
			bus.Close()
			return nil, fmt.Errorf("gradspeech: initialize command registry: %w", err)
		}
		app.bus = bus
	}

	if missing := resolved.MissingRequirements(); len(missing) > 0 {
		fields := make([]string, 0, len(missing))
		for _, field := range missing {
			fields = append(fields, field.Field)
		}
		telemetry.Warn(ctx, "webhook configuration incomplete", map[string]any{"missing": fields})
	}
	return app, nil
}

func resolveConfig(ctx context.Context, cfg Config, builder setupBuilder) (Config, error) {
	if builder.configProvider == nil {
		return cfg, nil
	}
	resolver := builder.optionsResolver
	if resolver == nil {
		resolver = core.GoOptionsResolver{}
	}
	return core.LoadConfig(ctx, builder.configProvider, resolver, cfg)
}

func resolveStores(builder setupBuilder) (core.CompletionStore, webhooks.DeliveryLedger, error) {
	completions := builder.completions
	ledger := builder.ledger
	if builder.db != nil && (completions == nil || ledger == nil) {
		factory, err := sqlstore.NewRepositoryFactoryFromDB(builder.db)
		if err != nil {
			return nil, nil, err
		}
		if completions == nil {
			completions = factory.CompletionStore()
		}
		if ledger == nil {
			ledger = factory.WebhookDeliveryStore()
		}
	}
	if completions == nil {
		completions = completion.NewMemoryStore()
	}
	if ledger == nil {
		ledger = webhooks.NewMemoryDeliveryLedger()
	}
	if builder.cacheService != nil {
		cached, err := sqlstore.NewCachedCompletionStore(completions, builder.cacheService)
		if err != nil {
			return nil, nil, err
		}
		completions = cached
	}
	return completions, ledger, nil
}

func (a *App) Config() Config {
	if a == nil {
		return Config{}
	}
	return a.config
}

func (a *App) Logger() core.Logger {
	if a == nil {
		return glog.Nop()
	}
	return a.logger
}

func (a *App) Telemetry() core.Telemetry {
	if a == nil {
		return core.Telemetry{}
	}
	return a.telemetry
}

// Handler is the http.Handler for the Stripe webhook endpoint.
func (a *App) Handler() *inbound.Handler {
	if a == nil {
		return nil
	}
	return a.handler
}

func (a *App) Processor() *completion.Processor {
	if a == nil {
		return nil
	}
	return a.processor
}

func (a *App) Completions() core.CompletionStore {
	if a == nil {
		return nil
	}
	return a.completions
}

func (a *App) Ledger() webhooks.DeliveryLedger {
	if a == nil {
		return nil
	}
	return a.ledger
}

func (a *App) Facade() *Facade {
	if a == nil {
		return nil
	}
	return a.facade
}

// Bus returns nil when Setup ran with WithoutCommandBus.
func (a *App) Bus() *gocommandadapter.Bus {
	if a == nil {
		return nil
	}
	return a.bus
}

// Close releases dispatcher subscriptions.
func (a *App) Close() {
	if a == nil || a.bus == nil {
		return
	}
	a.bus.Close()
	a.bus = nil
}
