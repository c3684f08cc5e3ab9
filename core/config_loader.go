package core

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// LookupEnvFunc matches os.LookupEnv.
type LookupEnvFunc func(key string) (string, bool)

// EnvConfigLoader maps process environment variables onto the raw config
// tree. When several variables target the same key the first one set wins.
type EnvConfigLoader struct {
	Lookup LookupEnvFunc
}

func NewEnvConfigLoader() *EnvConfigLoader {
	return &EnvConfigLoader{Lookup: os.LookupEnv}
}

type envBinding struct {
	path  []string
	names []string
	kind  string
}

var envBindings = []envBinding{
	{path: []string{"service_name"}, names: []string{"SERVICE_NAME"}},
	{path: []string{"environment"}, names: []string{"APP_ENV", "ENVIRONMENT"}},
	{path: []string{"stripe", "secret_key"}, names: []string{"STRIPE_SECRET_KEY"}},
	{path: []string{"stripe", "webhook_secret"}, names: []string{"STRIPE_WEBHOOK_SECRET"}},
	{path: []string{"stripe", "tolerance_seconds"}, names: []string{"STRIPE_SIGNATURE_TOLERANCE_SECONDS"}, kind: "int"},
	{path: []string{"store", "driver"}, names: []string{"STORE_DRIVER"}},
	{path: []string{"store", "url"}, names: []string{"STORE_URL", "SUPABASE_URL", "DATABASE_URL"}},
	{path: []string{"store", "service_key"}, names: []string{"STORE_SERVICE_KEY", "SUPABASE_SERVICE_ROLE_KEY"}},
	{path: []string{"store", "debug"}, names: []string{"STORE_DEBUG"}, kind: "bool"},
	{path: []string{"test_mode", "enabled"}, names: []string{"ALLOW_TEST_MODE"}, kind: "bool"},
	{path: []string{"error_tracking", "dsn"}, names: []string{"SENTRY_DSN"}},
	{path: []string{"error_tracking", "environment"}, names: []string{"SENTRY_ENVIRONMENT"}},
	{path: []string{"jobs", "amqp_url"}, names: []string{"SPEECH_JOBS_AMQP_URL"}},
	{path: []string{"jobs", "queue"}, names: []string{"SPEECH_JOBS_QUEUE"}},
	{path: []string{"http", "addr"}, names: []string{"HTTP_ADDR"}},
	{path: []string{"http", "webhook_path"}, names: []string{"HTTP_WEBHOOK_PATH"}},
	{path: []string{"http", "max_body_bytes"}, names: []string{"HTTP_MAX_BODY_BYTES"}, kind: "int64"},
}

func (l *EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	lookup := os.LookupEnv
	if l != nil && l.Lookup != nil {
		lookup = l.Lookup
	}
	raw := map[string]any{}
	for _, binding := range envBindings {
		name, value, ok := firstEnv(lookup, binding.names)
		if !ok {
			continue
		}
		typed, err := convertEnvValue(value, binding.kind)
		if err != nil {
			return nil, fmt.Errorf("core: env %s: %w", name, err)
		}
		setPath(raw, binding.path, typed)
	}
	return raw, nil
}

func firstEnv(lookup LookupEnvFunc, names []string) (string, string, bool) {
	for _, name := range names {
		value, ok := lookup(name)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		return name, value, true
	}
	return "", "", false
}

func convertEnvValue(value string, kind string) (any, error) {
	switch kind {
	case "bool":
		return strconv.ParseBool(value)
	case "int":
		return strconv.Atoi(value)
	case "int64":
		return strconv.ParseInt(value, 10, 64)
	default:
		return value, nil
	}
}

func setPath(target map[string]any, path []string, value any) {
	current := target
	for _, segment := range path[:len(path)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[segment] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	return cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// LoadConfig resolves defaults, the provider's values and runtime overrides
// into one validated Config.
func LoadConfig(ctx context.Context, provider ConfigProvider, resolver OptionsResolver, runtime Config) (Config, error) {
	defaults := DefaultConfig()
	if provider == nil {
		provider = NewCfgxConfigProvider(NewEnvConfigLoader())
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	putString := func(path []string, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			setPath(layer, path, value)
		}
	}
	putString([]string{"service_name"}, cfg.ServiceName)
	putString([]string{"environment"}, cfg.Environment)
	putString([]string{"stripe", "secret_key"}, cfg.Stripe.SecretKey)
	putString([]string{"stripe", "webhook_secret"}, cfg.Stripe.WebhookSecret)
	putString([]string{"store", "driver"}, cfg.Store.Driver)
	putString([]string{"store", "url"}, cfg.Store.URL)
	putString([]string{"store", "service_key"}, cfg.Store.ServiceKey)
	putString([]string{"test_mode", "header"}, cfg.TestMode.Header)
	putString([]string{"cors", "allow_origin"}, cfg.CORS.AllowOrigin)
	putString([]string{"error_tracking", "dsn"}, cfg.ErrorTracking.DSN)
	putString([]string{"error_tracking", "environment"}, cfg.ErrorTracking.Environment)
	putString([]string{"jobs", "amqp_url"}, cfg.Jobs.AMQPURL)
	putString([]string{"jobs", "queue"}, cfg.Jobs.Queue)
	putString([]string{"http", "addr"}, cfg.HTTP.Addr)
	putString([]string{"http", "webhook_path"}, cfg.HTTP.WebhookPath)

	if includeZero || cfg.Stripe.ToleranceSeconds != 0 {
		setPath(layer, []string{"stripe", "tolerance_seconds"}, cfg.Stripe.ToleranceSeconds)
	}
	if includeZero || cfg.Store.Debug {
		setPath(layer, []string{"store", "debug"}, cfg.Store.Debug)
	}
	if includeZero || cfg.TestMode.Enabled {
		setPath(layer, []string{"test_mode", "enabled"}, cfg.TestMode.Enabled)
	}
	if includeZero || len(cfg.CORS.AllowHeaders) > 0 {
		setPath(layer, []string{"cors", "allow_headers"}, append([]string(nil), cfg.CORS.AllowHeaders...))
	}
	if includeZero || cfg.HTTP.MaxBodyBytes != 0 {
		setPath(layer, []string{"http", "max_body_bytes"}, cfg.HTTP.MaxBodyBytes)
	}
	return layer
}
