package core

import (
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	EnvironmentProduction  = "production"
	EnvironmentStaging     = "staging"
	EnvironmentDevelopment = "development"
	EnvironmentTest        = "test"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite3"
)

// DefaultSpeechJobQueue is the broker queue speech generation jobs are
// published to when none is configured.
const DefaultSpeechJobQueue = "gradspeech.speech.generate"

const (
	FieldStripeSecretKey     = "stripe.secret_key"
	FieldStripeWebhookSecret = "stripe.webhook_secret"
	FieldStoreURL            = "store.url"
	FieldStoreServiceKey     = "store.service_key"
)

type StripeConfig struct {
	SecretKey        string `koanf:"secret_key" mapstructure:"secret_key"`
	WebhookSecret    string `koanf:"webhook_secret" mapstructure:"webhook_secret"`
	ToleranceSeconds int    `koanf:"tolerance_seconds" mapstructure:"tolerance_seconds"`
}

type StoreConfig struct {
	Driver     string `koanf:"driver" mapstructure:"driver"`
	URL        string `koanf:"url" mapstructure:"url"`
	ServiceKey string `koanf:"service_key" mapstructure:"service_key"`
	Debug      bool   `koanf:"debug" mapstructure:"debug"`
}

type TestModeConfig struct {
	Enabled bool   `koanf:"enabled" mapstructure:"enabled"`
	Header  string `koanf:"header" mapstructure:"header"`
}

type CORSConfig struct {
	AllowOrigin  string   `koanf:"allow_origin" mapstructure:"allow_origin"`
	AllowHeaders []string `koanf:"allow_headers" mapstructure:"allow_headers"`
}

type ErrorTrackingConfig struct {
	DSN         string `koanf:"dsn" mapstructure:"dsn"`
	Environment string `koanf:"environment" mapstructure:"environment"`
}

type JobsConfig struct {
	AMQPURL string `koanf:"amqp_url" mapstructure:"amqp_url"`
	Queue   string `koanf:"queue" mapstructure:"queue"`
}

type HTTPConfig struct {
	Addr         string `koanf:"addr" mapstructure:"addr"`
	WebhookPath  string `koanf:"webhook_path" mapstructure:"webhook_path"`
	MaxBodyBytes int64  `koanf:"max_body_bytes" mapstructure:"max_body_bytes"`
}

type Config struct {
	ServiceName   string              `koanf:"service_name" mapstructure:"service_name"`
	Environment   string              `koanf:"environment" mapstructure:"environment"`
	Stripe        StripeConfig        `koanf:"stripe" mapstructure:"stripe"`
	Store         StoreConfig         `koanf:"store" mapstructure:"store"`
	TestMode      TestModeConfig      `koanf:"test_mode" mapstructure:"test_mode"`
	CORS          CORSConfig          `koanf:"cors" mapstructure:"cors"`
	ErrorTracking ErrorTrackingConfig `koanf:"error_tracking" mapstructure:"error_tracking"`
	Jobs          JobsConfig          `koanf:"jobs" mapstructure:"jobs"`
	HTTP          HTTPConfig          `koanf:"http" mapstructure:"http"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "gradspeech",
		Environment: EnvironmentProduction,
		Stripe: StripeConfig{
			ToleranceSeconds: 300,
		},
		Store: StoreConfig{
			Driver: StoreDriverPostgres,
		},
		TestMode: TestModeConfig{
			Header: "X-Test-Mode",
		},
		CORS: CORSConfig{
			AllowOrigin: "*",
			AllowHeaders: []string{
				"authorization",
				"x-client-info",
				"apikey",
				"content-type",
				"stripe-signature",
				"x-test-mode",
			},
		},
		Jobs: JobsConfig{
			Queue: DefaultSpeechJobQueue,
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			WebhookPath:  "/stripe-webhook",
			MaxBodyBytes: 1 << 20,
		},
	}
}

// Validate checks the structural shape of the configuration. Missing secrets
// are reported by MissingRequirements so a handler built from an incomplete
// configuration can still answer requests with a configuration error.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	switch c.normalizedEnvironment() {
	case EnvironmentProduction, EnvironmentStaging, EnvironmentDevelopment, EnvironmentTest:
	default:
		return fmt.Errorf("core: environment %q is invalid", c.Environment)
	}
	switch strings.TrimSpace(c.Store.Driver) {
	case "", StoreDriverPostgres, StoreDriverSQLite:
	default:
		return fmt.Errorf("core: store driver %q is invalid", c.Store.Driver)
	}
	if c.Stripe.ToleranceSeconds < 0 {
		return fmt.Errorf("core: stripe tolerance_seconds must be zero or positive")
	}
	if c.HTTP.MaxBodyBytes < 0 {
		return fmt.Errorf("core: http max_body_bytes must be zero or positive")
	}
	return nil
}

// MissingRequirements lists every required value absent from the
// configuration, in the order the webhook handler checks them.
func (c Config) MissingRequirements() []goerrors.FieldError {
	missing := []goerrors.FieldError{}
	if strings.TrimSpace(c.Stripe.SecretKey) == "" {
		missing = append(missing, goerrors.FieldError{
			Field:   FieldStripeSecretKey,
			Message: "Stripe secret key is required",
		})
	}
	if strings.TrimSpace(c.Store.URL) == "" {
		missing = append(missing, goerrors.FieldError{
			Field:   FieldStoreURL,
			Message: "record store url is required",
		})
	}
	if c.storeDriver() == StoreDriverPostgres && strings.TrimSpace(c.Store.ServiceKey) == "" {
		missing = append(missing, goerrors.FieldError{
			Field:   FieldStoreServiceKey,
			Message: "record store service credential is required",
		})
	}
	if strings.TrimSpace(c.Stripe.WebhookSecret) == "" && !c.TestModeAllowed() {
		missing = append(missing, goerrors.FieldError{
			Field:   FieldStripeWebhookSecret,
			Message: "Stripe webhook secret is required",
		})
	}
	return missing
}

// RequireComplete returns a single configuration error naming every missing
// field, or nil.
func (c Config) RequireComplete() error {
	missing := c.MissingRequirements()
	if len(missing) == 0 {
		return nil
	}
	return NewConfigurationError("core: configuration incomplete", missing...).
		WithSeverity(goerrors.SeverityError)
}

func (c Config) IsProduction() bool {
	return c.normalizedEnvironment() == EnvironmentProduction
}

// TestModeAllowed reports whether the server honors the test-mode header.
// Production deployments never do.
func (c Config) TestModeAllowed() bool {
	return c.TestMode.Enabled && !c.IsProduction()
}

func (c Config) SignatureTolerance() time.Duration {
	if c.Stripe.ToleranceSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Stripe.ToleranceSeconds) * time.Second
}

func (c Config) TestModeHeader() string {
	if header := strings.TrimSpace(c.TestMode.Header); header != "" {
		return header
	}
	return "X-Test-Mode"
}

func (c Config) normalizedEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	if env == "" {
		return EnvironmentProduction
	}
	return env
}

func (c Config) storeDriver() string {
	driver := strings.TrimSpace(c.Store.Driver)
	if driver == "" {
		return StoreDriverPostgres
	}
	return driver
}
