package core

import (
	"context"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func completeConfig() Config {
	cfg := DefaultConfig()
	cfg.Stripe.SecretKey = "sk_test_123"
	cfg.Stripe.WebhookSecret = "whsec_test_123"
	cfg.Store.URL = "postgres://db.example/app"
	cfg.Store.ServiceKey = "service-role"
	return cfg
}

func TestConfigValidate_RejectsUnknownEnvironment(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Environment = "qa"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected invalid environment error")
	}
}

func TestConfigRequireComplete_ReportsEveryMissingField(t *testing.T) {
	cfg := DefaultConfig()

	err := cfg.RequireComplete()
	if err == nil {
		t.Fatalf("expected configuration error")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if richErr.Code != http.StatusInternalServerError || richErr.TextCode != ErrorConfiguration {
		t.Fatalf("unexpected envelope: code=%d text=%q", richErr.Code, richErr.TextCode)
	}

	missing := cfg.MissingRequirements()
	expected := []string{FieldStripeSecretKey, FieldStoreURL, FieldStoreServiceKey, FieldStripeWebhookSecret}
	if len(missing) != len(expected) {
		t.Fatalf("expected %d missing fields, got %#v", len(expected), missing)
	}
	for i, field := range expected {
		if missing[i].Field != field {
			t.Fatalf("expected missing[%d]=%q, got %q", i, field, missing[i].Field)
		}
	}
}

func TestConfigRequireComplete_AcceptsCompleteConfig(t *testing.T) {
	if err := completeConfig().RequireComplete(); err != nil {
		t.Fatalf("expected complete config, got %v", err)
	}
}

func TestConfigRequireComplete_SQLiteNeedsNoServiceKey(t *testing.T) {
	cfg := completeConfig()
	cfg.Store.Driver = StoreDriverSQLite
	cfg.Store.ServiceKey = ""
	if err := cfg.RequireComplete(); err != nil {
		t.Fatalf("expected sqlite config without service key to be complete, got %v", err)
	}
}

func TestConfigTestModeAllowed_NeverInProduction(t *testing.T) {
	cfg := completeConfig()
	cfg.TestMode.Enabled = true
	if cfg.TestModeAllowed() {
		t.Fatalf("expected test mode to be refused in production")
	}
	cfg.Environment = EnvironmentDevelopment
	if !cfg.TestModeAllowed() {
		t.Fatalf("expected test mode allowed in development when enabled")
	}
	cfg.Stripe.WebhookSecret = ""
	for _, field := range cfg.MissingRequirements() {
		if field.Field == FieldStripeWebhookSecret {
			t.Fatalf("webhook secret should be optional when test mode is allowed")
		}
	}
}

func TestEnvConfigLoader_MapsEnvironment(t *testing.T) {
	env := map[string]string{
		"STRIPE_SECRET_KEY":                  "sk_test_env",
		"STRIPE_WEBHOOK_SECRET":              "whsec_env",
		"SUPABASE_URL":                       "postgres://supabase.example/db",
		"SUPABASE_SERVICE_ROLE_KEY":          "role-key",
		"APP_ENV":                            "staging",
		"ALLOW_TEST_MODE":                    "true",
		"STRIPE_SIGNATURE_TOLERANCE_SECONDS": "60",
	}
	loader := &EnvConfigLoader{Lookup: func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}}

	cfg, err := LoadConfig(context.Background(), NewCfgxConfigProvider(loader), GoOptionsResolver{}, Config{})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Stripe.SecretKey != "sk_test_env" || cfg.Stripe.WebhookSecret != "whsec_env" {
		t.Fatalf("unexpected stripe config: %#v", cfg.Stripe)
	}
	if cfg.Store.URL != "postgres://supabase.example/db" || cfg.Store.ServiceKey != "role-key" {
		t.Fatalf("unexpected store config: %#v", cfg.Store)
	}
	if cfg.Environment != EnvironmentStaging || !cfg.TestMode.Enabled {
		t.Fatalf("unexpected environment/test mode: %q %v", cfg.Environment, cfg.TestMode.Enabled)
	}
	if cfg.Stripe.ToleranceSeconds != 60 {
		t.Fatalf("expected tolerance 60, got %d", cfg.Stripe.ToleranceSeconds)
	}
	if cfg.HTTP.WebhookPath != "/stripe-webhook" {
		t.Fatalf("expected default webhook path, got %q", cfg.HTTP.WebhookPath)
	}
}

func TestEnvConfigLoader_RejectsInvalidBool(t *testing.T) {
	loader := &EnvConfigLoader{Lookup: func(key string) (string, bool) {
		if key == "ALLOW_TEST_MODE" {
			return "maybe", true
		}
		return "", false
	}}
	if _, err := loader.LoadRaw(context.Background()); err == nil {
		t.Fatalf("expected invalid bool error")
	}
}

func TestLoadConfig_RuntimeOverridesLoadedValues(t *testing.T) {
	loader := staticRawConfigLoader{Values: map[string]any{
		"service_name": "from-config",
		"stripe": map[string]any{
			"secret_key": "sk_loaded",
		},
	}}
	runtime := Config{ServiceName: "from-runtime"}

	cfg, err := LoadConfig(context.Background(), NewCfgxConfigProvider(loader), GoOptionsResolver{}, runtime)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime layer to win, got %q", cfg.ServiceName)
	}
	if cfg.Stripe.SecretKey != "sk_loaded" {
		t.Fatalf("expected loaded secret key, got %q", cfg.Stripe.SecretKey)
	}
}
