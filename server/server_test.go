package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gologger "github.com/goliatone/go-gradspeech/adapters/gologger"
	"github.com/goliatone/go-gradspeech/completion"
	"github.com/goliatone/go-gradspeech/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, deps Dependencies) *Server {
	t.Helper()
	if deps.Webhook == nil {
		deps.Webhook = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Method", r.Method)
			w.WriteHeader(http.StatusOK)
		})
	}
	srv, err := New(core.HTTPConfig{Addr: "127.0.0.1:0", WebhookPath: "/stripe-webhook"}, deps)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv
}

func serve(srv *Server, method string, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader("{}"))
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresWebhookHandler(t *testing.T) {
	if _, err := New(core.HTTPConfig{}, Dependencies{}); err == nil {
		t.Fatalf("expected missing webhook handler error")
	}
}

func TestNew_DefaultsAddressAndPath(t *testing.T) {
	srv, err := New(core.HTTPConfig{}, Dependencies{Webhook: http.NotFoundHandler()})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if srv.Addr() != core.DefaultConfig().HTTP.Addr {
		t.Fatalf("expected default addr, got %q", srv.Addr())
	}
	if rec := serve(srv, http.MethodPost, core.DefaultConfig().HTTP.WebhookPath); rec.Code != http.StatusNotFound {
		t.Fatalf("expected wrapped handler on default path, got %d", rec.Code)
	}
}

func TestWebhookRoute_ForwardsEveryMethod(t *testing.T) {
	srv := newTestServer(t, Dependencies{})
	for _, method := range []string{http.MethodPost, http.MethodOptions, http.MethodGet} {
		rec := serve(srv, method, "/stripe-webhook")
		if rec.Code != http.StatusOK || rec.Header().Get("X-Method") != method {
			t.Fatalf("%s: expected forwarded request, got %d %q", method, rec.Code, rec.Header().Get("X-Method"))
		}
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, Dependencies{})
	if rec := serve(srv, http.MethodGet, PathHealth); rec.Code != http.StatusOK {
		t.Fatalf("expected healthy, got %d", rec.Code)
	}

	var logs bytes.Buffer
	failing := newTestServer(t, Dependencies{
		Ping: func(context.Context) error {
			return errors.New("dial tcp db.internal:5432: connection refused")
		},
		Telemetry: core.NewTelemetry(gologger.NewZerologLogger(&logs, "debug"), nil),
	})
	rec := serve(failing, http.MethodGet, PathHealth)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected unavailable, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "db.internal") {
		t.Fatalf("health body leaked store details: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "record store unreachable") {
		t.Fatalf("expected fixed unavailable message, got %s", rec.Body.String())
	}
	if !strings.Contains(logs.String(), "health check failed") || !strings.Contains(logs.String(), "db.internal") {
		t.Fatalf("expected ping error in logs, got %s", logs.String())
	}
}

func TestCompletionRoute(t *testing.T) {
	store := completion.NewMemoryStore()
	createdAt := time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)
	_, _, err := store.Insert(context.Background(), core.CompletionRecord{
		ID:            completion.RecordID("cs_route"),
		PreviewID:     "prev0001",
		SessionID:     "cs_route",
		CustomerEmail: "grad@example.edu",
		FormData:      map[string]any{"name": "Ada"},
		CreatedAt:     createdAt,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	srv := newTestServer(t, Dependencies{Completions: store})

	rec := serve(srv, http.MethodGet, "/completions/prev0001")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["preview_id"] != "prev0001" || body["processed"] != false {
		t.Fatalf("unexpected body: %#v", body)
	}
	if _, ok := body["customer_email"]; ok {
		t.Fatalf("expected email to be omitted")
	}

	missing := serve(srv, http.MethodGet, "/completions/nope")
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.Code)
	}
	if !strings.Contains(missing.Body.String(), core.ErrorRecordNotFound) {
		t.Fatalf("expected not found text code, got %s", missing.Body.String())
	}
}

func TestCompletionRoute_SkippedWithoutReader(t *testing.T) {
	srv := newTestServer(t, Dependencies{})
	if rec := serve(srv, http.MethodGet, "/completions/prev0001"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected unregistered route, got %d", rec.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	registry := prom.NewRegistry()
	counter := prom.NewCounter(prom.CounterOpts{Name: "gradspeech_test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	srv := newTestServer(t, Dependencies{Gatherer: registry})
	rec := serve(srv, http.MethodGet, PathMetrics)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "gradspeech_test_total 1") {
		t.Fatalf("expected exported counter, got %s", rec.Body.String())
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	srv := newTestServer(t, Dependencies{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, time.Second) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop")
	}
}
