package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-gradspeech/core"
	"github.com/goliatone/go-gradspeech/query"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	PathHealth      = "/healthz"
	PathMetrics     = "/metrics"
	PathCompletions = "/completions/:id"
)

// Dependencies are the collaborators mounted on the router. Webhook is
// required; the rest are optional and their routes are skipped when nil.
type Dependencies struct {
	Webhook     http.Handler
	Completions core.CompletionReader
	Gatherer    prom.Gatherer
	// Ping reports storage health for /healthz.
	Ping      func(ctx context.Context) error
	Telemetry core.Telemetry
}

type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	telemetry  core.Telemetry
}

func New(cfg core.HTTPConfig, deps Dependencies) (*Server, error) {
	if deps.Webhook == nil {
		return nil, fmt.Errorf("server: webhook handler is required")
	}
	webhookPath := strings.TrimSpace(cfg.WebhookPath)
	if webhookPath == "" {
		webhookPath = core.DefaultConfig().HTTP.WebhookPath
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = core.DefaultConfig().HTTP.Addr
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(deps.Telemetry))

	// The inbound handler owns method dispatch so non-POST verbs get its 405.
	router.Any(webhookPath, gin.WrapH(deps.Webhook))

	router.GET(PathHealth, healthHandler(deps.Ping, deps.Telemetry))
	if deps.Completions != nil {
		router.GET(PathCompletions, completionHandler(query.NewGetCompletionQuery(deps.Completions)))
	}
	if deps.Gatherer != nil {
		router.GET(PathMetrics, gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	return &Server{
		router: router,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
		},
		telemetry: deps.Telemetry,
	}, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Run serves until ctx is cancelled, then drains in-flight requests for up
// to shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.telemetry.Info(ctx, "http server listening", map[string]any{"addr": s.httpServer.Addr})
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// healthHandler logs ping errors and never echoes them in the body.
func healthHandler(ping func(ctx context.Context) error, telemetry core.Telemetry) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ping != nil {
			if err := ping(c.Request.Context()); err != nil {
				telemetry.Error(c.Request.Context(), "health check failed", map[string]any{"error": err.Error()})
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "record store unreachable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func completionHandler(q *query.GetCompletionQuery) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := q.Query(c.Request.Context(), query.GetCompletionMessage{PreviewID: c.Param("id")})
		if err != nil {
			mapped := core.MapError(err)
			c.JSON(mapped.Code, gin.H{"error": mapped.Message, "code": mapped.TextCode})
			return
		}
		c.JSON(http.StatusOK, completionView(record))
	}
}

// completionView leaves out form data and email; the preview page only needs
// the processing state.
func completionView(record core.CompletionRecord) gin.H {
	view := gin.H{
		"id":         record.ID,
		"preview_id": record.PreviewID,
		"processed":  record.Processed,
		"created_at": record.CreatedAt.UTC().Format(time.RFC3339),
	}
	if record.ProcessedAt != nil {
		view["processed_at"] = record.ProcessedAt.UTC().Format(time.RFC3339)
	}
	return view
}

func requestLogger(telemetry core.Telemetry) gin.HandlerFunc {
	return func(c *gin.Context) {
		startedAt := time.Now()
		c.Next()
		telemetry.Info(c.Request.Context(), "http request", map[string]any{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status_code": c.Writer.Status(),
			"duration_ms": time.Since(startedAt).Milliseconds(),
		})
	}
}
