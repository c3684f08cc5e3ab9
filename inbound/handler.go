package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-gradspeech/core"
	"github.com/goliatone/go-gradspeech/events"
	"github.com/goliatone/go-gradspeech/webhooks"
)

const (
	MessageMissingStripeKey        = "Server configuration error: Missing Stripe key"
	MessageMissingStoreCredentials = "Server configuration error: Missing database credentials"
	MessageMissingWebhookSecret    = "Server configuration error: Missing webhook secret"
	MessageMissingSignature        = "Missing Stripe signature"
	MessageSignatureFailed         = "Webhook Error: Signature verification failed"
	MessageSignatureError          = "Webhook Error: Signature verification error"
	MessageInvalidJSON             = "Invalid JSON format"
	MessageInvalidJSONTestMode     = "Invalid JSON format in test mode"
	MessageUnreadableBody          = "Unable to read request body"
	MessageMethodNotAllowed        = "Method not allowed"
	MessageDeliveryInFlight        = "Webhook delivery already in progress"
	MessageFallback                = "Webhook Error"
)

const (
	ModeProduction = "production"
	ModeTest       = "test"
)

const (
	OutcomeStored    = "stored"
	OutcomeDuplicate = "duplicate"
	OutcomeDeduped   = "deduped"
	OutcomeInFlight  = "in_flight"
	OutcomeSkipped   = "skipped"
	OutcomeIgnored   = "ignored"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// SignatureVerifier checks a raw body against a Stripe-Signature header. An
// error means the header could not be evaluated; false means no digest
// matched.
type SignatureVerifier interface {
	Verify(body []byte, header string) (bool, error)
}

// Response is the single reply produced for a request.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

type Handler struct {
	config     core.Config
	verifier   SignatureVerifier
	processor  core.CompletionProcessor
	deliveries *webhooks.Processor
	reporter   core.ErrorReporter
	telemetry  core.Telemetry
}

type Option func(*Handler)

func WithVerifier(verifier SignatureVerifier) Option {
	return func(h *Handler) {
		if verifier != nil {
			h.verifier = verifier
		}
	}
}

// WithDeliveryProcessor claims every completed-checkout event in a delivery
// ledger before the completion processor runs.
func WithDeliveryProcessor(deliveries *webhooks.Processor) Option {
	return func(h *Handler) {
		h.deliveries = deliveries
	}
}

func WithErrorReporter(reporter core.ErrorReporter) Option {
	return func(h *Handler) {
		if reporter != nil {
			h.reporter = reporter
		}
	}
}

func WithTelemetry(telemetry core.Telemetry) Option {
	return func(h *Handler) {
		h.telemetry = telemetry
	}
}

// NewHandler builds the ingestion handler. An incomplete config is accepted;
// requests are then answered with the matching configuration error.
func NewHandler(config core.Config, processor core.CompletionProcessor, opts ...Option) (*Handler, error) {
	if processor == nil {
		return nil, fmt.Errorf("inbound: completion processor is required")
	}
	h := &Handler{
		config:    config,
		processor: processor,
		verifier:  webhooks.NewStripeSignatureVerifier(config.Stripe.WebhookSecret, config.SignatureTolerance()),
		reporter:  core.NopErrorReporter{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

type requestState struct {
	mode           string
	eventID        string
	eventType      string
	outcome        string
	deliveryStatus string
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := core.InboundRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Headers: flattenHeaders(r.Header),
		Metadata: map[string]any{
			"remote_addr": r.RemoteAddr,
		},
	}
	if r.Method != http.MethodOptions && r.Body != nil {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes()))
		if err != nil {
			status := http.StatusBadRequest
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			writeResponse(w, h.jsonResponse(status, map[string]any{"error": MessageUnreadableBody}))
			return
		}
		req.Body = body
	}
	writeResponse(w, h.Handle(r.Context(), req))
}

// Handle runs one request through the ingestion states and returns exactly
// one response. Errors that escape local handling, including panics, are
// reported to the error tracker and answered with 400 and a tracking id.
func (h *Handler) Handle(ctx context.Context, req core.InboundRequest) (resp Response) {
	if strings.EqualFold(req.Method, http.MethodOptions) {
		return h.preflight()
	}

	startedAt := time.Now()
	state := &requestState{mode: ModeProduction}
	var observed error
	defer func() {
		if recovered := recover(); recovered != nil {
			observed = inboundInternal(fmt.Sprintf("inbound: panic: %v", recovered), nil)
			resp = h.fail(ctx, req, state, observed)
		}
		h.telemetry.ObserveOperation(ctx, startedAt, "ingest", observed, map[string]any{
			"event_id":    state.eventID,
			"event_type":  state.eventType,
			"mode":        state.mode,
			"outcome":     state.outcome,
			"status_code": resp.StatusCode,
		})
	}()

	resp, err := h.ingest(ctx, req, state)
	if err != nil {
		observed = err
		var rejected *rejection
		if errors.As(err, &rejected) {
			if state.outcome == "" {
				state.outcome = OutcomeRejected
			}
			return h.reject(ctx, req, state, rejected)
		}
		return h.fail(ctx, req, state, err)
	}
	return resp
}

func (h *Handler) ingest(ctx context.Context, req core.InboundRequest, state *requestState) (Response, error) {
	if req.Method != "" && !strings.EqualFold(req.Method, http.MethodPost) {
		resp := h.jsonResponse(http.StatusMethodNotAllowed, map[string]any{"error": MessageMethodNotAllowed})
		resp.Headers["Allow"] = "POST, OPTIONS"
		state.outcome = OutcomeRejected
		return resp, nil
	}

	h.telemetry.Info(ctx, "webhook request received", map[string]any{
		"method":  req.Method,
		"path":    req.Path,
		"headers": core.RedactHeaders(req.Headers),
	})

	if err := h.checkConfiguration(); err != nil {
		return Response{}, err
	}

	state.mode = h.resolveMode(ctx, req)

	var event events.Event
	if state.mode == ModeTest {
		h.telemetry.Warn(ctx, "test mode request, skipping signature verification", nil)
		parsed, err := events.Parse(req.Body)
		if err != nil {
			return Response{}, reject(MessageInvalidJSONTestMode, inboundMalformed(err, "inbound: parse test mode event", nil))
		}
		event = parsed
	} else {
		if err := h.verify(ctx, req); err != nil {
			return Response{}, err
		}
		parsed, err := events.Parse(req.Body)
		if err != nil {
			return Response{}, reject(
				MessageInvalidJSON+": "+errorMessage(err),
				inboundMalformed(err, "inbound: parse event", nil),
			)
		}
		event = parsed
	}

	state.eventID = event.ID
	state.eventType = event.Type
	h.telemetry.Info(ctx, "stripe event received", map[string]any{
		"event_id":   event.ID,
		"event_type": event.Type,
		"livemode":   event.Livemode,
	})

	switch event.Kind {
	case events.KindCheckoutSessionCompleted:
		if err := h.dispatchCheckoutCompleted(ctx, req, event, state); err != nil {
			return Response{}, err
		}
	case events.KindUnknown:
		state.outcome = OutcomeIgnored
		h.telemetry.Info(ctx, "event type not handled", map[string]any{
			"event_id":   event.ID,
			"event_type": event.Type,
		})
	}
	return h.acknowledge(), nil
}

func (h *Handler) checkConfiguration() error {
	for _, field := range h.config.MissingRequirements() {
		switch field.Field {
		case core.FieldStripeSecretKey:
			return reject(MessageMissingStripeKey, inboundConfiguration("inbound: stripe secret key is not configured", field.Field))
		case core.FieldStoreURL, core.FieldStoreServiceKey:
			return reject(MessageMissingStoreCredentials, inboundConfiguration("inbound: record store credentials are not configured", field.Field))
		}
	}
	return nil
}

func (h *Handler) resolveMode(ctx context.Context, req core.InboundRequest) string {
	headerName := h.config.TestModeHeader()
	if !strings.EqualFold(strings.TrimSpace(headerValue(req.Headers, headerName)), "true") {
		return ModeProduction
	}
	if h.config.TestModeAllowed() {
		return ModeTest
	}
	h.telemetry.Warn(ctx, "test mode header ignored", map[string]any{
		"header":      headerName,
		"environment": h.config.Environment,
	})
	return ModeProduction
}

func (h *Handler) verify(ctx context.Context, req core.InboundRequest) error {
	signature := strings.TrimSpace(headerValue(req.Headers, webhooks.SignatureHeaderName))
	if signature == "" {
		return reject(MessageMissingSignature, inboundAuthentication(nil, "inbound: stripe signature header is missing", nil))
	}
	secret := strings.TrimSpace(h.config.Stripe.WebhookSecret)
	if secret == "" {
		return reject(MessageMissingWebhookSecret, inboundConfiguration("inbound: webhook secret is not configured", core.FieldStripeWebhookSecret))
	}

	diagnostics := map[string]any{
		"payload_bytes":    len(req.Body),
		"signature_length": len(signature),
		"signing_key_hint": core.SecretPreview(secret),
	}
	h.telemetry.Log(ctx, "debug", "verifying stripe signature", diagnostics)

	valid, err := h.verifier.Verify(req.Body, signature)
	if err != nil {
		h.telemetry.Error(ctx, "signature verification error", map[string]any{
			"error":            err.Error(),
			"signature_length": len(signature),
		})
		return reject(
			MessageSignatureError+": "+err.Error(),
			inboundAuthentication(err, "inbound: signature verification error", diagnostics),
		)
	}
	if !valid {
		h.telemetry.Error(ctx, "signature verification failed", diagnostics)
		return reject(MessageSignatureFailed, inboundAuthentication(nil, "inbound: signature verification failed", diagnostics))
	}
	return nil
}

func (h *Handler) dispatchCheckoutCompleted(
	ctx context.Context,
	req core.InboundRequest,
	event events.Event,
	state *requestState,
) error {
	session, err := events.DecodeCheckoutSession(event)
	if err != nil {
		return err
	}
	completion := core.CheckoutCompletion{
		EventID:  event.ID,
		Livemode: event.Livemode,
		Session:  session,
	}

	var outcome core.CompletionOutcome
	handle := func(ctx context.Context) error {
		var storeErr error
		outcome, storeErr = h.processor.Store(ctx, completion)
		return storeErr
	}

	if h.deliveries == nil || strings.TrimSpace(event.ID) == "" {
		if err := handle(ctx); err != nil {
			return err
		}
	} else {
		result, err := h.deliveries.Process(ctx, webhooks.Delivery{
			ProviderID: core.ProviderStripe,
			DeliveryID: event.ID,
			Payload:    req.Body,
		}, handle)
		state.deliveryStatus = result.Record.Status
		if err != nil {
			if result.Exhausted() {
				h.telemetry.Error(ctx, "delivery attempts exhausted", map[string]any{
					"event_id": event.ID,
					"attempts": result.Record.Attempts,
					"error":    err.Error(),
				})
			}
			return err
		}
		if result.InFlight {
			state.outcome = OutcomeInFlight
			return deferDelivery(MessageDeliveryInFlight, inboundInFlight("inbound: delivery is held by another attempt", map[string]any{
				"event_id": event.ID,
				"attempts": result.Record.Attempts,
			}))
		}
		if result.Deduped {
			state.outcome = OutcomeDeduped
			h.telemetry.Info(ctx, "duplicate delivery acknowledged", map[string]any{
				"event_id":        event.ID,
				"delivery_status": result.Record.Status,
				"attempts":        result.Record.Attempts,
			})
			return nil
		}
	}

	switch {
	case outcome.Stored:
		state.outcome = OutcomeStored
	case outcome.Duplicate:
		state.outcome = OutcomeDuplicate
	default:
		state.outcome = OutcomeSkipped
		h.telemetry.Warn(ctx, "checkout completion not stored", map[string]any{
			"event_id":   event.ID,
			"session_id": session.ID,
			"reason":     outcome.Reason,
		})
	}
	return nil
}

func (h *Handler) reject(ctx context.Context, req core.InboundRequest, state *requestState, rejected *rejection) Response {
	if rejected.deferred {
		h.telemetry.Warn(ctx, "delivery deferred for redelivery", map[string]any{
			"event_id": state.eventID,
			"error":    rejected.cause.Error(),
		})
		return h.jsonResponse(rejected.status, map[string]any{"error": rejected.message})
	}
	h.reporter.Capture(ctx, rejected.cause, h.report(req, state))
	return h.jsonResponse(rejected.status, map[string]any{"error": rejected.message})
}

func (h *Handler) fail(ctx context.Context, req core.InboundRequest, state *requestState, err error) Response {
	state.outcome = OutcomeFailed
	trackingID := h.reporter.Capture(ctx, err, h.report(req, state))
	h.telemetry.Error(ctx, "critical error in webhook handler", map[string]any{
		"error":       err.Error(),
		"event_id":    state.eventID,
		"tracking_id": trackingID,
	})
	message := MessageFallback
	if mapped := core.MapError(err); mapped != nil && strings.TrimSpace(mapped.Message) != "" {
		message = mapped.Message
	}
	return h.jsonResponse(http.StatusBadRequest, map[string]any{
		"error":         message,
		"sentryEventId": trackingID,
	})
}

func (h *Handler) report(req core.InboundRequest, state *requestState) core.ErrorReport {
	tags := map[string]string{
		"test_mode": fmt.Sprint(state.mode == ModeTest),
	}
	if state.eventType != "" {
		tags["event_type"] = state.eventType
	}
	if state.deliveryStatus != "" {
		tags["delivery_status"] = state.deliveryStatus
	}
	return core.ErrorReport{
		Tags: tags,
		Context: map[string]any{
			"request": map[string]any{
				"method": req.Method,
				"path":   req.Path,
			},
			"event_id": state.eventID,
		},
	}
}

func (h *Handler) preflight() Response {
	return Response{
		StatusCode: http.StatusOK,
		Headers:    h.corsHeaders(),
		Body:       []byte("ok"),
	}
}

func (h *Handler) acknowledge() Response {
	return h.jsonResponse(http.StatusOK, map[string]any{"received": true})
}

func (h *Handler) jsonResponse(status int, payload map[string]any) Response {
	body, err := json.Marshal(payload)
	if err != nil {
		body = []byte(`{"error":"` + MessageFallback + `"}`)
	}
	headers := h.corsHeaders()
	headers["Content-Type"] = "application/json"
	return Response{StatusCode: status, Headers: headers, Body: body}
}

func (h *Handler) corsHeaders() map[string]string {
	origin := strings.TrimSpace(h.config.CORS.AllowOrigin)
	if origin == "" {
		origin = "*"
	}
	headers := map[string]string{
		"Access-Control-Allow-Origin":  origin,
		"Access-Control-Allow-Methods": "POST, OPTIONS",
	}
	if len(h.config.CORS.AllowHeaders) > 0 {
		headers["Access-Control-Allow-Headers"] = strings.Join(h.config.CORS.AllowHeaders, ", ")
	}
	return headers
}

func (h *Handler) maxBodyBytes() int64 {
	if h.config.HTTP.MaxBodyBytes > 0 {
		return h.config.HTTP.MaxBodyBytes
	}
	return 1 << 20
}

func writeResponse(w http.ResponseWriter, resp Response) {
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

func flattenHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for key, values := range header {
		out[key] = strings.Join(values, ",")
	}
	return out
}

func headerValue(headers map[string]string, name string) string {
	if value, ok := headers[name]; ok {
		return value
	}
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}

func errorMessage(err error) string {
	if mapped := core.MapError(err); mapped != nil && strings.TrimSpace(mapped.Message) != "" {
		return mapped.Message
	}
	return err.Error()
}
