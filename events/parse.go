// Package events decodes Stripe event envelopes into a closed set of kinds
// the webhook handler dispatches on.
package events

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/goliatone/go-gradspeech/core"
	"github.com/stripe/stripe-go/v79"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindCheckoutSessionCompleted
)

const TypeCheckoutSessionCompleted = string(stripe.EventTypeCheckoutSessionCompleted)

func (k Kind) String() string {
	switch k {
	case KindCheckoutSessionCompleted:
		return TypeCheckoutSessionCompleted
	default:
		return "unknown"
	}
}

// KindFromType maps a wire event type onto a Kind.
func KindFromType(eventType string) Kind {
	switch strings.TrimSpace(eventType) {
	case TypeCheckoutSessionCompleted:
		return KindCheckoutSessionCompleted
	default:
		return KindUnknown
	}
}

type Data struct {
	Object json.RawMessage `json:"object"`
}

// Event is the subset of a Stripe event envelope the service relies on.
// Unknown fields are ignored.
type Event struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Kind       Kind   `json:"-"`
	Data       Data   `json:"data"`
	Livemode   bool   `json:"livemode"`
	Created    int64  `json:"created"`
	APIVersion string `json:"api_version"`
}

// Parse decodes body into an Event. It fails with a malformed-event error
// when body is not a JSON object or the type is missing.
func Parse(body []byte) (Event, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Event{}, core.NewMalformedEventError("events: body is empty", nil)
	}
	if trimmed[0] != '{' {
		return Event{}, core.NewMalformedEventError("events: body is not a JSON object", nil)
	}
	var event Event
	if err := json.Unmarshal(trimmed, &event); err != nil {
		return Event{}, core.NewMalformedEventError("events: "+err.Error(), err)
	}
	event.ID = strings.TrimSpace(event.ID)
	event.Type = strings.TrimSpace(event.Type)
	if event.Type == "" {
		return Event{}, core.NewMalformedEventError("events: event type is required", nil)
	}
	event.Kind = KindFromType(event.Type)
	return event, nil
}

// DecodeCheckoutSession decodes data.object of a checkout event into a typed
// session. The session id is required.
func DecodeCheckoutSession(event Event) (*stripe.CheckoutSession, error) {
	object := bytes.TrimSpace(event.Data.Object)
	if len(object) == 0 || bytes.Equal(object, []byte("null")) {
		return nil, core.NewMalformedEventError("events: data.object is required", nil)
	}
	if object[0] != '{' {
		return nil, core.NewMalformedEventError("events: data.object must be an object", nil)
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(object, &session); err != nil {
		return nil, core.NewMalformedEventError("events: decode checkout session: "+err.Error(), err)
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, core.NewMalformedEventError("events: checkout session id is required", nil)
	}
	return &session, nil
}
