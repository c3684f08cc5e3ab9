package events

import (
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-gradspeech/core"
)

func TestParse_CheckoutCompleted(t *testing.T) {
	body := []byte(`{
		"id": "evt_123",
		"object": "event",
		"type": "checkout.session.completed",
		"livemode": false,
		"created": 1700000000,
		"pending_webhooks": 1,
		"data": {"object": {"id": "cs_test_1", "object": "checkout.session", "payment_status": "paid"}}
	}`)

	event, err := Parse(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.ID != "evt_123" || event.Kind != KindCheckoutSessionCompleted {
		t.Fatalf("unexpected event: %#v", event)
	}
	if event.Created != 1700000000 {
		t.Fatalf("expected created timestamp, got %d", event.Created)
	}

	session, err := DecodeCheckoutSession(event)
	if err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if session.ID != "cs_test_1" || string(session.PaymentStatus) != core.PaymentStatusPaid {
		t.Fatalf("unexpected session: id=%q status=%q", session.ID, session.PaymentStatus)
	}
}

func TestParse_UnknownTypePassesThrough(t *testing.T) {
	event, err := Parse([]byte(`{"id":"evt_2","type":"customer.updated","data":{"object":{"id":"cus_1"}}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Kind != KindUnknown || event.Type != "customer.updated" {
		t.Fatalf("unexpected event: %#v", event)
	}
	if event.Kind.String() != "unknown" {
		t.Fatalf("unexpected kind string %q", event.Kind.String())
	}
}

func TestParse_RejectsMalformedBodies(t *testing.T) {
	cases := map[string]string{
		"empty":        ``,
		"not json":     `this is not json`,
		"array":        `[{"type":"checkout.session.completed"}]`,
		"truncated":    `{"type":"checkout.session.completed"`,
		"missing type": `{"id":"evt_1","data":{"object":{}}}`,
		"wrong type":   `{"id":"evt_1","type":42}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			if err == nil {
				t.Fatalf("expected parse error")
			}
			var richErr *goerrors.Error
			if !goerrors.As(err, &richErr) || richErr.TextCode != core.ErrorMalformedEvent {
				t.Fatalf("expected malformed event error, got %v", err)
			}
		})
	}
}

func TestDecodeCheckoutSession_RequiresObjectWithID(t *testing.T) {
	cases := map[string]string{
		"missing object": `{"type":"checkout.session.completed","data":{}}`,
		"null object":    `{"type":"checkout.session.completed","data":{"object":null}}`,
		"string object":  `{"type":"checkout.session.completed","data":{"object":"cs_1"}}`,
		"missing id":     `{"type":"checkout.session.completed","data":{"object":{"payment_status":"paid"}}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			event, err := Parse([]byte(body))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if _, err := DecodeCheckoutSession(event); err == nil {
				t.Fatalf("expected decode error")
			}
		})
	}
}

func TestKindFromType(t *testing.T) {
	if KindFromType(" checkout.session.completed ") != KindCheckoutSessionCompleted {
		t.Fatalf("expected checkout kind")
	}
	if KindFromType("checkout.session.expired") != KindUnknown {
		t.Fatalf("expected unknown kind for expired sessions")
	}
}
