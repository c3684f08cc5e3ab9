package completion

import (
	"encoding/json"
	"strings"

	"github.com/goliatone/go-gradspeech/core"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
)

// recordNamespace scopes the name-based UUIDs derived from checkout session
// ids.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://gradspeech.app/completion-records"))

const previewIDLength = 8

// RecordID derives the stable record id for a checkout session, so every
// redelivery of the same session maps to the same row.
func RecordID(sessionID string) string {
	return uuid.NewSHA1(recordNamespace, []byte(strings.TrimSpace(sessionID))).String()
}

// PreviewID returns the short id the web client uses to look up its speech:
// metadata.preview_id, then client_reference_id, then the first eight
// characters of the record id.
func PreviewID(session *stripe.CheckoutSession, recordID string) string {
	if session != nil {
		if value := strings.TrimSpace(session.Metadata["preview_id"]); value != "" {
			return value
		}
		if value := strings.TrimSpace(session.ClientReferenceID); value != "" {
			return value
		}
	}
	if len(recordID) >= previewIDLength {
		return recordID[:previewIDLength]
	}
	return recordID
}

// CustomerEmail picks the first non-empty email from the session.
func CustomerEmail(session *stripe.CheckoutSession) string {
	if session == nil {
		return ""
	}
	if session.CustomerDetails != nil {
		if email := strings.TrimSpace(session.CustomerDetails.Email); email != "" {
			return email
		}
	}
	if email := strings.TrimSpace(session.CustomerEmail); email != "" {
		return email
	}
	if session.Customer != nil {
		if email := strings.TrimSpace(session.Customer.Email); email != "" {
			return email
		}
	}
	return strings.TrimSpace(session.Metadata["email"])
}

// FormData collects the wizard fields from checkout metadata. A JSON object
// under metadata.form_data is the base; individual metadata keys override it.
func FormData(session *stripe.CheckoutSession) (map[string]any, error) {
	out := map[string]any{}
	if session == nil {
		return out, nil
	}
	if raw := strings.TrimSpace(session.Metadata["form_data"]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, core.NewMalformedEventError("completion: metadata.form_data is not a JSON object", err)
		}
		if out == nil {
			out = map[string]any{}
		}
	}
	for _, key := range core.FormFieldKeys {
		if value, ok := session.Metadata[key]; ok && strings.TrimSpace(value) != "" {
			out[key] = value
		}
	}
	return out, nil
}

// Paid reports whether the session represents a settled checkout.
func Paid(session *stripe.CheckoutSession) bool {
	if session == nil {
		return false
	}
	switch string(session.PaymentStatus) {
	case core.PaymentStatusPaid, core.PaymentStatusNoPaymentRequired:
		return true
	default:
		return false
	}
}

func customerID(session *stripe.CheckoutSession) string {
	if session == nil || session.Customer == nil {
		return ""
	}
	return strings.TrimSpace(session.Customer.ID)
}
