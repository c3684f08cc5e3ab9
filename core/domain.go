package core

import (
	"time"

	"github.com/stripe/stripe-go/v79"
)

const ProviderStripe = "stripe"

const (
	PaymentStatusPaid              = "paid"
	PaymentStatusUnpaid            = "unpaid"
	PaymentStatusNoPaymentRequired = "no_payment_required"
)

// FormFieldKeys are the speech wizard fields carried through checkout
// metadata.
var FormFieldKeys = []string{
	"name",
	"role",
	"institution",
	"graduationType",
	"graduationClass",
	"tone",
	"themes",
	"keyPoints",
	"memories",
	"personalBackground",
	"goalsLessons",
	"acknowledgements",
	"quote",
	"wishes",
	"additionalInfo",
	"email",
}

// CompletionRecord is the durable row written after a paid checkout. A new
// record always starts with Processed=false.
type CompletionRecord struct {
	ID            string
	PreviewID     string
	SessionID     string
	EventID       string
	CustomerEmail string
	FormData      map[string]any
	Processed     bool
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CheckoutCompletion is the typed input handed to a CompletionProcessor.
type CheckoutCompletion struct {
	EventID  string
	Livemode bool
	Session  *stripe.CheckoutSession
}

type CompletionOutcome struct {
	Record    CompletionRecord
	Stored    bool
	Duplicate bool
	JobQueued bool
	// Reason explains why nothing was stored when Stored and Duplicate are
	// both false.
	Reason string
}

func CopyFormData(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
