package completion

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

type customerGetter interface {
	Get(id string, params *stripe.CustomerParams) (*stripe.Customer, error)
}

// StripeCustomerLookup reads customer emails through the Stripe API.
type StripeCustomerLookup struct {
	customers customerGetter
}

func NewStripeCustomerLookup(secretKey string) (*StripeCustomerLookup, error) {
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return nil, fmt.Errorf("completion: stripe secret key is required")
	}
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &StripeCustomerLookup{customers: sc.Customers}, nil
}

func (l *StripeCustomerLookup) CustomerEmail(ctx context.Context, customerID string) (string, error) {
	if l == nil || l.customers == nil {
		return "", fmt.Errorf("completion: stripe customer lookup is not configured")
	}
	params := &stripe.CustomerParams{}
	params.Context = ctx
	customer, err := l.customers.Get(strings.TrimSpace(customerID), params)
	if err != nil {
		return "", fmt.Errorf("completion: fetch customer %s: %w", customerID, err)
	}
	if customer == nil {
		return "", nil
	}
	return customer.Email, nil
}

var _ CustomerEmailLookup = (*StripeCustomerLookup)(nil)
