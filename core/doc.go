// Package core contains the checkout-webhook domain contracts, configuration,
// error taxonomy and shared observability helpers. Adapters (storage, queue,
// error tracking, HTTP) depend on this package; core must not depend on them.
package core
