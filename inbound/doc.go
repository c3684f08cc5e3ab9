// Package inbound contains the Stripe webhook ingestion handler.
//
// Requests move through mode resolution, signature verification, event
// parsing and dispatch. Completed checkouts are claimed in a delivery ledger
// before the completion processor runs, so failed deliveries remain
// retryable and redeliveries of a processed event are acknowledged without
// side effects.
package inbound
