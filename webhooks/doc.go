// Package webhooks verifies Stripe-style webhook signatures and deduplicates
// deliveries through a claim ledger.
//
// Signatures use the `t=<unix>,v1=<hex>` header format where each v1 value is
// HMAC-SHA256 over "{t}.{raw body}". Verification distinguishes a malformed
// header (error) from a digest mismatch (false).
//
// Delivery claims move through pending, processing, processed, retry_ready
// and dead. A processed or dead delivery is never handed to the handler again.
package webhooks
