package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	SignatureHeaderName = "Stripe-Signature"
	SignatureScheme     = "v1"
	DefaultTolerance    = 5 * time.Minute
)

var (
	ErrMalformedSignatureHeader  = errors.New("webhooks: malformed signature header")
	ErrMissingSigningSecret      = errors.New("webhooks: signing secret is required")
	ErrTimestampOutsideTolerance = errors.New("webhooks: signature timestamp outside tolerance")
)

// SignatureHeader is the parsed form of `t=<unix>,v1=<hex>[,v1=<hex>...]`.
// Schemes other than v1 are kept but never used for verification.
type SignatureHeader struct {
	Timestamp  int64
	Signatures map[string][]string
}

// V1 returns the candidate v1 digests in header order.
func (h SignatureHeader) V1() []string {
	return h.Signatures[SignatureScheme]
}

// ParseSignatureHeader accepts items separated by commas or semicolons.
// It fails when the timestamp is missing or not base-10, or no v1 digest
// is present.
func ParseSignatureHeader(header string) (SignatureHeader, error) {
	parsed := SignatureHeader{Signatures: map[string][]string{}}
	header = strings.TrimSpace(header)
	if header == "" {
		return parsed, fmt.Errorf("%w: header is empty", ErrMalformedSignatureHeader)
	}

	hasTimestamp := false
	items := strings.FieldsFunc(header, func(r rune) bool { return r == ',' || r == ';' })
	for _, item := range items {
		key, value, ok := strings.Cut(strings.TrimSpace(item), "=")
		if !ok {
			return parsed, fmt.Errorf("%w: item %q is not key=value", ErrMalformedSignatureHeader, item)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch {
		case key == "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return parsed, fmt.Errorf("%w: timestamp %q is not an integer", ErrMalformedSignatureHeader, value)
			}
			parsed.Timestamp = ts
			hasTimestamp = true
		case strings.HasPrefix(key, "v"):
			if value != "" {
				parsed.Signatures[key] = append(parsed.Signatures[key], value)
			}
		}
	}
	if !hasTimestamp {
		return parsed, fmt.Errorf("%w: timestamp is missing", ErrMalformedSignatureHeader)
	}
	if len(parsed.V1()) == 0 {
		return parsed, fmt.Errorf("%w: no %s signature", ErrMalformedSignatureHeader, SignatureScheme)
	}
	return parsed, nil
}

// ComputeSignature returns the lowercase hex HMAC-SHA256 of "{t}.{body}".
func ComputeSignature(timestamp int64, body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignHeader builds a complete signature header for body at time t.
func SignHeader(body []byte, secret string, t time.Time) string {
	ts := t.Unix()
	return fmt.Sprintf("t=%d,%s=%s", ts, SignatureScheme, ComputeSignature(ts, body, secret))
}

// VerifySignature reports whether any v1 digest in header matches body under
// secret. A malformed header or empty secret is an error; a well-formed
// header with no matching digest is (false, nil).
func VerifySignature(body []byte, header string, secret string) (bool, error) {
	if strings.TrimSpace(secret) == "" {
		return false, ErrMissingSigningSecret
	}
	parsed, err := ParseSignatureHeader(header)
	if err != nil {
		return false, err
	}
	return matchSignature(parsed, body, secret), nil
}

func matchSignature(parsed SignatureHeader, body []byte, secret string) bool {
	expected, _ := hex.DecodeString(ComputeSignature(parsed.Timestamp, body, secret))
	matched := false
	for _, candidate := range parsed.V1() {
		decoded, err := hex.DecodeString(strings.ToLower(candidate))
		if err != nil {
			continue
		}
		if subtle.ConstantTimeCompare(decoded, expected) == 1 {
			matched = true
		}
	}
	return matched
}

// StripeSignatureVerifier verifies signature headers and, when Tolerance is
// positive, rejects timestamps older than Tolerance.
type StripeSignatureVerifier struct {
	Secret    string
	Tolerance time.Duration
	Now       func() time.Time
}

func NewStripeSignatureVerifier(secret string, tolerance time.Duration) *StripeSignatureVerifier {
	return &StripeSignatureVerifier{
		Secret:    secret,
		Tolerance: tolerance,
		Now:       time.Now,
	}
}

func (v *StripeSignatureVerifier) Verify(body []byte, header string) (bool, error) {
	if v == nil || strings.TrimSpace(v.Secret) == "" {
		return false, ErrMissingSigningSecret
	}
	parsed, err := ParseSignatureHeader(header)
	if err != nil {
		return false, err
	}
	if v.Tolerance > 0 {
		signedAt := time.Unix(parsed.Timestamp, 0)
		if v.now().Sub(signedAt) > v.Tolerance {
			return false, fmt.Errorf("%w: signed at %s", ErrTimestampOutsideTolerance, signedAt.UTC().Format(time.RFC3339))
		}
	}
	return matchSignature(parsed, body, v.Secret), nil
}

func (v *StripeSignatureVerifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}
