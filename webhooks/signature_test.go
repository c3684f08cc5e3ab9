package webhooks

import (
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v79/webhook"
)

func TestSignHeader_RoundTripsThroughVerify(t *testing.T) {
	bodies := [][]byte{
		[]byte(`{"id":"evt_1","type":"checkout.session.completed"}`),
		[]byte(""),
		[]byte("not json at all"),
		[]byte("{\n  \"unicode\": \"déjà vu\"\n}"),
	}
	secrets := []string{"whsec_test_secret", "s", "whsec_with spaces and = signs"}
	now := time.Unix(1_700_000_000, 0)

	for _, secret := range secrets {
		for _, body := range bodies {
			header := SignHeader(body, secret, now)
			ok, err := VerifySignature(body, header, secret)
			if err != nil {
				t.Fatalf("verify %q with secret %q: %v", body, secret, err)
			}
			if !ok {
				t.Fatalf("expected signature to verify for body %q secret %q", body, secret)
			}
		}
	}
}

func TestComputeSignature_MatchesStripeLibrary(t *testing.T) {
	body := []byte(`{"id":"evt_123","object":"event"}`)
	secret := "whsec_reference"
	now := time.Unix(1_712_345_678, 0)

	expected := hex.EncodeToString(webhook.ComputeSignature(now, body, secret))
	if got := ComputeSignature(now.Unix(), body, secret); got != expected {
		t.Fatalf("expected %s, got %s", expected, got)
	}
}

func TestVerifySignature_SingleHexFlipFails(t *testing.T) {
	body := []byte(`{"id":"evt_flip"}`)
	secret := "whsec_flip"
	ts := int64(1_700_000_000)
	digest := ComputeSignature(ts, body, secret)

	for i := range digest {
		flipped := []byte(digest)
		if flipped[i] == '0' {
			flipped[i] = '1'
		} else {
			flipped[i] = '0'
		}
		header := fmt.Sprintf("t=%d,v1=%s", ts, flipped)
		ok, err := VerifySignature(body, header, secret)
		if err != nil {
			t.Fatalf("unexpected error at position %d: %v", i, err)
		}
		if ok {
			t.Fatalf("expected verification to fail with digest flipped at %d", i)
		}
	}
}

func TestVerifySignature_BodyMustBeExactBytes(t *testing.T) {
	secret := "whsec_exact"
	header := SignHeader([]byte(`{"a":1}`), secret, time.Unix(1_700_000_000, 0))
	ok, err := VerifySignature([]byte(`{"a": 1}`), header, secret)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatalf("expected re-serialized body to fail verification")
	}
}

func TestVerifySignature_AcceptsAnyMatchingV1(t *testing.T) {
	body := []byte(`{"id":"evt_rotate"}`)
	ts := int64(1_700_000_000)
	current := ComputeSignature(ts, body, "whsec_current")
	stale := ComputeSignature(ts, body, "whsec_old")
	header := fmt.Sprintf("t=%d;v1=%s;v1=%s;v0=deadbeef", ts, stale, current)

	ok, err := VerifySignature(body, header, "whsec_current")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected any matching v1 digest to verify")
	}
}

func TestVerifySignature_MalformedHeaderIsError(t *testing.T) {
	cases := []string{
		"",
		"garbage",
		"v1=abcdef",
		"t=notanumber,v1=abcdef",
		"t=1700000000",
		"t=1700000000,v0=abcdef",
	}
	for _, header := range cases {
		ok, err := VerifySignature([]byte("{}"), header, "whsec")
		if ok {
			t.Fatalf("expected malformed header %q to fail", header)
		}
		if !errors.Is(err, ErrMalformedSignatureHeader) {
			t.Fatalf("expected malformed header error for %q, got %v", header, err)
		}
	}
}

func TestVerifySignature_EmptySecretIsError(t *testing.T) {
	_, err := VerifySignature([]byte("{}"), "t=1,v1=ab", "")
	if !errors.Is(err, ErrMissingSigningSecret) {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestStripeSignatureVerifier_EnforcesTolerance(t *testing.T) {
	body := []byte(`{"id":"evt_old"}`)
	signedAt := time.Unix(1_700_000_000, 0)
	header := SignHeader(body, "whsec_tol", signedAt)

	verifier := NewStripeSignatureVerifier("whsec_tol", DefaultTolerance)
	verifier.Now = func() time.Time { return signedAt.Add(4 * time.Minute) }
	ok, err := verifier.Verify(body, header)
	if err != nil || !ok {
		t.Fatalf("expected fresh signature to verify, ok=%v err=%v", ok, err)
	}

	verifier.Now = func() time.Time { return signedAt.Add(6 * time.Minute) }
	ok, err = verifier.Verify(body, header)
	if ok {
		t.Fatalf("expected expired signature to fail")
	}
	if !errors.Is(err, ErrTimestampOutsideTolerance) {
		t.Fatalf("expected tolerance error, got %v", err)
	}

	verifier.Tolerance = 0
	ok, err = verifier.Verify(body, header)
	if err != nil || !ok {
		t.Fatalf("expected zero tolerance to skip age check, ok=%v err=%v", ok, err)
	}
}
