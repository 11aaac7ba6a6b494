package gateway_test

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
	"github.com/vladislavdragonenkov/settlement/internal/gateway"
)

func newVerifier() *gateway.Verifier {
	return gateway.NewVerifier(map[string]string{
		"midpay":     "midpay-secret",
		"Stripeline": "stripeline-secret",
	})
}

func TestVerifier_RoundTrip(t *testing.T) {
	verifier := newVerifier()
	body := []byte(`{"transaction_id":"txn-1","status":"success"}`)

	signature, err := verifier.Sign("midpay", body)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if err := verifier.Verify("midpay", body, signature); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
}

func TestVerifier_ProviderCaseInsensitive(t *testing.T) {
	verifier := newVerifier()
	body := []byte(`{}`)

	signature, err := verifier.Sign("stripeline", body)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if err := verifier.Verify("STRIPELINE", body, signature); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
}

func TestVerifier_AcceptsSha256Prefix(t *testing.T) {
	verifier := newVerifier()
	body := []byte(`{"transaction_id":"txn-2"}`)

	signature, err := verifier.Sign("midpay", body)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if err := verifier.Verify("midpay", body, "sha256="+signature); err != nil {
		t.Fatalf("verify with prefix failed: %v", err)
	}
}

func TestVerifier_RejectsTamperedBody(t *testing.T) {
	verifier := newVerifier()
	body := []byte(`{"amount":100}`)

	signature, err := verifier.Sign("midpay", body)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	err = verifier.Verify("midpay", []byte(`{"amount":999}`), signature)
	if !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestVerifier_RejectsGarbageSignature(t *testing.T) {
	verifier := newVerifier()

	err := verifier.Verify("midpay", []byte(`{}`), "not-hex-at-all")
	if !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestVerifier_FailsClosedWithoutSecret(t *testing.T) {
	verifier := newVerifier()

	err := verifier.Verify("unknownpay", []byte(`{}`), "deadbeef")
	if !errors.Is(err, domain.ErrSecretNotConfigured) {
		t.Fatalf("expected ErrSecretNotConfigured, got %v", err)
	}

	if _, err := verifier.Sign("unknownpay", []byte(`{}`)); !errors.Is(err, domain.ErrSecretNotConfigured) {
		t.Fatalf("expected ErrSecretNotConfigured from Sign, got %v", err)
	}
}
