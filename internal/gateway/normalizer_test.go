package gateway_test

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
	"github.com/vladislavdragonenkov/settlement/internal/gateway"
)

func TestNormalizer_Midpay(t *testing.T) {
	normalizer := gateway.NewNormalizer()

	cases := []struct {
		status  string
		outcome domain.EventOutcome
	}{
		{"success", domain.EventOutcomeSuccess},
		{"completed", domain.EventOutcomeSuccess},
		{"failure", domain.EventOutcomeFailed},
		{"failed", domain.EventOutcomeFailed},
		{"declined", domain.EventOutcomeFailed},
		{"expired", domain.EventOutcomeFailed},
	}

	for _, tc := range cases {
		t.Run(tc.status, func(t *testing.T) {
			body := []byte(`{"transaction_id":"txn-1","gateway_txn_id":"mp-100","status":"` + tc.status + `","amount":55000,"currency":"usd","failure_reason":"card declined"}`)

			event, err := normalizer.Normalize("midpay", body)
			if err != nil {
				t.Fatalf("normalize failed: %v", err)
			}
			if event.Provider != "midpay" {
				t.Errorf("expected provider midpay, got %s", event.Provider)
			}
			if event.TransactionID != "txn-1" {
				t.Errorf("expected transaction txn-1, got %s", event.TransactionID)
			}
			if event.GatewayTransactionID != "mp-100" {
				t.Errorf("expected gateway txn mp-100, got %s", event.GatewayTransactionID)
			}
			if event.Outcome != tc.outcome {
				t.Errorf("expected outcome %s, got %s", tc.outcome, event.Outcome)
			}
			if event.AmountMinor != 55000 {
				t.Errorf("expected amount 55000, got %d", event.AmountMinor)
			}
			if event.Currency != "USD" {
				t.Errorf("expected currency USD, got %s", event.Currency)
			}
			if len(event.RawPayload) == 0 {
				t.Error("raw payload must be preserved")
			}
		})
	}
}

func TestNormalizer_Stripeline(t *testing.T) {
	normalizer := gateway.NewNormalizer()
	body := []byte(`{"type":"charge.succeeded","data":{"object":{"id":"ch-200","reference":"txn-2","amount":10000,"currency":"eur"}}}`)

	event, err := normalizer.Normalize("stripeline", body)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if event.TransactionID != "txn-2" {
		t.Errorf("expected transaction txn-2, got %s", event.TransactionID)
	}
	if event.GatewayTransactionID != "ch-200" {
		t.Errorf("expected gateway txn ch-200, got %s", event.GatewayTransactionID)
	}
	if event.Outcome != domain.EventOutcomeSuccess {
		t.Errorf("expected success outcome, got %s", event.Outcome)
	}
	if event.Currency != "EUR" {
		t.Errorf("expected currency EUR, got %s", event.Currency)
	}
}

func TestNormalizer_StripelineFailure(t *testing.T) {
	normalizer := gateway.NewNormalizer()
	body := []byte(`{"type":"charge.failed","data":{"object":{"id":"ch-201","reference":"txn-3","amount":10000,"currency":"usd","failure_message":"insufficient funds"}}}`)

	event, err := normalizer.Normalize("stripeline", body)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if event.Outcome != domain.EventOutcomeFailed {
		t.Errorf("expected failed outcome, got %s", event.Outcome)
	}
	if event.FailureReason != "insufficient funds" {
		t.Errorf("expected failure reason, got %q", event.FailureReason)
	}
}

func TestNormalizer_UnknownProvider(t *testing.T) {
	normalizer := gateway.NewNormalizer()

	_, err := normalizer.Normalize("paypal", []byte(`{}`))
	if !errors.Is(err, domain.ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	if normalizer.Known("paypal") {
		t.Error("paypal must not be known")
	}
	if !normalizer.Known("MIDPAY") {
		t.Error("provider lookup must be case insensitive")
	}
}

func TestNormalizer_Malformed(t *testing.T) {
	normalizer := gateway.NewNormalizer()

	cases := []struct {
		name     string
		provider string
		body     string
	}{
		{"broken json", "midpay", `{"transaction_id":`},
		{"unexpected status", "midpay", `{"transaction_id":"txn-1","status":"maybe"}`},
		{"unexpected event type", "stripeline", `{"type":"invoice.created","data":{"object":{"reference":"txn-1"}}}`},
		{"missing reference", "midpay", `{"status":"success"}`},
		{"missing reference nested", "stripeline", `{"type":"charge.succeeded","data":{"object":{"id":"ch-1"}}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := normalizer.Normalize(tc.provider, []byte(tc.body))
			if !errors.Is(err, domain.ErrPayloadMalformed) {
				t.Fatalf("expected ErrPayloadMalformed, got %v", err)
			}
		})
	}
}
