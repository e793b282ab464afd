package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adityow/sourcedesk/pkg/classify"
	"github.com/adityow/sourcedesk/pkg/errorsx"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL
	return New(cfg, nil, WithSleep(func(time.Duration) {}))
}

func TestSendTurnDecodesEnvelope(t *testing.T) {
	var seen turnRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != executePath {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&seen); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"response": `{"from": "customer_general_chat", "message": "Happy to help with sourcing."}`,
		})
	}, Config{UserID: "u-1"})

	payload, err := client.SendTurn(context.Background(), "sess-1", "hello")
	if err != nil {
		t.Fatalf("send turn: %v", err)
	}
	if payload["from"] != "customer_general_chat" {
		t.Fatalf("payload = %v", payload)
	}
	if seen.SessionID != "sess-1" || seen.UserID != "u-1" {
		t.Fatalf("request envelope = %+v", seen)
	}
	if seen.Message.Action != "execute" || seen.Message.RequestID == "" {
		t.Fatalf("inner message = %+v", seen.Message)
	}
	if seen.AgentID != "customer_procurement_manager" {
		t.Fatalf("agent id = %s", seen.AgentID)
	}
}

func TestSendTurnRetriesOnServerError(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"response": `{"message": "recovered"}`})
	}, Config{MaxRetries: 3})

	payload, err := client.SendTurn(context.Background(), "sess-1", "hello")
	if err != nil {
		t.Fatalf("send turn: %v", err)
	}
	if payload["message"] != "recovered" {
		t.Fatalf("payload = %v", payload)
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("server hits = %d, want 3", got)
	}
}

func TestSendTurnDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}, Config{MaxRetries: 3})

	_, err := client.SendTurn(context.Background(), "sess-1", "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errorsx.HasReason(err, errorsx.ReasonTurnCall) {
		t.Fatalf("reason = %s", errorsx.Reason(err))
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("server hits = %d, want 1", got)
	}
}

func TestSuggestPrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req turnRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.AgentID != "ai_price_suggestion" {
			t.Fatalf("agent id = %s", req.AgentID)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"response": `{"from": "ai_price_suggestion", "price": "1250.50", "currency": "EUR"}`,
		})
	}, Config{})

	pricing := client.PricingFor("sess-1")
	got, err := pricing.SuggestPrice(context.Background(), classify.RfqFieldSet{RfqID: "RFQ-1"})
	if err != nil {
		t.Fatalf("suggest price: %v", err)
	}
	if got.Price != 1250.50 || got.Currency != "EUR" {
		t.Fatalf("suggestion = %+v", got)
	}
}

func TestPricingCircuitOpensOnRateLimits(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}, Config{BreakerThreshold: 3, BreakerCooldown: time.Minute})

	pricing := client.PricingFor("sess-1")
	for i := 0; i < 3; i++ {
		if _, err := pricing.SuggestPrice(context.Background(), classify.RfqFieldSet{}); err == nil {
			t.Fatalf("call %d should fail", i+1)
		}
	}
	// Breaker is open now; the backend must not be hit again.
	_, err := pricing.SuggestPrice(context.Background(), classify.RfqFieldSet{})
	if !errorsx.HasReason(err, errorsx.ReasonPricingCircuitOpen) {
		t.Fatalf("reason = %s", errorsx.Reason(err))
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("server hits = %d, want 3", got)
	}
}

func TestGenerateRFQDocument(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req turnRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.AgentID != "rfq_document_generator" {
			t.Fatalf("agent id = %s", req.AgentID)
		}
		var fields classify.RfqFieldSet
		if err := json.Unmarshal([]byte(req.Message.Message), &fields); err != nil {
			t.Fatalf("inner message: %v", err)
		}
		if fields.ItemName != "Steel Pipes" {
			t.Fatalf("fields = %+v", fields)
		}
		// Document bodies come back with raw newlines inside content,
		// which only the positional decoder stage survives.
		w.Write([]byte("{\"response\": \"{\\\"from\\\": \\\"rfq_document_generator\\\", " +
			"\\\"content\\\": \\\"REQUEST FOR QUOTATION\\nItem: Steel Pipes\\\", " +
			"\\\"message\\\": \\\"RFQ document generated\\\"}\"}"))
	}, Config{})

	doc, err := client.GenerateRFQDocument(context.Background(), "sess-1", classify.RfqFieldSet{
		RfqID:    "RFQ-1",
		ItemName: "Steel Pipes",
	})
	if err != nil {
		t.Fatalf("generate document: %v", err)
	}
	if doc != "REQUEST FOR QUOTATION\nItem: Steel Pipes" {
		t.Fatalf("document = %q", doc)
	}
}

func TestAnalyzeVendors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"response": `{"from": "vendor_analysis", "message": "Acme offers the best lead time."}`,
		})
	}, Config{})

	summary, err := client.AnalyzeVendors(context.Background(), "sess-1", []classify.VendorSummary{
		{Name: "Acme", Category: "metals"},
	})
	if err != nil {
		t.Fatalf("analyze vendors: %v", err)
	}
	if summary != "Acme offers the best lead time." {
		t.Fatalf("summary = %q", summary)
	}
}
