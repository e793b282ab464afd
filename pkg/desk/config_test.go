package desk

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adityow/sourcedesk/pkg/errorsx"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "desk.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Stream.MaxReconnects != 5 {
		t.Fatalf("max reconnects = %d", cfg.Stream.MaxReconnects)
	}
	if cfg.Stream.ReconnectBase != 2*time.Second {
		t.Fatalf("reconnect base = %v", cfg.Stream.ReconnectBase)
	}
	if cfg.Gateway.MaxRetries != 2 {
		t.Fatalf("gateway retries = %d", cfg.Gateway.MaxRetries)
	}
	if cfg.DrainTimeout != 10*time.Second {
		t.Fatalf("drain timeout = %v", cfg.DrainTimeout)
	}
}

func TestLoadConfigAgentsBlock(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
stream:
  url: ws://agents.internal/ws/sessions
  reconnect_base: 1s
gateway:
  base_url: http://agents.internal
agents:
  turn: customer_procurement_manager
  PRICING: ai_price_suggestion
  rfq-doc: rfq_document_generator
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// Keys are case/underscore/hyphen insensitive.
	if cfg.Gateway.PricingAgentID != "ai_price_suggestion" {
		t.Fatalf("pricing agent = %s", cfg.Gateway.PricingAgentID)
	}
	if cfg.Gateway.RfqDocAgentID != "rfq_document_generator" {
		t.Fatalf("rfq doc agent = %s", cfg.Gateway.RfqDocAgentID)
	}
	if cfg.Stream.ReconnectBase != time.Second {
		t.Fatalf("reconnect base = %v", cfg.Stream.ReconnectBase)
	}
}

func TestLoadConfigRejectsUnknownAgentKey(t *testing.T) {
	path := writeConfig(t, `
agents:
  turn: customer_procurement_manager
  telephony: not_a_thing
`)
	_, err := LoadConfig(path)
	if !errorsx.HasReason(err, errorsx.ReasonConfigInvalid) {
		t.Fatalf("reason = %s", errorsx.Reason(err))
	}
}

func TestLoadConfigRejectsMissingTurnAgent(t *testing.T) {
	path := writeConfig(t, `
agents:
  pricing: ai_price_suggestion
`)
	_, err := LoadConfig(path)
	if !errorsx.HasReason(err, errorsx.ReasonConfigInvalid) {
		t.Fatalf("reason = %s", errorsx.Reason(err))
	}
}
