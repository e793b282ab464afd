package agents

import "testing"

func TestResolveKnownIdentifiers(t *testing.T) {
	cases := []struct {
		toolName string
		want     string
	}{
		{"chat_decision_maker", "Decision Maker"},
		{"Chat_Decision_Maker_v2", "Decision Maker"},
		{"internal_vendor_fetch", "Internal Vendor Agent"},
		{"external_vendor_fetch_tool", "External Vendor Agent"},
		{"rfq_input_generator", "RFQ Generator"},
		{"customer_general_chat", "General Chat Agent"},
		{"customer_procurement_manager", "Procurement Manager"},
		{"ai_price_suggestion", "Price Suggestion Agent"},
	}
	for _, tc := range cases {
		if got := Resolve(tc.toolName); got.LogicalName != tc.want {
			t.Fatalf("Resolve(%q) = %q, want %q", tc.toolName, got.LogicalName, tc.want)
		}
	}
}

func TestResolveAgentShapedFallback(t *testing.T) {
	got := Resolve("mystery_summary_agent")
	if got.LogicalName != "Processing Agent" {
		t.Fatalf("expected Processing Agent, got %q", got.LogicalName)
	}
}

func TestResolveGenericFallback(t *testing.T) {
	for _, name := range []string{"", "totally_unrelated"} {
		if got := Resolve(name); got.LogicalName != "AI Agent" {
			t.Fatalf("Resolve(%q) = %q, want AI Agent", name, got.LogicalName)
		}
	}
}
