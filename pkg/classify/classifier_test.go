package classify

import (
	"reflect"
	"testing"

	"github.com/adityow/sourcedesk/pkg/decode"
)

func TestPricingOutranksStructuralFields(t *testing.T) {
	ev := Classify(decode.Payload{
		"from":     "ai_price_suggestion",
		"price":    2500.0,
		"currency": "EUR",
		"vendors":  []any{map[string]any{"name": "Acme"}},
	})
	ps, ok := ev.(PricingSuggestion)
	if !ok {
		t.Fatalf("expected PricingSuggestion, got %T", ev)
	}
	if ps.Price != 2500.0 || ps.Currency != "EUR" {
		t.Fatalf("unexpected pricing: %+v", ps)
	}
}

func TestGeneralChatWinsOverIncidentalPrice(t *testing.T) {
	ev := Classify(decode.Payload{
		"from":     "customer_general_chat",
		"price":    99.0,
		"response": "happy to help",
	})
	reply, ok := ev.(GeneralChatReply)
	if !ok {
		t.Fatalf("expected GeneralChatReply, got %T", ev)
	}
	if reply.Text != "happy to help" {
		t.Fatalf("unexpected text %q", reply.Text)
	}
}

func TestManagerReplyCarriesAgentsUsed(t *testing.T) {
	ev := Classify(decode.Payload{
		"from":        "customer_procurement_manager",
		"response":    "summary of work",
		"agents_used": []any{"rfq_input_generator", "internal_vendor_fetch", "rfq_input_generator"},
	})
	reply, ok := ev.(ManagerReply)
	if !ok {
		t.Fatalf("expected ManagerReply, got %T", ev)
	}
	want := []string{"rfq_input_generator", "internal_vendor_fetch"}
	if !reflect.DeepEqual(reply.AgentsUsed, want) {
		t.Fatalf("agents used = %v, want %v", reply.AgentsUsed, want)
	}
}

func TestDecisionNormalization(t *testing.T) {
	cases := []struct {
		response any
		want     DecisionKind
	}{
		{[]any{"DATABASE QUERY"}, DecisionDatabaseQuery},
		{[]any{"rfq request"}, DecisionRfqRequest},
		{"Contract Request", DecisionContractRequest},
		{[]any{"  "}, DecisionGeneralChat},
		{nil, DecisionGeneralChat},
	}
	for _, tc := range cases {
		ev := Classify(decode.Payload{"from": "chat_decision_maker", "response": tc.response})
		d, ok := ev.(Decision)
		if !ok {
			t.Fatalf("expected Decision, got %T", ev)
		}
		if d.Decision != tc.want {
			t.Fatalf("decision for %v = %s, want %s", tc.response, d.Decision, tc.want)
		}
	}
}

func TestRfqDataByFromTagOrRfqID(t *testing.T) {
	byTag := Classify(decode.Payload{
		"from":                "rfq_input_generator",
		"item_name":           "Steel Pipes",
		"requirement_summary": "400 units, grade 304",
	})
	rfq, ok := byTag.(RfqData)
	if !ok {
		t.Fatalf("expected RfqData, got %T", byTag)
	}
	if rfq.Fields.ItemName != "Steel Pipes" || rfq.Fields.RequirementSummary == "" {
		t.Fatalf("unexpected fields: %+v", rfq.Fields)
	}

	byID := Classify(decode.Payload{"rfq_id": "RFQ-1042", "quantity": "400"})
	rfq2, ok := byID.(RfqData)
	if !ok {
		t.Fatalf("expected RfqData, got %T", byID)
	}
	if rfq2.Fields.RfqID != "RFQ-1042" {
		t.Fatalf("unexpected rfq id %q", rfq2.Fields.RfqID)
	}
}

func TestExternalVendorsTopLevelAndNested(t *testing.T) {
	top := Classify(decode.Payload{"vendors": []any{
		map[string]any{"name": "Acme Metals", "category": "metals", "rating": 4.5},
	}})
	ev, ok := top.(ExternalVendors)
	if !ok {
		t.Fatalf("expected ExternalVendors, got %T", top)
	}
	if len(ev.Vendors) != 1 || ev.Vendors[0].Name != "Acme Metals" || ev.Vendors[0].Rating != 4.5 {
		t.Fatalf("unexpected vendors: %+v", ev.Vendors)
	}

	nested := Classify(decode.Payload{"data": map[string]any{"vendors": []any{
		map[string]any{"vendor_name": "Borealis", "location": "EU"},
	}}})
	ev2, ok := nested.(ExternalVendors)
	if !ok {
		t.Fatalf("expected ExternalVendors, got %T", nested)
	}
	if len(ev2.Vendors) != 1 || ev2.Vendors[0].Name != "Borealis" || ev2.Vendors[0].Region != "EU" {
		t.Fatalf("unexpected vendors: %+v", ev2.Vendors)
	}
}

func TestInternalVendorQueryFields(t *testing.T) {
	ev := Classify(decode.Payload{
		"vendor_name": []any{"Acme", "Borealis"},
		"category":    "metals",
	})
	q, ok := ev.(InternalVendorQuery)
	if !ok {
		t.Fatalf("expected InternalVendorQuery, got %T", ev)
	}
	if len(q.VendorNames) != 2 || len(q.Categories) != 1 {
		t.Fatalf("unexpected query: %+v", q)
	}
}

func TestUnknownFallback(t *testing.T) {
	payload := decode.Payload{"something": "else"}
	ev := Classify(payload)
	u, ok := ev.(Unknown)
	if !ok {
		t.Fatalf("expected Unknown, got %T", ev)
	}
	if u.Raw["something"] != "else" {
		t.Fatalf("raw payload not preserved")
	}
}
