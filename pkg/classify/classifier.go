package classify

import (
	"strconv"
	"strings"

	"github.com/adityow/sourcedesk/pkg/decode"
)

// Source tags emitted by the upstream agents.
const (
	fromPriceSuggestion    = "ai_price_suggestion"
	fromProcurementManager = "customer_procurement_manager"
	fromGeneralChat        = "customer_general_chat"
	fromDecisionMaker      = "chat_decision_maker"
	fromRfqGenerator       = "rfq_input_generator"
)

// Classify runs the fixed-priority detector chain and returns the first
// match. The order is a behavioral contract: payloads can carry several
// plausible-looking fields at once, and explicit from tags outrank
// structural heuristics. Do not reorder.
func Classify(payload decode.Payload) Event {
	from := stringField(payload, "from")

	if from == fromPriceSuggestion {
		if price, ok := numberField(payload, "price"); ok {
			return PricingSuggestion{
				Price:    price,
				Currency: defaultString(stringField(payload, "currency"), "USD"),
			}
		}
	}
	if from == fromProcurementManager {
		return ManagerReply{
			Text:       replyText(payload),
			AgentsUsed: stringList(payload["agents_used"]),
		}
	}
	if from == fromGeneralChat {
		return GeneralChatReply{Text: replyText(payload)}
	}
	if from == fromDecisionMaker {
		return Decision{Decision: decisionKind(payload)}
	}
	if from == fromRfqGenerator || payload["rfq_id"] != nil {
		return RfqData{Fields: rfqFields(payload)}
	}
	if vendors, ok := vendorList(payload); ok {
		return ExternalVendors{Vendors: vendors}
	}
	names := stringList(payload["vendor_name"])
	categories := stringList(payload["category"])
	if len(names) > 0 || len(categories) > 0 {
		return InternalVendorQuery{VendorNames: names, Categories: categories}
	}
	return Unknown{Raw: payload}
}

// decisionKind normalizes the decision text: first element of a
// response array (or the scalar itself), trimmed, spaces to
// underscores, upper-cased. Empty decisions default to general chat.
func decisionKind(payload decode.Payload) DecisionKind {
	var text string
	switch v := payload["response"].(type) {
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				text = s
			}
		}
	case string:
		text = v
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return DecisionGeneralChat
	}
	text = strings.ToUpper(strings.ReplaceAll(text, " ", "_"))
	return DecisionKind(text)
}

func rfqFields(payload decode.Payload) RfqFieldSet {
	return RfqFieldSet{
		RfqID:              stringField(payload, "rfq_id"),
		ItemName:           stringField(payload, "item_name"),
		Quantity:           stringField(payload, "quantity"),
		RequirementSummary: firstStringField(payload, "requirement_summary", "requirements", "summary"),
		DeliveryDate:       stringField(payload, "delivery_date"),
		Raw:                payload,
	}
}

func vendorList(payload decode.Payload) ([]VendorSummary, bool) {
	raw, ok := payload["vendors"].([]any)
	if !ok {
		if data, isMap := payload["data"].(map[string]any); isMap {
			raw, ok = data["vendors"].([]any)
		}
	}
	if !ok {
		return nil, false
	}
	vendors := make([]VendorSummary, 0, len(raw))
	for _, item := range raw {
		entry, isMap := item.(map[string]any)
		if !isMap {
			continue
		}
		summary := VendorSummary{
			Name:     firstStringField(entry, "name", "vendor_name"),
			Category: stringField(entry, "category"),
			Region:   firstStringField(entry, "region", "location"),
			Website:  firstStringField(entry, "website", "url"),
		}
		if rating, hasRating := numberField(entry, "rating"); hasRating {
			summary.Rating = rating
		}
		vendors = append(vendors, summary)
	}
	return vendors, true
}

func replyText(payload decode.Payload) string {
	switch v := payload["response"].(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return firstStringField(payload, "message", "content")
}

func stringField(payload map[string]any, key string) string {
	if s, ok := payload[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func firstStringField(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := stringField(payload, key); s != "" {
			return s
		}
	}
	return ""
}

func numberField(payload map[string]any, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, false
		}
		if parsed, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

func stringList(value any) []string {
	switch v := value.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	case []any:
		out := make([]string, 0, len(v))
		seen := make(map[string]struct{}, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				continue
			}
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	return nil
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
