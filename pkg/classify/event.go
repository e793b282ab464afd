// Package classify assigns semantic meaning to decoded side-channel
// payloads. Classification is total: every payload yields exactly one
// event, with Unknown as the floor.
package classify

import "github.com/adityow/sourcedesk/pkg/decode"

type Type string

const (
	TypePricingSuggestion   Type = "pricing_suggestion"
	TypeManagerReply        Type = "manager_reply"
	TypeGeneralChatReply    Type = "general_chat_reply"
	TypeDecision            Type = "decision"
	TypeRfqData             Type = "rfq_data"
	TypeExternalVendors     Type = "external_vendors"
	TypeInternalVendorQuery Type = "internal_vendor_query"
	TypeUnknown             Type = "unknown"
)

// Event is the tagged union produced by the classifier. Exactly one
// concrete variant backs every instance.
type Event interface {
	Type() Type
}

// DecisionKind is the categorical routing label produced by the
// decision maker agent.
type DecisionKind string

const (
	DecisionDatabaseQuery   DecisionKind = "DATABASE_QUERY"
	DecisionRfqRequest      DecisionKind = "RFQ_REQUEST"
	DecisionRfpRequest      DecisionKind = "RFP_REQUEST"
	DecisionContractRequest DecisionKind = "CONTRACT_REQUEST"
	DecisionGeneralChat     DecisionKind = "GENERAL_CHAT"
)

type Decision struct {
	Decision DecisionKind
}

func (Decision) Type() Type { return TypeDecision }

type GeneralChatReply struct {
	Text string
}

func (GeneralChatReply) Type() Type { return TypeGeneralChatReply }

type ManagerReply struct {
	Text       string
	AgentsUsed []string
}

func (ManagerReply) Type() Type { return TypeManagerReply }

type InternalVendorQuery struct {
	VendorNames []string
	Categories  []string
}

func (InternalVendorQuery) Type() Type { return TypeInternalVendorQuery }

// VendorSummary is one externally sourced vendor entry, read
// defensively from schema-less payloads.
type VendorSummary struct {
	Name     string
	Category string
	Region   string
	Website  string
	Rating   float64
}

type ExternalVendors struct {
	Vendors []VendorSummary
}

func (ExternalVendors) Type() Type { return TypeExternalVendors }

// RfqFieldSet carries the structured fields of a drafted RFQ. Raw keeps
// the full payload for fields the typed view does not model.
type RfqFieldSet struct {
	RfqID              string
	ItemName           string
	Quantity           string
	RequirementSummary string
	DeliveryDate       string
	Raw                decode.Payload
}

type RfqData struct {
	Fields RfqFieldSet
}

func (RfqData) Type() Type { return TypeRfqData }

type PricingSuggestion struct {
	Price    float64
	Currency string
}

func (PricingSuggestion) Type() Type { return TypePricingSuggestion }

type Unknown struct {
	Raw decode.Payload
}

func (Unknown) Type() Type { return TypeUnknown }
