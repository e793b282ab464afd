// Package session drives the per-conversation state machine. It is the
// only component with session-mutating authority; decoder, classifier
// and resolver are pure functions feeding it.
package session

import (
	"context"
	"time"

	"github.com/adityow/sourcedesk/pkg/classify"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the ordered, UI-facing conversation log.
// Action messages carry the decision kind that spawned them and flip
// Complete when their results arrive.
type Message struct {
	ID         string
	Role       Role
	Text       string
	Action     classify.DecisionKind
	Loading    bool
	Complete   bool
	Err        bool
	AgentsUsed []string
	CreatedAt  time.Time
}

// ExecutedAgent records one finished unit of agent work.
type ExecutedAgent struct {
	Name      string
	Duration  float64
	Timestamp time.Time
}

// AgentStatus tracks what the stream reported about agent execution
// during the current turn.
type AgentStatus struct {
	CurrentAgent   string
	IsExecuting    bool
	ExecutedAgents []ExecutedAgent
}

// Surface names the UI panel a decision asks for.
type Surface string

const (
	SurfaceNone         Surface = ""
	SurfaceVendorTable  Surface = "vendor_table"
	SurfaceRfqForm      Surface = "rfq_form"
	SurfaceRfpForm      Surface = "rfp_form"
	SurfaceContractForm Surface = "contract_form"
)

// VendorRecord is one internal vendor database row as the session sees
// it; the storage layer adapts its own type into this one.
type VendorRecord struct {
	ID       int64
	Name     string
	Category string
	Region   string
	Rating   float64
}

// VendorLookup is the internal vendor database collaborator.
type VendorLookup interface {
	Query(ctx context.Context, names, categories []string) ([]VendorRecord, error)
}

// PricingClient is the dependent pricing-suggestion collaborator.
// Failures are absorbed by the orchestrator; pricing is an enhancement,
// not a required step of RFQ creation.
type PricingClient interface {
	SuggestPrice(ctx context.Context, fields classify.RfqFieldSet) (classify.PricingSuggestion, error)
}

// Hooks let the rendering layer observe surface changes and new
// messages without the orchestrator knowing anything about rendering.
type Hooks struct {
	OnSurface func(Surface)
	OnMessage func(Message)
}

// State is the composite per-conversation state. Mutated only by the
// orchestrator's transition methods.
type State struct {
	ConversationType      classify.DecisionKind
	Agent                 AgentStatus
	IsLoading             bool
	PendingPricingTrigger bool
	RequestTypeCounters   map[classify.DecisionKind]int
	Surface               Surface
	Messages              []Message
	InternalVendors       []VendorRecord
	ExternalVendors       []classify.VendorSummary
	Rfq                   classify.RfqFieldSet
	Pricing               *classify.PricingSuggestion
	GeneratedDocument     string
}
