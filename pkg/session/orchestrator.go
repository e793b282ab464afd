package session

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adityow/sourcedesk/pkg/agents"
	"github.com/adityow/sourcedesk/pkg/classify"
	"github.com/adityow/sourcedesk/pkg/errorsx"
	"github.com/adityow/sourcedesk/pkg/frames"
	"github.com/adityow/sourcedesk/pkg/metrics"
	"github.com/adityow/sourcedesk/pkg/redact"
)

const apologyText = "Sorry, something went wrong while processing your request. Please try again."

// Orchestrator owns one conversation's state. It is reentrant per
// session; concurrent sessions share nothing. All transitions take the
// state lock, and the pricing single-flight flag is checked and cleared
// inside the same critical section that decides to dispatch.
type Orchestrator struct {
	sessionID string
	log       *slog.Logger
	obs       metrics.Observer
	vendors   VendorLookup
	pricing   PricingClient
	hooks     Hooks

	mu    sync.Mutex
	state State

	calls sync.WaitGroup
}

type Options struct {
	SessionID string
	Logger    *slog.Logger
	Observer  metrics.Observer
	Vendors   VendorLookup
	Pricing   PricingClient
	Hooks     Hooks
}

func NewOrchestrator(opts Options) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	var obs metrics.Observer = metrics.NoopObserver{}
	if opts.Observer != nil {
		obs = opts.Observer
	}
	return &Orchestrator{
		sessionID: opts.SessionID,
		log:       log.With(slog.String("session_id", opts.SessionID)),
		obs:       obs,
		vendors:   opts.Vendors,
		pricing:   opts.Pricing,
		hooks:     opts.Hooks,
		state: State{
			RequestTypeCounters: make(map[classify.DecisionKind]int),
		},
	}
}

// Snapshot returns a copy of the current state for rendering.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.state
	s.Messages = append([]Message(nil), o.state.Messages...)
	s.Agent.ExecutedAgents = append([]ExecutedAgent(nil), o.state.Agent.ExecutedAgents...)
	s.InternalVendors = append([]VendorRecord(nil), o.state.InternalVendors...)
	s.ExternalVendors = append([]classify.VendorSummary(nil), o.state.ExternalVendors...)
	counters := make(map[classify.DecisionKind]int, len(o.state.RequestTypeCounters))
	for k, v := range o.state.RequestTypeCounters {
		counters[k] = v
	}
	s.RequestTypeCounters = counters
	return s
}

// BeginTurn records the user's message and marks the turn loading.
func (o *Orchestrator) BeginTurn(text string) {
	o.mu.Lock()
	o.state.IsLoading = true
	o.appendLocked(Message{Role: RoleUser, Text: text})
	o.mu.Unlock()
	o.record("turn_started", nil)
}

// CompleteTurn is the authoritative "turn is over" signal, independent
// of streaming frames: loading clears and agent status resets even if
// the stream lagged or dropped frames.
func (o *Orchestrator) CompleteTurn() {
	o.mu.Lock()
	o.state.IsLoading = false
	o.state.Agent = AgentStatus{}
	o.mu.Unlock()
	o.record("turn_completed", nil)
}

// FailTurn surfaces a turn call failure to the user and resets the
// loading and agent state.
func (o *Orchestrator) FailTurn(err error) {
	o.mu.Lock()
	o.appendLocked(Message{Role: RoleAssistant, Text: apologyText, Err: true})
	o.state.IsLoading = false
	o.state.Agent = AgentStatus{}
	o.mu.Unlock()
	o.log.Warn("turn_failed",
		"reason_code", string(errorsx.Reason(err)),
		"error", err.Error(),
	)
}

// HandleFrame applies agent-execution bookkeeping from a lifecycle
// frame. Tool output payload handling happens separately via
// HandleEvent once the frame is decoded and classified.
func (o *Orchestrator) HandleFrame(f frames.Frame) {
	switch f.Kind {
	case frames.KindAgentStart:
		identity := agents.Resolve(agentName(f))
		o.mu.Lock()
		o.state.Agent.CurrentAgent = identity.LogicalName
		o.state.Agent.IsExecuting = true
		o.mu.Unlock()
	case frames.KindToolOutput:
		o.appendExecuted(f, false)
	case frames.KindAgentEnd:
		// tool_output is the authoritative completion record; agent_end
		// backfills agents that produced no output frame, so the usual
		// output+end pair for one unit of work counts once.
		o.appendExecuted(f, true)
	}
}

func (o *Orchestrator) appendExecuted(f frames.Frame, skipIfLast bool) {
	identity := agents.Resolve(agentName(f))
	ts := f.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	// A following agent may already have started before this frame was
	// observed, so executing state is not cleared here; only a new
	// agent_start or the turn call's completion advances it.
	executed := o.state.Agent.ExecutedAgents
	if skipIfLast && len(executed) > 0 && executed[len(executed)-1].Name == identity.LogicalName {
		return
	}
	o.state.Agent.ExecutedAgents = append(executed, ExecutedAgent{
		Name:      identity.LogicalName,
		Duration:  f.ExecutionTime,
		Timestamp: ts,
	})
}

// HandleEvent applies one classified event to the session state.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev classify.Event) {
	switch e := ev.(type) {
	case classify.Decision:
		o.applyDecision(e)
	case classify.GeneralChatReply:
		o.appendReply(e.Text, nil)
	case classify.ManagerReply:
		o.appendReply(e.Text, e.AgentsUsed)
	case classify.InternalVendorQuery:
		o.applyVendorQuery(ctx, e)
	case classify.ExternalVendors:
		o.applyExternalVendors(e)
	case classify.RfqData:
		o.applyRfqData(ctx, e)
	case classify.PricingSuggestion:
		o.storePricing(e)
	case classify.Unknown:
		o.record("classify_fallthrough", map[string]string{"keys": payloadKeys(e)})
		o.log.Warn("unclassified_payload", "reason_code", string(errorsx.ReasonClassifyFallthrough))
	}
}

// Wait blocks until in-flight dependent calls have finished. Used on
// session teardown and in tests.
func (o *Orchestrator) Wait() {
	o.calls.Wait()
}

func (o *Orchestrator) applyDecision(e classify.Decision) {
	o.mu.Lock()
	o.state.ConversationType = e.Decision
	o.state.RequestTypeCounters[e.Decision]++
	occurrence := o.state.RequestTypeCounters[e.Decision]
	if e.Decision == classify.DecisionRfqRequest {
		o.state.PendingPricingTrigger = true
	}
	o.appendLocked(Message{
		Role:    RoleAssistant,
		Text:    phraseFor(e.Decision, occurrence),
		Action:  e.Decision,
		Loading: true,
	})
	o.requestSurfaceLocked(surfaceFor(e.Decision))
	o.mu.Unlock()
	o.record("decision", map[string]string{"decision": string(e.Decision)})
}

func (o *Orchestrator) appendReply(text string, agentsUsed []string) {
	o.mu.Lock()
	o.appendLocked(Message{Role: RoleAssistant, Text: text, AgentsUsed: agentsUsed})
	o.mu.Unlock()
	o.log.Debug("assistant_reply", "text", redact.Text(text))
}

func (o *Orchestrator) applyVendorQuery(ctx context.Context, e classify.InternalVendorQuery) {
	if o.vendors == nil {
		return
	}
	records, err := o.vendors.Query(ctx, e.VendorNames, e.Categories)
	if err != nil {
		o.log.Warn("vendor_query_failed",
			"reason_code", string(errorsx.ReasonVendorQuery),
			"error", err.Error(),
		)
		return
	}
	o.mu.Lock()
	o.state.InternalVendors = records
	o.completeActionLocked(classify.DecisionDatabaseQuery)
	o.mu.Unlock()
	o.record("vendor_query", map[string]string{"matches": strconv.Itoa(len(records))})
}

func (o *Orchestrator) applyExternalVendors(e classify.ExternalVendors) {
	o.mu.Lock()
	o.state.ExternalVendors = e.Vendors
	o.requestSurfaceLocked(SurfaceVendorTable)
	o.completeActionLocked(classify.DecisionDatabaseQuery)
	o.mu.Unlock()
}

// applyRfqData stores the drafted RFQ and owns the pricing
// single-flight: the pending flag is tested and cleared in one critical
// section before the dependent call is dispatched, so a second RfqData
// racing in can never observe a stale "still pending" flag, and a
// failed call can never leave the flag dangling.
func (o *Orchestrator) applyRfqData(ctx context.Context, e classify.RfqData) {
	trigger := false
	o.mu.Lock()
	o.state.Rfq = e.Fields
	o.completeActionLocked(classify.DecisionRfqRequest)
	if o.state.PendingPricingTrigger && strings.TrimSpace(e.Fields.RequirementSummary) != "" {
		o.state.PendingPricingTrigger = false
		trigger = true
	}
	o.mu.Unlock()

	if !trigger || o.pricing == nil {
		return
	}
	o.record("pricing_triggered", map[string]string{"rfq_id": e.Fields.RfqID})
	o.calls.Add(1)
	go func() {
		defer o.calls.Done()
		suggestion, err := o.pricing.SuggestPrice(ctx, e.Fields)
		if err != nil {
			// Absorbed: pricing enhances the RFQ, it never blocks it.
			o.log.Warn("pricing_call_failed",
				"reason_code", string(errorsx.ReasonPricingCall),
				"error", err.Error(),
			)
			return
		}
		o.storePricing(suggestion)
	}()
}

func (o *Orchestrator) storePricing(e classify.PricingSuggestion) {
	o.mu.Lock()
	s := e
	o.state.Pricing = &s
	o.mu.Unlock()
	o.record("pricing_stored", map[string]string{"currency": e.Currency})
}

// StoreDocument records generated document text (RFQ/RFP/contract).
func (o *Orchestrator) StoreDocument(text string) {
	o.mu.Lock()
	o.state.GeneratedDocument = text
	o.mu.Unlock()
}

func (o *Orchestrator) appendLocked(m Message) {
	m.ID = uuid.NewString()
	m.CreatedAt = time.Now()
	o.state.Messages = append(o.state.Messages, m)
	if o.hooks.OnMessage != nil {
		o.hooks.OnMessage(m)
	}
}

// requestSurfaceLocked is idempotent: asking for the surface that is
// already showing must not re-trigger the panel.
func (o *Orchestrator) requestSurfaceLocked(s Surface) {
	if s == SurfaceNone || o.state.Surface == s {
		return
	}
	o.state.Surface = s
	if o.hooks.OnSurface != nil {
		o.hooks.OnSurface(s)
	}
}

// completeActionLocked marks the most recent incomplete action message
// of the given kind complete.
func (o *Orchestrator) completeActionLocked(kind classify.DecisionKind) {
	for i := len(o.state.Messages) - 1; i >= 0; i-- {
		m := &o.state.Messages[i]
		if m.Action == kind && !m.Complete {
			m.Complete = true
			m.Loading = false
			return
		}
	}
}

func (o *Orchestrator) record(name string, tags map[string]string) {
	if tags == nil {
		tags = map[string]string{}
	}
	tags[frames.MetaSessionID] = o.sessionID
	o.obs.RecordEvent(metrics.MetricsEvent{Name: name, Time: time.Now(), Tags: tags})
}

func surfaceFor(kind classify.DecisionKind) Surface {
	switch kind {
	case classify.DecisionDatabaseQuery:
		return SurfaceVendorTable
	case classify.DecisionRfqRequest:
		return SurfaceRfqForm
	case classify.DecisionRfpRequest:
		return SurfaceRfpForm
	case classify.DecisionContractRequest:
		return SurfaceContractForm
	default:
		return SurfaceNone
	}
}

func agentName(f frames.Frame) string {
	if f.ToolName != "" {
		return f.ToolName
	}
	return f.AgentName
}

func payloadKeys(e classify.Unknown) string {
	keys := make([]string, 0, len(e.Raw))
	for k := range e.Raw {
		keys = append(keys, k)
	}
	return strings.Join(keys, ",")
}
