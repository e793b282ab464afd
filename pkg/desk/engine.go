package desk

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/adityow/sourcedesk/pkg/classify"
	"github.com/adityow/sourcedesk/pkg/decode"
	"github.com/adityow/sourcedesk/pkg/errorsx"
	"github.com/adityow/sourcedesk/pkg/frames"
	"github.com/adityow/sourcedesk/pkg/gateway"
	"github.com/adityow/sourcedesk/pkg/metrics"
	"github.com/adityow/sourcedesk/pkg/observers"
	"github.com/adityow/sourcedesk/pkg/redact"
	"github.com/adityow/sourcedesk/pkg/runner"
	"github.com/adityow/sourcedesk/pkg/session"
	"github.com/adityow/sourcedesk/pkg/transports"
	"github.com/adityow/sourcedesk/pkg/transports/agentwire"
	"github.com/adityow/sourcedesk/pkg/vendors"
)

// StreamFactory builds the stream client for one session. Injectable
// for tests.
type StreamFactory func(sessionID string) transports.StreamClient

// Engine is the mediation core: it owns the gateway client, the vendor
// store, the observer chain and one orchestrator + stream client pair
// per open session.
type Engine struct {
	cfg      Config
	log      *slog.Logger
	obs      metrics.Observer
	async    *metrics.AsyncObserver
	timeline *observers.TimelineObserver
	gw          *gateway.Client
	store       *vendors.Store
	registry    *Registry
	streams     StreamFactory
	metricsFile *os.File
}

type EngineOption func(*Engine)

// WithStreamFactory replaces the per-session stream client factory.
func WithStreamFactory(f StreamFactory) EngineOption {
	return func(e *Engine) { e.streams = f }
}

// WithObserver appends an extra observer to the engine chain.
func WithObserver(obs metrics.Observer) EngineOption {
	return func(e *Engine) {
		e.obs = observers.NewMultiObserver(e.obs, obs)
	}
}

func New(cfg Config, log *slog.Logger, opts ...EngineOption) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	redact.SetEnabled(cfg.Redact)

	e := &Engine{
		cfg:      cfg,
		log:      log.With(slog.String("component", "engine")),
		gw:       gateway.New(cfg.Gateway, log),
		registry: NewRegistry(),
	}

	chain := []metrics.Observer{
		observers.NewLoggerObserver(log),
		observers.NewTurnLatencyObserver(log),
	}
	if strings.TrimSpace(cfg.TimelineDir) != "" {
		e.timeline = observers.NewTimelineObserver(cfg.TimelineDir)
		chain = append(chain, e.timeline)
	}
	if strings.TrimSpace(cfg.MetricsJSONLPath) != "" {
		f, err := os.OpenFile(cfg.MetricsJSONLPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
		}
		e.metricsFile = f
		chain = append(chain, metrics.NewJSONLObserver(f))
	}
	e.async = metrics.NewAsyncObserver(observers.NewMultiObserver(chain...), 1024)
	e.obs = e.async

	if strings.TrimSpace(cfg.VendorDBPath) != "" {
		store, err := vendors.Open(cfg.VendorDBPath, log)
		if err != nil {
			return nil, err
		}
		e.store = store
	}

	e.streams = func(sessionID string) transports.StreamClient {
		return agentwire.New(agentwire.Config{
			URL:           sessionURL(cfg.Stream.URL, sessionID),
			SessionID:     sessionID,
			MaxReconnects: cfg.Stream.MaxReconnects,
			ReconnectBase: cfg.Stream.ReconnectBase,
			DialTimeout:   cfg.Stream.DialTimeout,
		}, log)
	}

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// VendorStore exposes the vendor database for seeding; nil when no
// database is configured.
func (e *Engine) VendorStore() *vendors.Store { return e.store }

// OpenSession creates the orchestrator and stream client for a new
// conversation and begins consuming its frames. A second open for the
// same ID fails; the previous session must be closed first.
func (e *Engine) OpenSession(ctx context.Context, sessionID string, hooks session.Hooks) (*Session, error) {
	var lookup session.VendorLookup
	if e.store != nil {
		lookup = e.store
	}
	orch := session.NewOrchestrator(session.Options{
		SessionID: sessionID,
		Logger:    e.log,
		Observer:  e.obs,
		Vendors:   lookup,
		Pricing:   e.gw.PricingFor(sessionID),
		Hooks:     hooks,
	})

	streamCtx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		ID:           sessionID,
		Orchestrator: orch,
		Stream:       e.streams(sessionID),
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	if err := e.registry.Put(sess); err != nil {
		cancel()
		return nil, err
	}
	if err := sess.Stream.Start(streamCtx); err != nil {
		e.registry.Remove(sessionID)
		cancel()
		return nil, err
	}
	go e.readLoop(streamCtx, sess)
	e.log.Info("session_opened", "session_id", sessionID)
	return sess, nil
}

// SendTurn runs one synchronous conversation turn for the session. The
// call's return is the authoritative end of the turn.
func (e *Engine) SendTurn(ctx context.Context, sessionID, text string) error {
	sess, ok := e.registry.Get(sessionID)
	if !ok {
		return errorsx.Newf(errorsx.ReasonSessionClosed, "session %s not open", sessionID)
	}
	orch := sess.Orchestrator
	orch.BeginTurn(text)
	payload, err := e.gw.SendTurn(ctx, sessionID, text)
	if err != nil {
		orch.FailTurn(err)
		return err
	}
	orch.HandleEvent(ctx, classify.Classify(payload))
	orch.CompleteTurn()
	return nil
}

// GenerateDocument renders the session's drafted RFQ as a document of
// the requested kind and stores it on the session.
func (e *Engine) GenerateDocument(ctx context.Context, sessionID string, kind classify.DecisionKind) (string, error) {
	sess, ok := e.registry.Get(sessionID)
	if !ok {
		return "", errorsx.Newf(errorsx.ReasonSessionClosed, "session %s not open", sessionID)
	}
	fields := sess.Orchestrator.Snapshot().Rfq
	var (
		doc string
		err error
	)
	switch kind {
	case classify.DecisionRfpRequest:
		doc, err = e.gw.GenerateRFPDocument(ctx, sessionID, fields)
	default:
		doc, err = e.gw.GenerateRFQDocument(ctx, sessionID, fields)
	}
	if err != nil {
		return "", err
	}
	sess.Orchestrator.StoreDocument(doc)
	return doc, nil
}

// AnalyzeVendors asks for a comparative summary of the vendors the
// session has on the table and appends it to the conversation.
func (e *Engine) AnalyzeVendors(ctx context.Context, sessionID string) (string, error) {
	sess, ok := e.registry.Get(sessionID)
	if !ok {
		return "", errorsx.Newf(errorsx.ReasonSessionClosed, "session %s not open", sessionID)
	}
	snap := sess.Orchestrator.Snapshot()
	list := snap.ExternalVendors
	if len(list) == 0 {
		for _, r := range snap.InternalVendors {
			list = append(list, classify.VendorSummary{
				Name:     r.Name,
				Category: r.Category,
				Region:   r.Region,
				Rating:   r.Rating,
			})
		}
	}
	if len(list) == 0 {
		return "", errorsx.New(errorsx.ReasonVendorAnalysis, "no vendors to analyze")
	}
	summary, err := e.gw.AnalyzeVendors(ctx, sessionID, list)
	if err != nil {
		return "", err
	}
	sess.Orchestrator.HandleEvent(ctx, classify.GeneralChatReply{Text: summary})
	return summary, nil
}

// CloseSession tears down the session's stream and waits for in-flight
// dependent calls.
func (e *Engine) CloseSession(sessionID string) error {
	sess, ok := e.registry.Remove(sessionID)
	if !ok {
		return errorsx.Newf(errorsx.ReasonSessionClosed, "session %s not open", sessionID)
	}
	sess.cancel()
	err := sess.Stream.Stop()
	select {
	case <-sess.done:
	case <-time.After(2 * time.Second):
	}
	sess.Orchestrator.Wait()
	e.log.Info("session_closed", "session_id", sessionID)
	return err
}

// Drain implements runner.Drainer: closes every open session.
func (e *Engine) Drain() error {
	var ids []string
	e.registry.Range(func(s *Session) bool {
		ids = append(ids, s.ID)
		return true
	})
	var err error
	for _, id := range ids {
		if cerr := e.CloseSession(id); cerr != nil {
			err = cerr
		}
	}
	e.registry.WaitForEmpty(e.cfg.DrainTimeout)
	return err
}

// Run blocks inside the lifecycle runner until the context is canceled,
// then drains sessions and shuts the observer chain down.
func (e *Engine) Run(ctx context.Context) error {
	lr := runner.NewLifecycleRunner(e, runner.Hooks{
		OnStart: func() {
			if e.cfg.TimelineDir != "" && e.cfg.TimelineRetention > 0 {
				removed, err := observers.PurgeArtifacts(e.cfg.TimelineDir, e.cfg.TimelineRetention)
				if err != nil {
					e.log.Warn("timeline_purge_failed", "error", err.Error())
				} else if removed > 0 {
					e.log.Info("timeline_purged", "removed", removed)
				}
			}
			e.log.Info("engine_started")
		},
		OnStop: func() {
			e.shutdown()
			e.log.Info("engine_stopped")
		},
	}, e.cfg.DrainTimeout)
	return lr.Run(ctx)
}

func (e *Engine) shutdown() {
	if e.async != nil {
		e.async.Close()
	}
	if e.timeline != nil {
		_ = e.timeline.Close()
	}
	if e.metricsFile != nil {
		_ = e.metricsFile.Close()
	}
	if e.store != nil {
		_ = e.store.Close()
	}
}

// readLoop consumes stream frames for one session until the stream
// channel closes or the session context is canceled.
func (e *Engine) readLoop(ctx context.Context, sess *Session) {
	defer close(sess.done)
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-sess.Stream.Recv():
			if !ok {
				return
			}
			e.handleFrame(ctx, sess, f)
		}
	}
}

func (e *Engine) handleFrame(ctx context.Context, sess *Session, f frames.Frame) {
	orch := sess.Orchestrator
	e.recordFrame(sess.ID, f)
	switch f.Kind {
	case frames.KindAgentStart, frames.KindAgentEnd:
		orch.HandleFrame(f)
	case frames.KindToolOutput:
		orch.HandleFrame(f)
		if f.Status != frames.StatusSuccess {
			e.log.Debug("tool_output_skipped",
				"session_id", sess.ID,
				"tool", f.ToolName,
				"status", f.Status,
			)
			return
		}
		payload, err := decode.ToolOutput(f.ToolOutput)
		if err != nil {
			e.log.Warn("decode_failed",
				"session_id", sess.ID,
				"tool", f.ToolName,
				"reason_code", string(errorsx.Reason(err)),
			)
			e.obs.RecordEvent(metrics.MetricsEvent{
				Name: "decode_failed",
				Time: time.Now(),
				Tags: map[string]string{"session_id": sess.ID, "tool": f.ToolName},
				Fields: map[string]any{
					"tool_output_raw": f.ToolOutput,
				},
			})
			return
		}
		ev := classify.Classify(payload)
		e.obs.RecordEvent(metrics.MetricsEvent{
			Name: "event_classified",
			Time: time.Now(),
			Tags: map[string]string{"session_id": sess.ID, "type": string(ev.Type())},
		})
		orch.HandleEvent(ctx, ev)
	case frames.KindConnected, frames.KindDisconnected, frames.KindTransportError:
		e.log.Info("stream_lifecycle",
			"session_id", sess.ID,
			"kind", string(f.Kind),
			"reason", f.Meta[frames.MetaReason],
		)
	}
}

func (e *Engine) recordFrame(sessionID string, f frames.Frame) {
	e.obs.RecordEvent(metrics.MetricsEvent{
		Name: "frame_in",
		Time: time.Now(),
		Tags: map[string]string{"session_id": sessionID, "kind": string(f.Kind)},
	})
}

func sessionURL(base, sessionID string) string {
	return strings.TrimRight(base, "/") + "/" + sessionID
}
