// Package gateway implements the synchronous turn call against the
// agent backend plus the typed dependent calls (document generation,
// pricing suggestion, vendor analysis) that ride the same endpoint with
// distinct agent IDs.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adityow/sourcedesk/pkg/classify"
	"github.com/adityow/sourcedesk/pkg/decode"
	"github.com/adityow/sourcedesk/pkg/errorsx"
	"github.com/adityow/sourcedesk/pkg/resilience"
)

const executePath = "/api/agents/execute"

type Config struct {
	BaseURL string        `mapstructure:"base_url"`
	UserID  string        `mapstructure:"user_id"`
	Timeout time.Duration `mapstructure:"timeout"`

	TurnAgentID     string `mapstructure:"turn_agent_id"`
	RfqDocAgentID   string `mapstructure:"rfq_doc_agent_id"`
	RfpDocAgentID   string `mapstructure:"rfp_doc_agent_id"`
	PricingAgentID  string `mapstructure:"pricing_agent_id"`
	AnalysisAgentID string `mapstructure:"analysis_agent_id"`

	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`

	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.TurnAgentID == "" {
		c.TurnAgentID = "customer_procurement_manager"
	}
	if c.RfqDocAgentID == "" {
		c.RfqDocAgentID = "rfq_document_generator"
	}
	if c.RfpDocAgentID == "" {
		c.RfpDocAgentID = "rfp_document_generator"
	}
	if c.PricingAgentID == "" {
		c.PricingAgentID = "ai_price_suggestion"
	}
	if c.AnalysisAgentID == "" {
		c.AnalysisAgentID = "vendor_analysis"
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	return c
}

// turnMessage is the inner execution command.
type turnMessage struct {
	Action    string `json:"action"`
	RequestID string `json:"request_id"`
	Message   string `json:"message"`
}

type turnRequest struct {
	UserID    string          `json:"user_id"`
	AgentID   string          `json:"agent_id"`
	SessionID string          `json:"session_id"`
	Message   turnMessage     `json:"message"`
	Assets    json.RawMessage `json:"assets,omitempty"`
}

type turnResponse struct {
	Response string `json:"response"`
}

// Client talks to the agent backend. The turn call retries with capped
// exponential backoff plus jitter; pricing calls sit behind a circuit
// breaker because the pricing agent rate-limits aggressively.
type Client struct {
	cfg     Config
	http    *http.Client
	log     *slog.Logger
	retry   resilience.RetryPolicy
	breaker *resilience.CircuitBreaker
	sleep   func(time.Duration)
}

type Option func(*Client)

// WithSleep replaces the retry backoff sleeper.
func WithSleep(fn func(time.Duration)) Option {
	return func(c *Client) { c.sleep = fn }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func New(cfg Config, log *slog.Logger, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log.With(slog.String("component", "gateway")),
		retry:   resilience.NewRetryPolicy(cfg.MaxRetries, cfg.RetryBackoff),
		breaker: resilience.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendTurn runs one synchronous conversation turn. The decoded envelope
// is returned for classification; its arrival is the authoritative
// turn-over signal regardless of what the stream delivered.
func (c *Client) SendTurn(ctx context.Context, sessionID, text string) (decode.Payload, error) {
	body, err := c.callWithRetry(ctx, c.cfg.TurnAgentID, sessionID, text)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonTurnCall)
	}
	return c.decodeBody(body), nil
}

// GenerateRFQDocument asks the document agent to render the drafted RFQ.
func (c *Client) GenerateRFQDocument(ctx context.Context, sessionID string, fields classify.RfqFieldSet) (string, error) {
	return c.generateDocument(ctx, c.cfg.RfqDocAgentID, sessionID, fields)
}

// GenerateRFPDocument asks the document agent to render an RFP from the
// same drafted field set.
func (c *Client) GenerateRFPDocument(ctx context.Context, sessionID string, fields classify.RfqFieldSet) (string, error) {
	return c.generateDocument(ctx, c.cfg.RfpDocAgentID, sessionID, fields)
}

func (c *Client) generateDocument(ctx context.Context, agentID, sessionID string, fields classify.RfqFieldSet) (string, error) {
	msg, err := json.Marshal(fields)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonDocumentGenerate)
	}
	var body []byte
	err = c.retry.Do(func() error {
		var callErr error
		body, callErr = c.doRequest(ctx, agentID, sessionID, string(msg))
		return callErr
	})
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonDocumentGenerate)
	}
	payload := c.decodeBody(body)
	if content, ok := payload["content"].(string); ok && content != "" {
		return content, nil
	}
	if resp, ok := payload["response"].(string); ok {
		return resp, nil
	}
	return "", errorsx.New(errorsx.ReasonDocumentGenerate, "document response had no content")
}

// AnalyzeVendors asks the analysis agent for a comparative summary of
// the vendors currently on the table.
func (c *Client) AnalyzeVendors(ctx context.Context, sessionID string, vendors []classify.VendorSummary) (string, error) {
	msg, err := json.Marshal(vendors)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonVendorAnalysis)
	}
	var body []byte
	err = c.retry.Do(func() error {
		var callErr error
		body, callErr = c.doRequest(ctx, c.cfg.AnalysisAgentID, sessionID, string(msg))
		return callErr
	})
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonVendorAnalysis)
	}
	payload := c.decodeBody(body)
	if msg, ok := payload["message"].(string); ok && msg != "" {
		return msg, nil
	}
	if resp, ok := payload["response"].(string); ok {
		return resp, nil
	}
	return "", errorsx.New(errorsx.ReasonVendorAnalysis, "analysis response had no message")
}

// PricingFor returns a session-bound pricing client suitable for the
// orchestrator. Calls pass through the shared circuit breaker.
func (c *Client) PricingFor(sessionID string) *PricingClient {
	return &PricingClient{client: c, sessionID: sessionID}
}

// PricingClient binds pricing suggestion calls to one session.
type PricingClient struct {
	client    *Client
	sessionID string
}

func (p *PricingClient) SuggestPrice(ctx context.Context, fields classify.RfqFieldSet) (classify.PricingSuggestion, error) {
	return p.client.suggestPrice(ctx, p.sessionID, fields)
}

func (c *Client) suggestPrice(ctx context.Context, sessionID string, fields classify.RfqFieldSet) (classify.PricingSuggestion, error) {
	if !c.breaker.Allow() {
		return classify.PricingSuggestion{}, errorsx.New(errorsx.ReasonPricingCircuitOpen, "pricing circuit open")
	}
	msg, err := json.Marshal(fields)
	if err != nil {
		return classify.PricingSuggestion{}, errorsx.Wrap(err, errorsx.ReasonPricingCall)
	}
	body, err := c.doRequest(ctx, c.cfg.PricingAgentID, sessionID, string(msg))
	if err != nil {
		c.breaker.OnError(err)
		return classify.PricingSuggestion{}, errorsx.Wrap(err, errorsx.ReasonPricingCall)
	}
	c.breaker.OnSuccess()
	payload := c.decodeBody(body)
	suggestion, ok := suggestionFrom(payload)
	if !ok {
		return classify.PricingSuggestion{}, errorsx.New(errorsx.ReasonPricingCall, "pricing response had no price")
	}
	return suggestion, nil
}

// callWithRetry is the turn-call retry loop: capped exponential backoff
// with jitter, attempts bounded by MaxRetries.
func (c *Client) callWithRetry(ctx context.Context, agentID, sessionID, message string) ([]byte, error) {
	backoff := c.cfg.RetryBackoff
	const backoffCap = 8 * time.Second
	for attempt := 0; ; attempt++ {
		body, err := c.doRequest(ctx, agentID, sessionID, message)
		if err == nil {
			return body, nil
		}
		if attempt >= c.cfg.MaxRetries || !retryable(err) {
			return nil, err
		}
		delay := backoff/2 + time.Duration(rand.Int63n(int64(backoff/2)+1))
		c.log.Warn("turn_retry_scheduled",
			"attempt", attempt+1,
			"delay", delay.String(),
			"error", err.Error(),
		)
		c.sleep(delay)
		if backoff < backoffCap {
			backoff *= 2
		}
	}
}

func (c *Client) doRequest(ctx context.Context, agentID, sessionID, message string) ([]byte, error) {
	payload := turnRequest{
		UserID:    c.cfg.UserID,
		AgentID:   agentID,
		SessionID: sessionID,
		Message: turnMessage{
			Action:    "execute",
			RequestID: uuid.NewString(),
			Message:   message,
		},
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonTurnCall)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+executePath, bytes.NewReader(buf))
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonTurnCall)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonGatewayUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonGatewayUnavailable)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, resilience.RateLimitError{Provider: agentID, Message: "agent backend rate limited"}
	case resp.StatusCode >= 500:
		return nil, errorsx.Newf(errorsx.ReasonGatewayUnavailable, "agent backend returned %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, errorsx.Newf(errorsx.ReasonTurnCall, "agent backend returned %d: %s", resp.StatusCode, truncateBody(body))
	}
	return body, nil
}

// decodeBody unwraps the {"response": "..."} wrapper when present and
// runs the envelope decoder over whatever remains.
func (c *Client) decodeBody(body []byte) decode.Payload {
	var wrapper turnResponse
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Response != "" {
		return decode.Envelope(wrapper.Response)
	}
	return decode.Envelope(string(body))
}

func retryable(err error) bool {
	return resilience.IsRateLimit(err) || errorsx.HasReason(err, errorsx.ReasonGatewayUnavailable)
}

func suggestionFrom(p decode.Payload) (classify.PricingSuggestion, bool) {
	var price float64
	switch v := p["price"].(type) {
	case float64:
		price = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return classify.PricingSuggestion{}, false
		}
		price = parsed
	default:
		return classify.PricingSuggestion{}, false
	}
	currency, _ := p["currency"].(string)
	if currency == "" {
		currency = "USD"
	}
	return classify.PricingSuggestion{Price: price, Currency: currency}, true
}

func truncateBody(body []byte) string {
	const max = 200
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
