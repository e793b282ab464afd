package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonDecodeFailure        ReasonCode = "decode_failure"
	ReasonClassifyFallthrough  ReasonCode = "classify_fallthrough"
	ReasonTransportDial        ReasonCode = "transport_dial"
	ReasonTransportClosed      ReasonCode = "transport_closed"
	ReasonTransportRead        ReasonCode = "transport_read"
	ReasonReconnectExhausted   ReasonCode = "reconnect_exhausted"
	ReasonTurnCall             ReasonCode = "turn_call"
	ReasonPricingCall          ReasonCode = "pricing_call"
	ReasonPricingCircuitOpen   ReasonCode = "pricing_circuit_open"
	ReasonDocumentGenerate     ReasonCode = "doc_generate"
	ReasonVendorAnalysis       ReasonCode = "vendor_analysis"
	ReasonVendorQuery          ReasonCode = "vendor_query"
	ReasonSessionClosed        ReasonCode = "session_closed"
	ReasonConfigInvalid        ReasonCode = "config_invalid"
	ReasonGatewayRateLimit     ReasonCode = "gateway_rate_limit"
	ReasonGatewayUnavailable   ReasonCode = "gateway_unavailable"
	ReasonEnvelopeUnparsable   ReasonCode = "envelope_unparsable"
	ReasonDuplicateSession     ReasonCode = "duplicate_session"
	ReasonStoreOpen            ReasonCode = "store_open"
	ReasonStoreQuery           ReasonCode = "store_query"
	ReasonUnsupportedFrameKind ReasonCode = "unsupported_frame_kind"
)
