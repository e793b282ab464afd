// Package agents maps raw tool identifiers from the side-channel onto
// stable logical agent identities for display and bookkeeping.
package agents

import "strings"

// Identity is the resolved logical identity of an executing agent.
type Identity struct {
	LogicalName string
	Description string
}

type entry struct {
	key      string
	identity Identity
}

// Table order matters only for determinism; keys never overlap after
// normalization.
var table = []entry{
	{"chatdecisionmaker", Identity{"Decision Maker", "Routes the request to the right procurement workflow"}},
	{"internalvendorfetch", Identity{"Internal Vendor Agent", "Searches the internal vendor database"}},
	{"externalvendorfetch", Identity{"External Vendor Agent", "Searches external vendor sources"}},
	{"rfqinputgenerator", Identity{"RFQ Generator", "Drafts request-for-quotation data"}},
	{"customergeneralchat", Identity{"General Chat Agent", "Answers general procurement questions"}},
	{"customerprocurementmanager", Identity{"Procurement Manager", "Coordinates the agents working on the request"}},
	{"aipricesuggestion", Identity{"Price Suggestion Agent", "Estimates a target price for the request"}},
}

var (
	processingFallback = Identity{"Processing Agent", "Working on the request"}
	genericFallback    = Identity{"AI Agent", "Assisting with the request"}
)

// Resolve maps a raw tool identifier onto a logical identity. Matching
// is case-insensitive and ignores underscores and hyphens; it never
// fails, falling back to a generic identity for unrecognized names.
func Resolve(toolName string) Identity {
	normalized := normalize(toolName)
	if normalized == "" {
		return genericFallback
	}
	for _, e := range table {
		if strings.Contains(normalized, e.key) || strings.Contains(e.key, normalized) {
			return e.identity
		}
	}
	if looksAgentShaped(normalized) {
		return processingFallback
	}
	return genericFallback
}

func normalize(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.ReplaceAll(value, "_", "")
	value = strings.ReplaceAll(value, "-", "")
	return value
}

func looksAgentShaped(normalized string) bool {
	for _, marker := range []string{"agent", "fetch", "generator", "chat", "assistant", "tool"} {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}
