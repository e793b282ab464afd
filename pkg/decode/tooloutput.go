// Package decode recovers structured payloads from the malformed text
// blobs emitted by the agent side-channel. The blobs are stringified,
// single-quoted, sometimes truncated and sometimes escaped; decoding is
// best effort with a defined failure mode, never a general JSON repair.
package decode

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/adityow/sourcedesk/pkg/errorsx"
)

// Payload is the opaque key/value mapping recovered from a tool output
// blob. Consumers inspect fields defensively; no schema is guaranteed.
type Payload map[string]any

var (
	// Strict boundary: the response value is closed by a quote followed by
	// the next known key or end of string.
	strictResponseRe = regexp.MustCompile(`(?s)'response':\s*'(.*?)'(?:\s*,\s*'module_outputs'|\s*,\s*'respond_directly'|\s*$)`)
	// Lenient boundary: stop at the next unescaped quote. Known fragility:
	// free text containing a literal ", 'module_outputs'" sequence can
	// defeat the strict pattern first; that behavior is kept as-is.
	lenientResponseRe = regexp.MustCompile(`(?s)'response':\s*'((?:[^'\\]|\\.)*)`)
)

// ToolOutput extracts and repairs the response field of a tool output
// blob and parses it as JSON. It is pure and must never panic; any
// unrecoverable input yields an error with reason decode_failure, which
// callers treat as "drop this frame".
func ToolOutput(text string) (Payload, error) {
	raw, ok := extractResponse(text)
	if !ok {
		return nil, errorsx.New(errorsx.ReasonDecodeFailure, "response field not found")
	}
	cleaned := strings.TrimSpace(unescape(raw))
	cleaned = repairTruncation(cleaned)
	var payload Payload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonDecodeFailure)
	}
	return payload, nil
}

func extractResponse(text string) (string, bool) {
	if m := strictResponseRe.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	if m := lenientResponseRe.FindStringSubmatch(text); m != nil && m[1] != "" {
		return m[1], true
	}
	return "", false
}

const backslashSentinel = "\x00\x01bs\x01\x00"

// unescape undoes one level of backslash escaping. The double backslash
// is swapped for a sentinel first so that sequences like `\\n` (escaped
// backslash, then a literal n) survive as backslash-n instead of being
// turned into a newline.
func unescape(s string) string {
	s = strings.ReplaceAll(s, `\\`, backslashSentinel)
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.ReplaceAll(s, `\t`, "\t")
	s = strings.ReplaceAll(s, `\"`, `"`)
	s = strings.ReplaceAll(s, `\'`, `'`)
	s = strings.ReplaceAll(s, `\/`, `/`)
	s = strings.ReplaceAll(s, backslashSentinel, `\`)
	return s
}

// repairTruncation appends the closing braces and brackets a truncated
// payload is missing. Counts only, not nesting order.
func repairTruncation(s string) string {
	if missing := strings.Count(s, "{") - strings.Count(s, "}"); missing > 0 {
		s += strings.Repeat("}", missing)
	}
	if missing := strings.Count(s, "[") - strings.Count(s, "]"); missing > 0 {
		s += strings.Repeat("]", missing)
	}
	return s
}
