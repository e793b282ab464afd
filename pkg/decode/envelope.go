package decode

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var (
	fromRe     = regexp.MustCompile(`"from"\s*:\s*"([^"]*)"`)
	messageRe  = regexp.MustCompile(`(?s)"message"\s*:\s*"([^"]*)"`)
	priceRe    = regexp.MustCompile(`"price"\s*:\s*"?(-?[0-9]+(?:\.[0-9]+)?)"?`)
	currencyRe = regexp.MustCompile(`"currency"\s*:\s*"([^"]*)"`)
)

// Envelope decodes the outer payload returned by a synchronous agent
// call. The payload is sometimes clean JSON and sometimes malformed in
// its own way (raw newlines inside a content field), so parsing
// degrades through three stages and never fails: direct JSON parse,
// positional content extraction, regex field recovery. The last resort
// wraps the original text so the caller always receives something
// structured.
func Envelope(text string) Payload {
	trimmed := strings.TrimSpace(text)
	var payload Payload
	if err := json.Unmarshal([]byte(trimmed), &payload); err == nil && payload != nil {
		return payload
	}
	if p, ok := sliceContent(trimmed); ok {
		return p
	}
	if p, ok := extractFields(trimmed); ok {
		return p
	}
	return Payload{"response": text}
}

// sliceContent recovers a large free-text content body positionally:
// from the quote after the "content" key forward to the last quote
// before a "message" key or the final closing brace. Full JSON parsing
// is unreliable here because document bodies embed raw control
// characters.
func sliceContent(text string) (Payload, bool) {
	keyIdx := strings.Index(text, `"content"`)
	if keyIdx < 0 {
		return nil, false
	}
	rest := text[keyIdx+len(`"content"`):]
	open := strings.Index(rest, `"`)
	if open < 0 {
		return nil, false
	}
	body := rest[open+1:]

	end := -1
	if msgIdx := strings.Index(body, `"message"`); msgIdx >= 0 {
		end = strings.LastIndex(body[:msgIdx], `"`)
	} else if closeIdx := strings.LastIndex(body, "}"); closeIdx >= 0 {
		end = strings.LastIndex(body[:closeIdx], `"`)
	} else {
		end = strings.LastIndex(body, `"`)
	}
	if end <= 0 {
		return nil, false
	}

	out := Payload{"content": unescape(body[:end])}
	if m := fromRe.FindStringSubmatch(text); m != nil {
		out["from"] = m[1]
	}
	return out, true
}

// extractFields recovers individual fields by regex when positional
// extraction also fails.
func extractFields(text string) (Payload, bool) {
	out := Payload{}
	if m := fromRe.FindStringSubmatch(text); m != nil {
		out["from"] = m[1]
	}
	if m := messageRe.FindStringSubmatch(text); m != nil {
		out["message"] = unescape(m[1])
	}
	if m := priceRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			out["price"] = v
		}
	}
	if m := currencyRe.FindStringSubmatch(text); m != nil {
		out["currency"] = m[1]
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}
