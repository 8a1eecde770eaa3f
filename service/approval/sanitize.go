package approval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/viant/toolbox"
)

// Sanitization markers and limits applied to invocation payloads before they
// are persisted or surfaced to approvers.
const (
	RedactedMarker  = "<REDACTED>"
	TruncatedMarker = "<TRUNCATED>"
	truncatedSuffix = "...<truncated>"

	maxStringLength = 1000
	maxListLength   = 100
	maxDepth        = 10
)

// secretKeywords is the case-insensitive set of mapping keys whose values are
// redacted.
var secretKeywords = map[string]bool{
	"password":      true,
	"secret":        true,
	"token":         true,
	"api_key":       true,
	"apikey":        true,
	"private_key":   true,
	"access_token":  true,
	"refresh_token": true,
	"authorization": true,
	"auth":          true,
	"credential":    true,
	"credentials":   true,
}

// Sanitize returns a copy of the payload safe to store on an approval
// request: secret-keyword values are redacted, long strings and lists are
// truncated and recursion depth is capped.
func Sanitize(payload map[string]interface{}) map[string]interface{} {
	if payload == nil {
		return nil
	}
	return sanitizeMap(payload, 0)
}

func sanitizeMap(value map[string]interface{}, depth int) map[string]interface{} {
	out := make(map[string]interface{}, len(value))
	for key, item := range value {
		if secretKeywords[strings.ToLower(key)] {
			out[key] = RedactedMarker
			continue
		}
		out[key] = sanitizeValue(item, depth+1)
	}
	return out
}

func sanitizeValue(value interface{}, depth int) interface{} {
	if depth > maxDepth {
		return TruncatedMarker
	}
	switch actual := value.(type) {
	case map[string]interface{}:
		return sanitizeMap(actual, depth)
	case map[interface{}]interface{}:
		return sanitizeMap(toolbox.AsMap(actual), depth)
	case []interface{}:
		items := actual
		if len(items) > maxListLength {
			items = items[:maxListLength]
		}
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = sanitizeValue(item, depth+1)
		}
		return out
	case string:
		if len(actual) > maxStringLength {
			return actual[:maxStringLength] + truncatedSuffix
		}
		return actual
	default:
		return value
	}
}

// Summarize builds a best-effort one-line description of the payload from
// well-known keys; when none is present it falls back to listing up to five
// field names.
func Summarize(payload map[string]interface{}) string {
	if len(payload) == 0 {
		return ""
	}
	var parts []string
	if action, ok := payload["action"]; ok {
		parts = append(parts, fmt.Sprintf("action=%v", toolbox.AsString(action)))
	}
	if input, ok := payload["input"]; ok {
		text := toolbox.AsString(input)
		if len(text) > 100 {
			text = text[:100] + truncatedSuffix
		}
		parts = append(parts, fmt.Sprintf("input=%v", text))
	}
	if amount, ok := payload["amount"]; ok {
		parts = append(parts, fmt.Sprintf("amount=%v", toolbox.AsString(amount)))
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}

	fields := make([]string, 0, len(payload))
	for key := range payload {
		fields = append(fields, key)
	}
	sort.Strings(fields)
	if len(fields) > 5 {
		fields = fields[:5]
	}
	return "fields: " + strings.Join(fields, ", ")
}
