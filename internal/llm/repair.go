package llm

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// RecoverJSON is a best-effort, deliberately lossy cleanup of near-JSON
// engine output: it strips markdown code fences and slices the text down to
// the outermost bracket pair. It never guesses at missing content; if the
// result still fails to parse the caller falls back to its stage's empty
// result. Raw and recovered text are logged so audits can compare them.
func RecoverJSON(raw string, logger *zap.Logger) (string, bool) {
	cleaned := strings.TrimSpace(raw)

	// strip ```json ... ``` fences
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	// slice down to the outermost { } or [ ] pair
	objStart := strings.IndexAny(cleaned, "{[")
	if objStart < 0 {
		return cleaned, json.Valid([]byte(cleaned))
	}
	open := cleaned[objStart]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}
	objEnd := strings.LastIndexByte(cleaned, close)
	if objEnd > objStart {
		cleaned = cleaned[objStart : objEnd+1]
	} else {
		cleaned = cleaned[objStart:]
	}

	if cleaned != strings.TrimSpace(raw) && logger != nil {
		logger.Debug("recovered engine output",
			zap.String("raw", raw),
			zap.String("recovered", cleaned))
	}
	return cleaned, json.Valid([]byte(cleaned))
}

// UnmarshalLenient applies RecoverJSON before decoding into v.
func UnmarshalLenient(raw string, v any, logger *zap.Logger) error {
	cleaned, _ := RecoverJSON(raw, logger)
	return json.Unmarshal([]byte(cleaned), v)
}
