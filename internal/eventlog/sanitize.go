package eventlog

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/phrazzld/reelchain/internal/redact"
)

// Sanitization limits.
const (
	DefaultMaxPayloadBytes = 64 << 10
	maxStringBytes         = 8 << 10
)

// binaryFields never reach the log; only their size is kept.
var binaryFields = map[string]bool{
	"audio":       true,
	"audio_data":  true,
	"audio_bytes": true,
	"binary":      true,
}

// errorFields are scrubbed of credentials.
var errorFields = map[string]bool{
	"error":   true,
	"message": true,
}

// Sanitize strips binary blobs, scrubs error strings and caps the payload
// size. Payloads that are not JSON are replaced with a marker.
func Sanitize(raw json.RawMessage, maxBytes int) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPayloadBytes
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return marker("unparseable", len(raw))
	}

	out, err := json.Marshal(sanitizeValue("", v))
	if err != nil {
		return marker("unencodable", len(raw))
	}
	if len(out) > maxBytes {
		return marker("truncated", len(out))
	}
	return out
}

func sanitizeValue(key string, v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			lk := strings.ToLower(k)
			if binaryFields[lk] {
				if s, ok := child.(string); ok {
					val[k] = fmt.Sprintf("[stripped %d bytes]", len(s))
				} else if child != nil {
					val[k] = "[stripped]"
				}
				continue
			}
			val[k] = sanitizeValue(lk, child)
		}
		return val
	case []any:
		for i, child := range val {
			val[i] = sanitizeValue(key, child)
		}
		return val
	case string:
		if errorFields[key] {
			val = redact.String(val)
		}
		if len(val) > maxStringBytes {
			return truncateString(val, maxStringBytes) + "…[truncated]"
		}
		return val
	default:
		return val
	}
}

// truncateString cuts s to at most n bytes without splitting a rune.
func truncateString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func marker(reason string, size int) json.RawMessage {
	out, _ := json.Marshal(map[string]any{"sanitized": reason, "original_bytes": size})
	return out
}
