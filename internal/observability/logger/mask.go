package logger

import (
	"net/http"
	"strings"
)

// secretKeywords flags keys whose values never appear in logs or audit
// payloads. Matching is substring-based so "stripe_api_key" and
// "stripe-signature" trip on the same entries.
var secretKeywords = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"client_secret",
	"webhook_secret",
	"signature",
	"authorization",
}

// MaskAuthorization redacts a bearer credential, keeping the scheme and the
// trailing four characters so operators can correlate tokens across log
// lines.
func MaskAuthorization(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	parts := strings.Fields(value)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return "Bearer " + redactTail(parts[1])
	}
	return redactTail(value)
}

// MaskCookie redacts every cookie value while keeping cookie names intact.
// Session cookies carry login state, so the raw value never reaches a log.
func MaskCookie(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	segments := strings.Split(value, ";")
	masked := make([]string, 0, len(segments))
	for _, raw := range segments {
		segment := strings.TrimSpace(raw)
		if segment == "" {
			continue
		}
		if idx := strings.Index(segment, "="); idx >= 0 {
			name := strings.TrimSpace(segment[:idx])
			masked = append(masked, name+"="+redactTail(strings.TrimSpace(segment[idx+1:])))
			continue
		}
		masked = append(masked, redactTail(segment))
	}
	return strings.Join(masked, "; ")
}

// MaskAPIKey redacts a processor key or webhook signature down to its last
// four characters.
func MaskAPIKey(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return redactTail(value)
}

// MaskHeaders copies headers with credential-bearing entries redacted.
// Authorization and Cookie get format-aware treatment; any other header
// whose name matches a secret keyword is redacted wholesale.
func MaskHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	masked := make(map[string]string, len(headers))
	for name, values := range headers {
		joined := strings.Join(values, ",")
		switch {
		case strings.EqualFold(name, "Authorization"):
			masked[name] = MaskAuthorization(joined)
		case strings.EqualFold(name, "Cookie"):
			masked[name] = MaskCookie(joined)
		case hasSecretKeyword(name):
			masked[name] = redactTail(joined)
		default:
			masked[name] = joined
		}
	}
	return masked
}

// MaskJSON deep-copies a JSON-shaped map, redacting values under secret
// keys at every nesting level. The input map is never mutated.
func MaskJSON(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		if hasSecretKeyword(key) {
			out[key] = redactScalar(value)
			continue
		}
		out[key] = scrub(value)
	}
	return out
}

// SafeFieldsFromRequest extracts request metadata fit for an error log:
// method, path, size, and redacted headers. Bodies are never captured.
func SafeFieldsFromRequest(req *http.Request) map[string]any {
	if req == nil {
		return map[string]any{}
	}
	length := req.ContentLength
	if length < 0 {
		length = 0
	}
	return map[string]any{
		"method":         req.Method,
		"path":           req.URL.Path,
		"content_length": length,
		"headers":        MaskHeaders(req.Header),
	}
}

func scrub(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return MaskJSON(typed)
	case []any:
		items := make([]any, 0, len(typed))
		for _, entry := range typed {
			items = append(items, scrub(entry))
		}
		return items
	default:
		return value
	}
}

func redactScalar(value any) any {
	switch typed := value.(type) {
	case string:
		return redactTail(typed)
	case []byte:
		return redactTail(string(typed))
	default:
		return "****"
	}
}

func hasSecretKeyword(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	// Header names spell the same keywords with hyphens.
	key = strings.ReplaceAll(key, "-", "_")
	for _, keyword := range secretKeywords {
		if strings.Contains(key, keyword) {
			return true
		}
	}
	return false
}

func redactTail(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "****" + value
	}
	return "****" + value[len(value)-4:]
}
