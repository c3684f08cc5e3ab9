package core

import "strings"

const RedactedValue = "[REDACTED]"

func RedactSensitiveMap(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return redactSensitiveMap(metadata)
}

// SecretPreview returns the first and last three characters of a secret for
// diagnostics. Secrets shorter than eight characters are fully masked.
func SecretPreview(secret string) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ""
	}
	if len(secret) < 8 {
		return "..."
	}
	return secret[:3] + "..." + secret[len(secret)-3:]
}

// RedactHeaders returns a copy of headers safe to log. Credentials keep a
// four character prefix; signature headers are replaced entirely.
func RedactHeaders(headers map[string]string) map[string]any {
	out := make(map[string]any, len(headers))
	for key, value := range headers {
		normalized := strings.ToLower(strings.TrimSpace(key))
		switch normalized {
		case "authorization", "apikey", "x-api-key":
			out[normalized] = truncateCredential(value)
		case "stripe-signature", "cookie":
			out[normalized] = RedactedValue
		default:
			out[normalized] = value
		}
	}
	return out
}

func truncateCredential(value string) string {
	value = strings.TrimSpace(value)
	if len(value) <= 4 {
		return "..."
	}
	return value[:4] + "..."
}

func redactSensitiveMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		if shouldRedactKey(key) {
			target[key] = RedactedValue
			continue
		}
		target[key] = redactSensitiveValue(value)
	}
	return target
}

func redactSensitiveValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return redactSensitiveMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactSensitiveValue(typed[i])
		}
		return out
	default:
		return value
	}
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || isTraceabilityKey(key) {
		return false
	}
	for _, token := range []string{
		"password",
		"secret",
		"token",
		"api_key",
		"access_key",
		"credential",
		"service_key",
	} {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}

func isTraceabilityKey(key string) bool {
	switch key {
	case "event_id",
		"event_type",
		"session_id",
		"record_id",
		"preview_id",
		"delivery_id",
		"tracking_id",
		"request_id":
		return true
	default:
		return false
	}
}
