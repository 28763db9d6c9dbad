package logging

import (
	"regexp"
	"strings"
)

// Field names whose values are always redacted.
var sensitiveFields = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"credential",
	"private_key",
	"recovery_key",
}

var secretPatterns = []*regexp.Regexp{
	// Synapse access and refresh tokens
	regexp.MustCompile(`\b(syt|syr|mct)_[a-zA-Z0-9_]{10,}`),
	// access_token query parameters in request URLs
	regexp.MustCompile(`(?i)access_token=[^&\s"]+`),
	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`),
}

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

// Redact replaces credentials in a string, typically an error message.
func Redact(s string) string {
	for _, pattern := range secretPatterns {
		s = pattern.ReplaceAllString(s, RedactedValue)
	}
	return s
}

// RedactMap redacts sensitive fields in a settings map.
func RedactMap(m map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(m))
	for k, v := range m {
		switch {
		case IsSensitiveField(k):
			result[k] = RedactedValue
		default:
			if nested, ok := v.(map[string]interface{}); ok {
				result[k] = RedactMap(nested)
			} else if str, ok := v.(string); ok {
				result[k] = Redact(str)
			} else {
				result[k] = v
			}
		}
	}
	return result
}

// IsSensitiveField checks if a field name is considered sensitive.
func IsSensitiveField(name string) bool {
	lowerName := strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(lowerName, field) {
			return true
		}
	}
	return false
}
