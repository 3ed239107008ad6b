package logging

import (
	"regexp"
	"strings"
)

// RedactedPlaceholder is the string used to replace sensitive data
const RedactedPlaceholder = "[REDACTED]"

// sensitivePatterns are compiled once at package initialization.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(sk-[a-zA-Z0-9_-]{20,})`),                  // OpenAI keys, incl. sk-proj-
	regexp.MustCompile(`(?i)(sk-ant-[a-zA-Z0-9_-]{20,})`),              // Anthropic keys
	regexp.MustCompile(`(?i)(bearer\s+[a-zA-Z0-9._-]{20,})`),           // Bearer tokens
	regexp.MustCompile(`(?i)(token\s+[a-f0-9]{32,})`),                  // Deepgram "Token <key>" auth
	regexp.MustCompile(`(\$2[aby]\$\d{2}\$[./A-Za-z0-9]{53})`),         // bcrypt hashes
	regexp.MustCompile(`(?i)(postgres(ql)?://[^:\s]+:[^@\s]+@)`),       // DSNs with passwords
	regexp.MustCompile(`(?i)(password\s*[:=]\s*[^\s,;]{8,})`),          // password= or password:
	regexp.MustCompile(`(?i)(secret\s*[:=]\s*[^\s,;]{8,})`),            // secret= or secret:
	regexp.MustCompile(`(?i)(token\s*[:=]\s*[^\s,;]{8,})`),             // token= or token:
	regexp.MustCompile(`(?i)(api_?key\s*[:=]\s*[^\s,;]{8,})`),          // api_key= or apikey=
}

// sensitiveFieldNames are field/env var name fragments whose values are always redacted.
var sensitiveFieldNames = []string{
	"API_KEY",
	"APIKEY",
	"AUTHORIZATION",
	"PASSWORD",
	"SECRET",
	"TOKEN",
}

// RedactSensitiveData scans a string value and redacts any detected secrets.
//
// Example:
//
//	RedactSensitiveData("key sk-abc123def456ghi789jkl0")
//	// "key [REDACTED]"
func RedactSensitiveData(value string) string {
	if value == "" {
		return value
	}

	result := value
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, RedactedPlaceholder)
	}
	return result
}

// IsSensitiveField returns true if the field name indicates sensitive data.
// Only the name is checked, not the value.
//
//	IsSensitiveField("x-metrics-token")  // true
//	IsSensitiveField("identity")         // false
func IsSensitiveField(fieldName string) bool {
	upperName := strings.ToUpper(strings.ReplaceAll(fieldName, "-", "_"))

	for _, fragment := range sensitiveFieldNames {
		if strings.Contains(upperName, fragment) {
			return true
		}
	}
	return false
}

// ContainsSensitiveData returns true if the value matches any secret pattern.
func ContainsSensitiveData(value string) bool {
	if value == "" {
		return false
	}

	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}
