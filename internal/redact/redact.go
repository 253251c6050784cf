// Package redact scrubs sensitive material from strings before they reach
// logs or error responses: connection strings, API keys, bearer tokens, file
// paths, and raw SQL. Error messages in this service routinely embed store
// and LLM client errors, so everything logged at the API boundary passes
// through here.
package redact

import "regexp"

// Redaction placeholders
const (
	RedactedCredential = "[REDACTED_CREDENTIAL]"
	RedactedKey        = "[REDACTED_KEY]"
	RedactedPath       = "[REDACTED_PATH]"
	RedactedSQL        = "[REDACTED_SQL]"
	RedactedToken      = "[REDACTED_TOKEN]"
)

type rule struct {
	pattern     *regexp.Regexp
	placeholder string
}

var rules = []rule{
	// Connection strings with embedded credentials (postgres://user:pw@host).
	{regexp.MustCompile(`(?i)(postgres|postgresql|mysql|mongodb)://[^@\s]+@`), RedactedCredential},

	// password=..., passwd: ... and friends.
	{regexp.MustCompile(`(?i)(password|passwd|pwd)([=:\s]['"]?|['"]?[=:])[^'"&\s]{3,}`), RedactedCredential},

	// API keys, secrets, and generic tokens in key=value form.
	{regexp.MustCompile(`(?i)(api[_-]?key|secret|token|authorization)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`), RedactedKey},

	// JWTs (three base64url segments starting with eyJ).
	{regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`), RedactedToken},

	// Filesystem paths; backup file locations must not leak to clients.
	{regexp.MustCompile(`(/[\w.-]+){2,}`), RedactedPath},

	// SQL fragments from wrapped store errors.
	{regexp.MustCompile(`(?i)(SELECT|INSERT|UPDATE|DELETE|CREATE|ALTER|DROP)[\s\w,*()]+(?:FROM|INTO|SET|TABLE)[\s\w,*()='"$]*`), RedactedSQL},
}

// String redacts sensitive information from the input string.
func String(input string) string {
	if input == "" {
		return input
	}

	result := input
	for _, r := range rules {
		result = r.pattern.ReplaceAllString(result, r.placeholder)
	}
	return result
}

// Error redacts sensitive information from an error's message.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
