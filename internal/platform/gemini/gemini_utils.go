package gemini

import "strings"

// extractJSON strips markdown code fences the model sometimes wraps around
// its JSON output. If no fence is present the input is returned trimmed.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, "```") {
		// Drop the opening fence line ("```json" or "```").
		if idx := strings.Index(trimmed, "\n"); idx >= 0 {
			trimmed = trimmed[idx+1:]
		}
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	return trimmed
}
