package droid

import "regexp"

// Secret-shaped substrings masked before any text reaches a user.
var redactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{8,}`),           // OpenAI/Anthropic-style keys
	regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{20,}\b`),   // GitHub tokens
	regexp.MustCompile(`\bxox[abprs]-[A-Za-z0-9-]{10,}`),   // Slack tokens
	regexp.MustCompile(`\b\d{8,10}:[A-Za-z0-9_-]{35}\b`),   // Telegram bot tokens
	regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]{16,}`),
}

// Assignments keep the variable name and mask only the value.
var redactAssignRe = regexp.MustCompile(`\b((?:[A-Z][A-Z0-9_]*_)?(?:TOKEN|SECRET|API_KEY|PASSWORD))=(\S+)`)

// Redact masks API-key-shaped substrings.
func Redact(s string) string {
	for _, re := range redactPatterns {
		s = re.ReplaceAllString(s, "***")
	}
	return redactAssignRe.ReplaceAllString(s, "$1=***")
}
