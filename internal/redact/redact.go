package redact

import "regexp"

const placeholder = "[REDACTED]"

// patterns are ordered so provider-specific keys win over the generic
// assignment forms that could otherwise leave a key suffix behind.
var patterns = []*regexp.Regexp{
	// OpenRouter keys
	regexp.MustCompile(`sk-or-v1-[A-Za-z0-9]{32,}`),
	// Anthropic keys
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`),
	// OpenAI keys, including project keys
	regexp.MustCompile(`sk-(?:proj-)?[A-Za-z0-9_-]{20,}`),
	// Bearer credentials
	regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._~+/=-]{16,}`),
	// JWTs
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
	// Key assignments: api_key = "...", apiKey: ...
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret)\s*[:=]\s*["']?[A-Za-z0-9/+=_-]{16,}["']?`),
	// Secret, token and password assignments with quoted values
	regexp.MustCompile(`(?i)(secret|token|password|passwd|credential)\s*[:=]\s*["'][^"']{8,}["']`),
	// AWS access key IDs
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	// Private key blocks
	regexp.MustCompile(`-----BEGIN\s+(?:RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE KEY-----`),
	// GitHub tokens
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
	// Slack tokens
	regexp.MustCompile(`xox[bporas]-[A-Za-z0-9-]{10,}`),
}

// Secrets replaces every detected secret in text with [REDACTED].
func Secrets(text string) string {
	for _, pat := range patterns {
		text = pat.ReplaceAllLiteralString(text, placeholder)
	}
	return text
}

// Contains reports whether text holds anything Secrets would replace.
func Contains(text string) bool {
	for _, pat := range patterns {
		if pat.MatchString(text) {
			return true
		}
	}
	return false
}
