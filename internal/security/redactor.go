// Package security scrubs credentials from text that leaves the process,
// such as sandbox build logs handed to the model provider.
package security

import (
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// SecretRedactor masks sensitive values in text using common patterns.
type SecretRedactor struct {
	// patterns whose whole match is a secret
	tokens []*regexp.Regexp
	// patterns whose last capture group is the secret; the rest is kept
	assignments []*regexp.Regexp
	whitelist   map[string]bool
}

// NewSecretRedactor creates a redactor with patterns for provider keys,
// tokens and credentials commonly echoed by build tooling.
func NewSecretRedactor() *SecretRedactor {
	return &SecretRedactor{
		whitelist: map[string]bool{
			"true": true, "false": true, "null": true, "undefined": true,
			"example": true, "test": true, "localhost": true,
			"development": true, "production": true,
		},
		tokens: []*regexp.Regexp{
			// Model provider keys
			regexp.MustCompile(`sk-or-v1-[a-f0-9]{32,}`),
			regexp.MustCompile(`sk-ant-[a-zA-Z0-9_\-]{20,}`),
			regexp.MustCompile(`sk-(?:proj-)?[a-zA-Z0-9]{32,}`),
			regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`),

			// Source hosting and cloud
			regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{36}`),
			regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
			regexp.MustCompile(`npm_[a-zA-Z0-9]{36}`),

			// JWT: header.payload.signature
			regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]{20,}`),

			// PEM private keys
			regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]+?-----END [A-Z ]*PRIVATE KEY-----`),

			// Credentials embedded in URLs
			regexp.MustCompile(`(?:postgres|postgresql|mysql|mongodb(?:\+srv)?|redis|amqp)://[^\s:@/]*:[^\s@/]+@`),
		},
		assignments: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b([A-Z0-9_]*(?:api[_-]?key|secret|token|password|passwd)[A-Z0-9_]*)\s*[:=]\s*["']?([^\s"';,]{8,})`),
			regexp.MustCompile(`(?i)(Bearer)\s+([a-zA-Z0-9_\-\.=]{10,256})`),
			regexp.MustCompile(`(?i)(Authorization:\s*Basic)\s+([A-Za-z0-9+/]{16,}={0,2})`),
		},
	}
}

// Redact masks all detected secrets in text.
func (r *SecretRedactor) Redact(text string) string {
	if text == "" {
		return ""
	}
	for _, p := range r.tokens {
		text = p.ReplaceAllString(text, redacted)
	}
	for _, p := range r.assignments {
		text = r.redactValue(text, p)
	}
	return text
}

// redactValue replaces the last capture group of each match, keeping the
// label so the log still reads sensibly.
func (r *SecretRedactor) redactValue(text string, p *regexp.Regexp) string {
	return p.ReplaceAllStringFunc(text, func(match string) string {
		subs := p.FindStringSubmatch(match)
		secret := subs[len(subs)-1]
		if secret == "" || secret == redacted || r.whitelist[strings.ToLower(secret)] {
			return match
		}
		return strings.Replace(match, secret, redacted, 1)
	})
}

// ContainsSecrets reports whether text has anything Redact would mask.
func (r *SecretRedactor) ContainsSecrets(text string) bool {
	return r.Redact(text) != text
}
