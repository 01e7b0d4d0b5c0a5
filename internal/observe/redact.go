package observe

import (
	"regexp"
	"strings"
)

// Patterns for values that must never reach a log handler or a tool's
// environment. Matched case-insensitively where it matters.
var (
	apiKeyPattern = regexp.MustCompile(`\b(sk-[A-Za-z0-9_-]{16,}|AIza[A-Za-z0-9_-]{30,}|ghp_[A-Za-z0-9]{30,})\b`)
	bearerPattern = regexp.MustCompile(`(?i)\b(bearer|token)\s+[A-Za-z0-9._\-]{16,}`)
	kvPattern     = regexp.MustCompile(`(?i)\b([A-Z0-9_]*(?:API_KEY|APIKEY|SECRET|TOKEN|PASSWORD|CREDENTIAL)[A-Z0-9_]*)\s*[=:]\s*\S+`)
)

// SensitiveEnvVars lists environment variable names that are stripped from
// child process environments and whose values are redacted in output.
var SensitiveEnvVars = []string{
	"OPENAI_API_KEY",
	"GEMINI_API_KEY",
	"GOOGLE_API_KEY",
	"ANTHROPIC_API_KEY",
	"AWS_SECRET_ACCESS_KEY",
	"AWS_ACCESS_KEY_ID",
	"GITHUB_TOKEN",
	"DATABASE_URL",
}

// Redact replaces secret material in s with a fixed marker. It is applied to
// user-visible error messages and to tool output before logging.
func Redact(s string) string {
	s = apiKeyPattern.ReplaceAllString(s, "[redacted]")
	s = bearerPattern.ReplaceAllString(s, "$1 [redacted]")
	s = kvPattern.ReplaceAllString(s, "$1=[redacted]")
	return s
}

// IsSensitiveEnv reports whether the given environment variable name holds
// secret material.
func IsSensitiveEnv(name string) bool {
	upper := strings.ToUpper(name)
	for _, v := range SensitiveEnvVars {
		if upper == v {
			return true
		}
	}
	for _, marker := range []string{"API_KEY", "SECRET", "TOKEN", "PASSWORD", "CREDENTIAL"} {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}
