package logging

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const (
	// MaxQueryLogLength is the maximum length of a query to log
	MaxQueryLogLength = 100
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// password=xxx, pwd=xxx, pass=xxx up to the next delimiter
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// user:pass@host in URLs
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s?]+`)

	// HTTP basic credentials as they appear in proxy errors
	basicAuthPattern = regexp.MustCompile(`(?i)Basic\s+[A-Za-z0-9+/=]{8,}`)

	// AWS secrets and session tokens in query strings or SDK error text
	awsSecretPattern = regexp.MustCompile(`(?i)(secret_key|secret_access_key|session_token|X-Amz-Security-Token|X-Amz-Credential)=[^;&\s]+`)

	// Access key ids: AKIA... (long lived) and ASIA... (temporary)
	awsAccessKeyPattern = regexp.MustCompile(`\b(AKIA|ASIA)[A-Z0-9]{16}\b`)
)

// sensitiveArgKeys are connection and auth value keys whose values are never logged.
var sensitiveArgKeys = map[string]bool{
	"password":                      true,
	"auth_password":                 true,
	"secret_key":                    true,
	"session_token":                 true,
	"assume_role_secret_key":        true,
	"assume_role_mfa_device_secret": true,
	"assume_role_external_id":       true,
}

// SanitizeConnectionString removes sensitive data from connection strings
// Use this before logging any connection string
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError returns the error text with credentials removed.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeText(err.Error())
}

// SanitizeText removes every known credential pattern from s.
func SanitizeText(s string) string {
	sanitized := passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	sanitized = basicAuthPattern.ReplaceAllString(sanitized, "Basic "+RedactedText)
	sanitized = awsSecretPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = awsAccessKeyPattern.ReplaceAllString(sanitized, RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeQuery truncates and sanitizes a query for logging
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	return SanitizeText(TruncateString(query, MaxQueryLogLength))
}

// SanitizeArgs returns the keys of args with sensitive values replaced,
// rendered as "key=value" pairs in key order for log fields.
func SanitizeArgs(args map[string]any) []string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if sensitiveArgKeys[strings.ToLower(k)] {
			out = append(out, k+"="+RedactedText)
			continue
		}
		out = append(out, k+"="+SanitizeText(toString(args[k])))
	}
	return out
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
