package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue replaces masked values.
const RedactedValue = "[REDACTED]"

// Keys that identify records or describe the log line itself. Underlying
// addresses and amounts are masked unless listed here.
var redactionAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"reason":    {},
	"component": {},
	"operation": {},
	"chain":     {},
	"asset":     {},
	"agentid":   {},
	"requestid": {},
	"crtid":     {},
}

// IsAllowlisted reports whether key is logged in clear.
func IsAllowlisted(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := redactionAllowlist[normalized]
	return ok
}

// RedactionAllowlist returns the allowlisted keys, sorted.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskField returns a string attribute that is redacted unless key is
// allowlisted or value is blank.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
