package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces secret material in emitted log lines.
const RedactedValue = "[REDACTED]"

// sensitiveKeys holds the attribute names that must never reach a log
// sink in the clear. Keystore passphrases and bearer tokens dominate;
// raw private key material should never be logged at all but is masked
// as a backstop.
var sensitiveKeys = map[string]struct{}{
	"passphrase":  {},
	"password":    {},
	"token":       {},
	"secret":      {},
	"private_key": {},
	"privatekey":  {},
}

// IsSensitive reports whether a log attribute key carries secret
// material and must be masked.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := sensitiveKeys[normalized]
	return ok
}

// MaskValue returns the redaction placeholder for non-empty values.
// Empty values pass through so absent fields stay visibly absent.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// maskAttr rewrites a sensitive attribute before the handler encodes
// it. Non-sensitive attributes pass through untouched.
func maskAttr(attr slog.Attr) slog.Attr {
	if !IsSensitive(attr.Key) {
		return attr
	}
	return slog.String(attr.Key, MaskValue(attr.Value.String()))
}
