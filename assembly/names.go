package assembly

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var separatorRuns = regexp.MustCompile(`-{2,}`)

// SanitizeName strips characters outside [A-Za-z0-9_- ], replaces spaces with
// "-" and collapses runs of the separator. Sanitized names are the vocabulary
// every instance, occurrence and mate key is built from.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-', r == '_', r == ' ':
			b.WriteRune(r)
		}
	}
	s := strings.ReplaceAll(b.String(), " ", "-")
	return separatorRuns.ReplaceAllString(s, "-")
}

// GenerateUID hashes the given strings into the 16-character identifier that
// joins instances to their definition records.
func GenerateUID(values ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(values, "")))
	return hex.EncodeToString(sum[:])[:16]
}
