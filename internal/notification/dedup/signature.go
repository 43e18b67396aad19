package dedup

import (
	"strings"
	"unicode/utf8"

	"github.com/smallbiznis/portalsync/internal/notification/domain"
)

// SignatureFunc reduces a notification to the key used by the similarity
// check. Two events with equal signatures are treated as the same alert.
type SignatureFunc func(domain.Notification) string

// DefaultSignature keys on the link plus the first prefixLen runes of the
// lowercased title. It is a heuristic: distinct alerts sharing a link and a
// title prefix inside the similarity window collapse into one.
func DefaultSignature(prefixLen int) SignatureFunc {
	return func(n domain.Notification) string {
		title := strings.ToLower(strings.TrimSpace(n.Title))
		return n.LinkValue() + "|" + truncateRunes(title, prefixLen)
	}
}

func truncateRunes(value string, n int) string {
	if n <= 0 || utf8.RuneCountInString(value) <= n {
		return value
	}
	runes := []rune(value)
	return string(runes[:n])
}
