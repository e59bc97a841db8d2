package objstore

import (
	"fmt"
	"strings"
)

// Key namespaces inside the bucket, one per image role.
const (
	PrefixOriginal = "original"
	PrefixProof    = "proof"
	PrefixEdited   = "edited"
)

// OriginalKey builds the storage key for a submitted original image.
func OriginalKey(requestID, ext string) string {
	return buildKey(PrefixOriginal, requestID, "original", ext)
}

// ProofKey builds the storage key for a payment-proof image.
func ProofKey(requestID, ext string) string {
	return buildKey(PrefixProof, requestID, "proof", ext)
}

// EditedKey builds the storage key for an operator-uploaded edited image.
func EditedKey(requestID, ext string) string {
	return buildKey(PrefixEdited, requestID, "edited", ext)
}

func buildKey(prefix, requestID, label, ext string) string {
	return fmt.Sprintf("%s/%s_%s.%s", prefix, sanitize(requestID), label, sanitize(ext))
}

// sanitize keeps keys filesystem- and URL-safe: alphanumerics, dot, dash and
// underscore pass through, everything else becomes an underscore. Leading
// dots are stripped so a key segment can never traverse upward.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.TrimLeft(b.String(), ".")
}
