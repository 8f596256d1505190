package scratchdir

import (
	"crypto/rand"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	suffixAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	suffixLength   = 10
)

// randomSuffix returns suffixLength characters drawn from suffixAlphabet.
// 62^10 combinations keep accidental collisions negligible, but callers must
// still handle the "already exists" case (see New).
func randomSuffix() string {
	buf := make([]byte, suffixLength)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	return string(buf)
}

// sanitizePrefix reduces a caller-supplied prefix to characters that are safe
// in a directory name on every supported platform. Accented letters are
// decomposed and their marks dropped rather than discarded wholesale.
func sanitizePrefix(prefix string) string {
	var b strings.Builder
	for _, r := range norm.NFKD.String(prefix) {
		switch {
		case unicode.Is(unicode.Mn, r):
			// combining marks left over from decomposition
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), "-.")
	if out == "" {
		return "scratch"
	}
	return out
}

// IsGeneratedName reports whether name has the shape this package generates
// for the given prefix: <prefix>-<suffixLength alphanumeric characters>.
// The sweep package uses it to recognize orphaned scratch directories.
func IsGeneratedName(name, prefix string) bool {
	prefix = sanitizePrefix(prefix)
	rest, ok := strings.CutPrefix(name, prefix+"-")
	if !ok || len(rest) != suffixLength {
		return false
	}
	for _, r := range rest {
		if !strings.ContainsRune(suffixAlphabet, r) {
			return false
		}
	}
	return true
}
