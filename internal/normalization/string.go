package normalization

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

const byteOrderMark = "\ufeff"

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// NormalizeContent is the canonical form every chapter text is stored and
// hashed in: leading BOMs stripped, CRLF and CR folded to LF, trailing
// whitespace of the whole text trimmed. Interior whitespace is untouched.
func NormalizeContent(input string) string {
	if input == "" {
		return ""
	}
	out := strings.TrimLeft(input, byteOrderMark)
	out = lineEndings.Replace(out)
	return strings.TrimRightFunc(out, unicode.IsSpace)
}

// NormalizeContentPtr returns nil for absent input.
func NormalizeContentPtr(input *string) *string {
	if input == nil {
		return nil
	}
	normalized := NormalizeContent(*input)
	return &normalized
}

// ContentHash is the lowercase hex SHA-256 of the normalized UTF-8 bytes.
func ContentHash(input string) string {
	sum := sha256.Sum256([]byte(NormalizeContent(input)))
	return hex.EncodeToString(sum[:])
}

// IsBlank reports whether the normalized text carries no visible content.
// Stray byte order marks anywhere in the text count as blank.
func IsBlank(input string) bool {
	return strings.TrimFunc(NormalizeContent(input), isBlankRune) == ""
}

func isBlankRune(r rune) bool {
	return unicode.IsSpace(r) || r == '\ufeff'
}
