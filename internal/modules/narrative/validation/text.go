package validation

import (
	"strings"
	"unicode/utf8"
)

// runeText carries the text plus its rune view. Snippet padding and
// introduction windows are measured in characters, not bytes.
type runeText struct {
	s     string
	runes []rune
}

func newRuneText(s string) runeText {
	return runeText{s: s, runes: []rune(s)}
}

func (t runeText) runeIndex(byteOffset int) int {
	if byteOffset <= 0 {
		return 0
	}
	if byteOffset >= len(t.s) {
		return len(t.runes)
	}
	return utf8.RuneCountInString(t.s[:byteOffset])
}

// slice clamps [start, end) to the text bounds.
func (t runeText) slice(start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(t.runes) {
		end = len(t.runes)
	}
	if start >= end {
		return ""
	}
	return string(t.runes[start:end])
}

// snippet returns the byte-located match widened by pad characters on each
// side, trimmed.
func (t runeText) snippet(loc []int, pad int) string {
	start := t.runeIndex(loc[0])
	end := t.runeIndex(loc[1])
	return strings.TrimSpace(t.slice(start-pad, end+pad))
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func capEvidence(in []string) []string {
	if len(in) > maxEvidence {
		return append([]string(nil), in[:maxEvidence]...)
	}
	return in
}
