// Package offsets anchors claimed evidence substrings in source text.
//
// Offsets are half-open [start, end) Unicode code-point positions, the
// unit the upstream generator emits. A claim that cannot be anchored
// unambiguously is rejected, never guessed.
package offsets

import (
	"slices"
	"sort"
	"unicode"
)

// Span is a half-open [Start, End) code-point range.
type Span [2]int

// Start returns the inclusive start offset.
func (s Span) Start() int { return s[0] }

// End returns the exclusive end offset.
func (s Span) End() int { return s[1] }

// Len returns End-Start.
func (s Span) Len() int { return s[1] - s[0] }

// Locate verifies or recovers the offsets of claimed inside text.
//
// The claimed span is accepted as-is when it slices exactly to claimed.
// Otherwise every occurrence is collected case-sensitively, then
// case-insensitively if there were none, and the earliest, tightest
// occurrence wins. A winner tied on (start, end) with another occurrence
// is ambiguous and rejected.
func Locate(text, claimed string, span Span) (Span, bool) {
	if claimed == "" {
		return Span{}, false
	}
	if got, ok := Slice(text, span); ok && got == claimed {
		return span, true
	}

	t := []rune(text)
	c := []rune(claimed)

	found := occurrences(t, c)
	if len(found) == 0 {
		found = occurrences(foldRunes(t), foldRunes(c))
	}
	if len(found) == 0 {
		return Span{}, false
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Start() != found[j].Start() {
			return found[i].Start() < found[j].Start()
		}
		return found[i].Len() < found[j].Len()
	})
	best := found[0]
	if len(found) > 1 && found[1] == best {
		return Span{}, false
	}
	return best, true
}

// Slice returns text[span] in code points, or false when out of range.
func Slice(text string, span Span) (string, bool) {
	t := []rune(text)
	if span.Start() < 0 || span.Start() > span.End() || span.End() > len(t) {
		return "", false
	}
	return string(t[span.Start():span.End()]), true
}

// RuneLen returns the length of s in code points.
func RuneLen(s string) int {
	return len([]rune(s))
}

func occurrences(text, sub []rune) []Span {
	var out []Span
	n := len(sub)
	for i := 0; i+n <= len(text); i++ {
		if slices.Equal(text[i:i+n], sub) {
			out = append(out, Span{i, i + n})
		}
	}
	return out
}

// foldRunes lower-cases rune by rune so positions stay aligned with the
// original text.
func foldRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}
