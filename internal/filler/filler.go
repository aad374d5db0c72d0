// Package filler marks the word indices covered by configured filler words
// and phrases ("um", "you know"). Detection is a pure function over the word
// list; the pipeline flags the returned indices so the rebuilder can skip
// their audio.
package filler

import (
	"github.com/MrWong99/recut/internal/textnorm"
	"github.com/MrWong99/recut/pkg/types"
)

// ComputeSpans returns the set of word indices covered by filler phrases.
//
// The scan is greedy left-to-right: at each position every compiled phrase is
// tried longest first; on a match all covered indices are recorded and the
// scan advances past the span, so spans never overlap. Because variants are
// pre-sorted by length the result is independent of configuration order.
//
// Words already consumed by an earlier stage (SFX pre-pass) are skipped.
// Running the detector over its own output is a no-op: blanked words
// normalize to the empty string and match nothing.
func ComputeSpans(words []types.Word, variants []textnorm.Variant) map[int]bool {
	covered := make(map[int]bool)

	for i := 0; i < len(words); {
		if words[i].Consumed {
			i++
			continue
		}

		matched := false
		for _, v := range variants {
			span, ok := textnorm.MatchAt(words, i, v)
			if !ok {
				continue
			}
			for j := i; j < i+span; j++ {
				covered[j] = true
			}
			i += span
			matched = true
			break
		}
		if !matched {
			i++
		}
	}
	return covered
}

// Apply sets IsFiller and blanks the text of every index in spans.
// Returns the number of words flagged.
func Apply(words []types.Word, spans map[int]bool) int {
	n := 0
	for i := range words {
		if spans[i] {
			words[i].IsFiller = true
			words[i].Text = ""
			n++
		}
	}
	return n
}
