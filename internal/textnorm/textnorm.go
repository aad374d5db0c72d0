// Package textnorm provides token normalization and ordered phrase matching
// over word-level transcripts.
//
// Transcription output is noisy: tokens arrive with punctuation and arbitrary
// casing, multi-word phrases are sometimes merged into one token ("youknow")
// or a single trigger split across two, and plural forms drift. All matching
// in the cleanup pipeline goes through this package so those artifacts are
// handled in exactly one place.
//
// All functions are pure; compiled phrase sets are immutable after
// [CompilePhrases] and safe for concurrent use.
package textnorm

import (
	"sort"
	"strings"
	"unicode"

	"github.com/MrWong99/recut/pkg/types"
)

// Phrase pairs a configured phrase with the target it resolves to (a sound
// file name, an action name, or the phrase itself for plain fillers).
type Phrase struct {
	Text   string
	Target string

	// Strict disables plural tolerance and collapsed-token forms, requiring
	// an exact normalized token-for-token match.
	Strict bool
}

// Variant is one compiled, normalized form of a configured phrase.
// Built once per configuration load and immutable during a run.
type Variant struct {
	// Tokens is the normalized token sequence to match.
	Tokens []string

	// Target carries the phrase's resolution (file or action).
	Target string

	// Phrase is the original configured text, for reporting.
	Phrase string

	// Strict disables loose matching for this variant.
	Strict bool
}

// Normalize lowercases the token and removes every non-letter, non-digit
// rune. Punctuation-only tokens normalize to the empty string and never
// match anything.
func Normalize(token string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(token) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CompilePhrases normalizes and deduplicates phrases and returns the variants
// sorted by descending token count, so that greedy scanners try the longest
// phrase first. Duplicate normalized token tuples keep the first occurrence.
func CompilePhrases(phrases []Phrase) []Variant {
	seen := make(map[string]bool, len(phrases))
	variants := make([]Variant, 0, len(phrases))

	for _, p := range phrases {
		var tokens []string
		for _, t := range strings.Fields(p.Text) {
			if n := Normalize(t); n != "" {
				tokens = append(tokens, n)
			}
		}
		if len(tokens) == 0 {
			continue
		}
		key := strings.Join(tokens, "\x00")
		if seen[key] {
			continue
		}
		seen[key] = true
		variants = append(variants, Variant{
			Tokens: tokens,
			Target: p.Target,
			Phrase: p.Text,
			Strict: p.Strict,
		})
	}

	// Longest phrase wins ties in greedy scans; stable to keep configured
	// order among equal lengths.
	sort.SliceStable(variants, func(i, j int) bool {
		return len(variants[i].Tokens) > len(variants[j].Tokens)
	})
	return variants
}

// MatchAt reports whether v matches the word stream starting at index i and
// how many words the match spans.
//
// Three forms are tried, in order:
//
//  1. Exact length: len(v.Tokens) consecutive words, token for token.
//  2. Collapsed: the whole phrase merged into the single word at i
//     ("you know" vs "youknow").
//  3. Split (single-token phrases only): the phrase token spread across the
//     words at i and i+1 ("flub" + "ber" vs "flubber").
//
// Forms 2 and 3 are skipped for strict variants.
func MatchAt(words []types.Word, i int, v Variant) (span int, ok bool) {
	if i < 0 || i >= len(words) {
		return 0, false
	}

	// Form 1: token-for-token.
	if i+len(v.Tokens) <= len(words) {
		match := true
		for j, tok := range v.Tokens {
			if !tokenEqual(Normalize(words[i+j].Text), tok, v.Strict) {
				match = false
				break
			}
		}
		if match {
			return len(v.Tokens), true
		}
	}

	if v.Strict {
		return 0, false
	}

	joined := strings.Join(v.Tokens, "")

	// Form 2: phrase collapsed into one transcribed token.
	if len(v.Tokens) > 1 && tokenEqual(Normalize(words[i].Text), joined, false) {
		return 1, true
	}

	// Form 3: single-token phrase split across two transcribed tokens.
	if len(v.Tokens) == 1 && i+1 < len(words) {
		merged := Normalize(words[i].Text) + Normalize(words[i+1].Text)
		if merged != "" && tokenEqual(merged, joined, false) {
			return 2, true
		}
	}

	return 0, false
}

// tokenEqual compares two normalized tokens. Unless strict, a trailing "s" on
// either side is tolerated so singular config entries match plural speech and
// vice versa.
func tokenEqual(got, want string, strict bool) bool {
	if got == "" || want == "" {
		return false
	}
	if got == want {
		return true
	}
	if strict {
		return false
	}
	if strings.TrimSuffix(got, "s") == want || strings.TrimSuffix(want, "s") == got {
		return true
	}
	return false
}
