package intern

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/recut/internal/textnorm"
)

// echoSimilarity is the fuzzy match ratio above which an answer window is
// considered an echo of the spoken prompt.
const echoSimilarity = 0.86

const (
	dupTailMin = 8
	dupTailMax = 20
)

// StripPromptEcho removes a leading or trailing echo of the spoken prompt
// from the answer. Models often open by restating the question ("What is
// Rust? Rust is ...") which sounds wrong when spliced right after the host
// already asked it. Windows of answer tokens at either end are fuzzily
// compared against the prompt; the longest window at or above
// [echoSimilarity] is dropped.
func StripPromptEcho(answer, prompt string) string {
	promptNorm := normalizeJoin(strings.Fields(prompt))
	if promptNorm == "" {
		return answer
	}
	tokens := strings.Fields(answer)
	promptLen := len(strings.Fields(prompt))

	maxWin := promptLen + 2
	if maxWin > len(tokens) {
		maxWin = len(tokens)
	}

	// Leading echo. Never strip the whole answer.
	for k := maxWin; k >= 2; k-- {
		if k >= len(tokens) {
			continue
		}
		if seqSimilarity(normalizeJoin(tokens[:k]), promptNorm) >= echoSimilarity {
			tokens = tokens[k:]
			break
		}
	}

	// Trailing echo.
	if maxWin > len(tokens) {
		maxWin = len(tokens)
	}
	for k := maxWin; k >= 2; k-- {
		if k >= len(tokens) {
			continue
		}
		if seqSimilarity(normalizeJoin(tokens[len(tokens)-k:]), promptNorm) >= echoSimilarity {
			tokens = tokens[:len(tokens)-k]
			break
		}
	}
	return strings.Join(tokens, " ")
}

// StripDuplicatedTail removes an immediately-duplicated trailing n-gram from
// the answer. Some models repeat their final sentence verbatim; splicing that
// into the episode double-speaks the line. Windows of 8 to 20 words are
// compared exactly after normalization, longest first.
func StripDuplicatedTail(answer string) string {
	tokens := strings.Fields(answer)
	for n := dupTailMax; n >= dupTailMin; n-- {
		if len(tokens) < 2*n {
			continue
		}
		tail := normalizeJoin(tokens[len(tokens)-n:])
		prev := normalizeJoin(tokens[len(tokens)-2*n : len(tokens)-n])
		if tail != "" && tail == prev {
			tokens = tokens[:len(tokens)-n]
			break
		}
	}
	return strings.Join(tokens, " ")
}

// normalizeJoin normalizes each token and joins the non-empty results with
// single spaces.
func normalizeJoin(tokens []string) string {
	var b strings.Builder
	for _, tok := range tokens {
		n := textnorm.Normalize(tok)
		if n == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(n)
	}
	return b.String()
}

// seqSimilarity is the edit-distance similarity ratio of two normalized
// strings: 1 − distance/maxLen, in [0, 1].
func seqSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	dist := matchr.Levenshtein(a, b)
	return 1 - float64(dist)/float64(longest)
}
