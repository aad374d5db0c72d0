// Package flubber detects the in-band abort/rollback trigger word.
//
// Speaking "flubber" once asks for a rollback: the preceding passage is
// blanked from the transcript so it can be re-recorded. Speaking it twice in
// quick succession aborts the whole assembly job — the speaker has decided
// the take is unusable and no partial output may be produced.
package flubber

import (
	"errors"
	"fmt"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/recut/internal/textnorm"
	"github.com/MrWong99/recut/pkg/types"
)

// ErrAborted is the job-fatal signal raised when the double-occurrence policy
// trips. Callers must discard all pipeline output when they see it.
var ErrAborted = errors.New("flubber: job aborted by double trigger")

// Trigger is the spoken abort/rollback word.
const Trigger = "flubber"

const (
	// DefaultSimilarityThreshold accepts common mis-transcriptions
	// ("flubber" → "flabber", "flubbber") in fuzzy mode.
	DefaultSimilarityThreshold = 0.8

	// DefaultLookbackWords bounds how far a rollback reaches.
	DefaultLookbackWords = 50

	// abortWindow is the maximum gap between the two earliest occurrences
	// for the abort policy to trip.
	abortWindow = 15 * time.Second

	minSimilarity = 0.5
	maxSimilarity = 0.95
)

// Config tunes trigger detection. The zero value uses exact matching with
// the default lookback.
type Config struct {
	// Fuzzy enables edit-distance matching of mis-transcribed triggers.
	Fuzzy bool

	// SimilarityThreshold is the minimum edit-distance similarity ratio for
	// a fuzzy match. Clamped to [0.5, 0.95]; zero means the default 0.8.
	SimilarityThreshold float64

	// LookbackWords is the number of words blanked before the trigger on
	// rollback. Zero means the default 50.
	LookbackWords int
}

// Detect scans words for the trigger and returns the outcome, or nil when no
// trigger occurs.
//
// Policy: when two or more occurrences exist and the two earliest are within
// 15 s of each other, the outcome is an abort. Otherwise the latest
// occurrence produces a rollback spanning from max(0, index−lookback)
// through the trigger index inclusive.
//
// Detect does not mutate words; the pipeline applies the rollback blanking
// (transcript text only — the corresponding audio is kept).
func Detect(words []types.Word, cfg Config) *types.FlubberOutcome {
	threshold := cfg.SimilarityThreshold
	if threshold == 0 {
		threshold = DefaultSimilarityThreshold
	}
	if threshold < minSimilarity {
		threshold = minSimilarity
	} else if threshold > maxSimilarity {
		threshold = maxSimilarity
	}
	lookback := cfg.LookbackWords
	if lookback <= 0 {
		lookback = DefaultLookbackWords
	}

	var hits []int
	for i := range words {
		if words[i].Consumed {
			continue
		}
		if isTrigger(words[i].Text, cfg.Fuzzy, threshold) {
			hits = append(hits, i)
		}
	}
	if len(hits) == 0 {
		return nil
	}

	if len(hits) >= 2 {
		gap := words[hits[1]].Start - words[hits[0]].Start
		if gap <= abortWindow {
			return &types.FlubberOutcome{
				Kind: types.FlubberAbort,
				Reason: fmt.Sprintf("two %q triggers %.1fs apart (within %.0fs window)",
					Trigger, gap.Seconds(), abortWindow.Seconds()),
			}
		}
	}

	// Rollback on the latest occurrence only.
	idx := hits[len(hits)-1]
	from := idx - lookback
	if from < 0 {
		from = 0
	}
	return &types.FlubberOutcome{
		Kind:      types.FlubberRollback,
		BlankFrom: from,
		BlankTo:   idx,
	}
}

// ApplyRollback blanks the transcript text of the rollback span. Audio is
// untouched. Returns the number of words blanked.
func ApplyRollback(words []types.Word, outcome *types.FlubberOutcome) int {
	if outcome == nil || outcome.Kind != types.FlubberRollback {
		return 0
	}
	n := 0
	for i := outcome.BlankFrom; i <= outcome.BlankTo && i < len(words); i++ {
		if words[i].Text != "" {
			words[i].Text = ""
			n++
		}
	}
	return n
}

// isTrigger reports whether token is the trigger, exactly or (in fuzzy mode)
// within the similarity threshold.
func isTrigger(token string, fuzzy bool, threshold float64) bool {
	n := textnorm.Normalize(token)
	if n == "" {
		return false
	}
	if n == Trigger {
		return true
	}
	if !fuzzy {
		return false
	}
	return similarity(n, Trigger) >= threshold
}

// similarity is an edit-distance ratio in [0, 1]: 1 − levenshtein/maxLen.
func similarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longer := la
	if lb > longer {
		longer = lb
	}
	if longer == 0 {
		return 1
	}
	dist := matchr.Levenshtein(a, b)
	return 1 - float64(dist)/float64(longer)
}
