// Package rebuild reconstructs the cleaned audio track from the annotated
// word list: inter-word gaps and retained words are copied verbatim from the
// source, filler and consumed spans are skipped, and a small lead-trim is
// taken off the already-written output ahead of each removed filler so the
// preceding in-breath or attack artifact goes with it.
package rebuild

import (
	"fmt"
	"time"

	"github.com/MrWong99/recut/internal/textnorm"
	"github.com/MrWong99/recut/pkg/audio"
	"github.com/MrWong99/recut/pkg/types"
)

// DefaultLeadTrim is the slice taken off the end of the output buffer when a
// filler is skipped.
const DefaultLeadTrim = 60 * time.Millisecond

// Report summarises one rebuild pass.
type Report struct {
	// FillerCounts maps the normalized filler token to its occurrence count.
	FillerCounts map[string]int

	// FillersRemoved is the number of filler words whose audio was skipped.
	FillersRemoved int

	// LeadTrimApplied is the total lead-trim actually taken, each application
	// bounded by the configured trim, the previous appended segment, and the
	// output length.
	LeadTrimApplied time.Duration
}

// Rebuild walks words in time order over src and returns the stitched track.
//
// Invariant: the rebuilt duration equals the source duration minus the summed
// filler/consumed spans minus the summed applied lead-trims, and lead-trim is
// applied at most once per skipped filler.
//
// originals must be the pre-blanking token texts of words (the analysis
// stages blank filler text in place, but the frequency report needs the
// spoken form). Pass nil to fall back to the current texts.
func Rebuild(src audio.Clip, words []types.Word, originals []string, leadTrim time.Duration) (audio.Clip, Report, error) {
	if leadTrim < 0 {
		leadTrim = 0
	}

	report := Report{FillerCounts: make(map[string]int)}
	out := audio.Clip{SampleRate: src.SampleRate}
	cursor := time.Duration(0)

	// prevSegment is the length of the last appended word segment; the
	// lead-trim never eats past it into earlier material.
	prevSegment := time.Duration(0)

	var err error
	for i := range words {
		w := words[i]
		if w.End < w.Start {
			return audio.Clip{}, Report{}, fmt.Errorf("rebuild: word %d: end %v precedes start %v", i, w.End, w.Start)
		}

		// (a) Copy the inter-word gap verbatim.
		if w.Start > cursor {
			out, err = out.Append(src.Slice(cursor, w.Start))
			if err != nil {
				return audio.Clip{}, Report{}, fmt.Errorf("rebuild: gap before word %d: %w", i, err)
			}
		}

		switch {
		case w.IsFiller:
			// (b) Skip the filler audio and trim the attack artifact off the
			// output already written.
			if prevSegment > 0 && !out.Empty() {
				trim := leadTrim
				if prevSegment < trim {
					trim = prevSegment
				}
				if out.Duration() < trim {
					trim = out.Duration()
				}
				if trim > 0 {
					out = out.TrimTail(trim)
					report.LeadTrimApplied += trim
				}
				prevSegment = 0
			}
			report.FillersRemoved++
			report.FillerCounts[fillerKey(w, originals, i)]++

		case w.Consumed || w.SFXFile != "":
			// SFX cue words: spoken trigger is edited out, no lead-trim and
			// no filler accounting.

		default:
			// (c) Retained word, copied verbatim.
			out, err = out.Append(src.Slice(w.Start, w.End))
			if err != nil {
				return audio.Clip{}, Report{}, fmt.Errorf("rebuild: word %d: %w", i, err)
			}
			prevSegment = w.Dur()
		}

		// (d) Advance past the word either way.
		if w.End > cursor {
			cursor = w.End
		}
	}

	// Trailing audio after the last word.
	if cursor < src.Duration() {
		out, err = out.Append(src.Slice(cursor, src.Duration()))
		if err != nil {
			return audio.Clip{}, Report{}, fmt.Errorf("rebuild: trailing audio: %w", err)
		}
	}

	return out, report, nil
}

// fillerKey resolves the report key for a skipped filler: the normalized
// original token when available, else the current text, else a stand-in.
func fillerKey(w types.Word, originals []string, i int) string {
	if i < len(originals) {
		if n := textnorm.Normalize(originals[i]); n != "" {
			return n
		}
	}
	if n := textnorm.Normalize(w.Text); n != "" {
		return n
	}
	return "(unknown)"
}
