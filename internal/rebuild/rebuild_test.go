package rebuild_test

import (
	"math"
	"testing"
	"time"

	"github.com/MrWong99/recut/internal/rebuild"
	"github.com/MrWong99/recut/pkg/audio"
	"github.com/MrWong99/recut/pkg/types"
)

const rate = 16000

// tone returns a clip of d with a constant mid-range amplitude so skipped
// spans are distinguishable from silence.
func tone(d time.Duration) audio.Clip {
	samples := int(int64(d) * rate / int64(time.Second))
	c := audio.Clip{Data: make([]byte, samples*2), SampleRate: rate}
	for s := 0; s < samples; s++ {
		v := 8000 * math.Sin(2*math.Pi*300*float64(s)/rate)
		c.Data[s*2] = byte(uint16(int16(v)))
		c.Data[s*2+1] = byte(uint16(int16(v)) >> 8)
	}
	return c
}

func TestRebuild_DurationInvariant(t *testing.T) {
	t.Parallel()

	src := tone(4 * time.Second)
	words := []types.Word{
		{Text: "", Start: 0, End: 500 * time.Millisecond, IsFiller: true},
		{Text: "hello", Start: 500 * time.Millisecond, End: 1000 * time.Millisecond},
		{Text: "", Start: 1500 * time.Millisecond, End: 2000 * time.Millisecond, IsFiller: true},
		{Text: "world", Start: 2200 * time.Millisecond, End: 2700 * time.Millisecond},
	}
	originals := []string{"uh", "hello", "um", "world"}

	leadTrim := 60 * time.Millisecond
	got, report, err := rebuild.Rebuild(src, words, originals, leadTrim)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	// First filler: no previous segment, no trim. Second filler: trims 60 ms.
	fillerSpans := 500*time.Millisecond + 500*time.Millisecond
	wantDur := src.Duration() - fillerSpans - report.LeadTrimApplied
	if got.Duration() != wantDur {
		t.Errorf("rebuilt duration = %v, want %v", got.Duration(), wantDur)
	}
	if report.LeadTrimApplied != leadTrim {
		t.Errorf("LeadTrimApplied = %v, want %v (one application)", report.LeadTrimApplied, leadTrim)
	}
	if report.FillersRemoved != 2 {
		t.Errorf("FillersRemoved = %d, want 2", report.FillersRemoved)
	}
	if report.FillerCounts["uh"] != 1 || report.FillerCounts["um"] != 1 {
		t.Errorf("FillerCounts = %v, want uh:1 um:1", report.FillerCounts)
	}
}

func TestRebuild_LeadTrimBoundedByPrevSegment(t *testing.T) {
	t.Parallel()

	src := tone(2 * time.Second)
	// Previous appended word is only 20 ms long; the 60 ms lead-trim must be
	// capped at 20 ms.
	words := []types.Word{
		{Text: "a", Start: 0, End: 20 * time.Millisecond},
		{Text: "", Start: 20 * time.Millisecond, End: 520 * time.Millisecond, IsFiller: true},
	}

	_, report, err := rebuild.Rebuild(src, words, []string{"a", "uh"}, 60*time.Millisecond)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if want := 20 * time.Millisecond; report.LeadTrimApplied != want {
		t.Errorf("LeadTrimApplied = %v, want %v", report.LeadTrimApplied, want)
	}
}

func TestRebuild_ConsecutiveFillersTrimOnce(t *testing.T) {
	t.Parallel()

	src := tone(3 * time.Second)
	words := []types.Word{
		{Text: "hey", Start: 0, End: 500 * time.Millisecond},
		{Text: "", Start: 500 * time.Millisecond, End: 900 * time.Millisecond, IsFiller: true},
		{Text: "", Start: 900 * time.Millisecond, End: 1300 * time.Millisecond, IsFiller: true},
	}

	_, report, err := rebuild.Rebuild(src, words, []string{"hey", "um", "uh"}, 60*time.Millisecond)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	// Only the first filler after a kept segment trims.
	if want := 60 * time.Millisecond; report.LeadTrimApplied != want {
		t.Errorf("LeadTrimApplied = %v, want %v", report.LeadTrimApplied, want)
	}
}

func TestRebuild_SkipsSFXCueWithoutFillerAccounting(t *testing.T) {
	t.Parallel()

	src := tone(2 * time.Second)
	words := []types.Word{
		{Text: "hello", Start: 0, End: 500 * time.Millisecond},
		{Text: "{airhorn}", Start: 500 * time.Millisecond, End: 1000 * time.Millisecond, SFXFile: "airhorn.wav", Consumed: true},
		{Text: "world", Start: 1000 * time.Millisecond, End: 1500 * time.Millisecond},
	}

	got, report, err := rebuild.Rebuild(src, words, nil, 60*time.Millisecond)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if report.FillersRemoved != 0 {
		t.Errorf("FillersRemoved = %d, want 0", report.FillersRemoved)
	}
	if report.LeadTrimApplied != 0 {
		t.Errorf("LeadTrimApplied = %v, want 0 for SFX cue", report.LeadTrimApplied)
	}
	if want := src.Duration() - 500*time.Millisecond; got.Duration() != want {
		t.Errorf("duration = %v, want %v", got.Duration(), want)
	}
}

func TestRebuild_KeepsTrailingAudio(t *testing.T) {
	t.Parallel()

	src := tone(3 * time.Second)
	words := []types.Word{
		{Text: "only", Start: 500 * time.Millisecond, End: 1000 * time.Millisecond},
	}

	got, _, err := rebuild.Rebuild(src, words, nil, 0)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if got.Duration() != src.Duration() {
		t.Errorf("duration = %v, want full source %v (nothing removed)", got.Duration(), src.Duration())
	}
}

func TestRebuild_RejectsInvertedWord(t *testing.T) {
	t.Parallel()

	src := tone(time.Second)
	words := []types.Word{{Text: "x", Start: 500 * time.Millisecond, End: 100 * time.Millisecond}}

	if _, _, err := rebuild.Rebuild(src, words, nil, 0); err == nil {
		t.Fatal("Rebuild accepted end < start")
	}
}
