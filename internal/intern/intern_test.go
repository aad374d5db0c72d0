package intern

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/recut/internal/observe"
	"github.com/MrWong99/recut/pkg/audio"
	"github.com/MrWong99/recut/pkg/provider/llm"
	llmmock "github.com/MrWong99/recut/pkg/provider/llm/mock"
	ttsmock "github.com/MrWong99/recut/pkg/provider/tts/mock"
	"github.com/MrWong99/recut/pkg/types"
)

func tone(d time.Duration, rate int, amplitude float64) audio.Clip {
	n := int(d.Seconds() * float64(rate))
	c := audio.Clip{Data: make([]byte, n*2), SampleRate: rate}
	for i := 0; i < n; i++ {
		v := int16(amplitude * 32767 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
		c.Data[i*2] = byte(v)
		c.Data[i*2+1] = byte(v >> 8)
	}
	return c
}

func writeWAV(t *testing.T, dir, name string, c audio.Clip) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := audio.EncodeWAV(f, c); err != nil {
		t.Fatal(err)
	}
}

// scriptedLLM answers the classifier and answer prompts separately.
func scriptedLLM(intent, answer string) *llmmock.Provider {
	return &llmmock.Provider{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			if strings.Contains(req.SystemPrompt, "label podcast editing commands") {
				return &llm.CompletionResponse{Content: intent}, nil
			}
			return &llm.CompletionResponse{Content: answer}, nil
		},
	}
}

func TestExecute_SFXOverlay(t *testing.T) {
	t.Parallel()

	media := t.TempDir()
	writeWAV(t, media, "airhorn.wav", tone(500*time.Millisecond, 16000, 0.5))

	e := New(nil, nil, Config{MediaRoot: media}, nil, nil)
	track := audio.Silence(4*time.Second, 16000)

	out, res, err := e.Execute(context.Background(), track, 4*time.Second,
		[]types.SFXEvent{{Time: time.Second, File: "airhorn.wav", Phrase: "air horn"}}, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.SFXApplied != 1 || res.SFXSkipped != 0 {
		t.Errorf("applied/skipped = %d/%d, want 1/0", res.SFXApplied, res.SFXSkipped)
	}
	if out.Duration() != track.Duration() {
		t.Errorf("overlay changed duration: %v, want %v", out.Duration(), track.Duration())
	}
	if out.Slice(time.Second, 1200*time.Millisecond).RMS() == 0 {
		t.Error("overlay region is still silent")
	}
}

func TestExecute_SFXMissingAssetSkips(t *testing.T) {
	t.Parallel()

	e := New(nil, nil, Config{MediaRoot: t.TempDir()}, nil, nil)
	track := audio.Silence(2*time.Second, 16000)

	out, res, err := e.Execute(context.Background(), track, 2*time.Second,
		[]types.SFXEvent{{Time: 0, File: "absent.wav"}}, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.SFXSkipped != 1 {
		t.Errorf("SFXSkipped = %d, want 1", res.SFXSkipped)
	}
	if out.Duration() != track.Duration() {
		t.Errorf("skipped event changed duration: %v", out.Duration())
	}
}

func TestExecute_SpokenInsert(t *testing.T) {
	t.Parallel()

	ttsP := &ttsmock.Provider{Clip: audio.Silence(time.Second, 16000)}
	e := New(scriptedLLM("generate_audio", "Rust is a systems language."), ttsP, Config{}, nil, nil)

	track := audio.Silence(10*time.Second, 16000)
	out, res, err := e.Execute(context.Background(), track, 10*time.Second, nil,
		[]types.CommandEvent{{
			Time:        time.Second,
			Token:       "intern",
			Mode:        types.ModeGeneric,
			ContextText: "what is rust",
			ContextEnd:  2 * time.Second,
		}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Inserts != 1 {
		t.Fatalf("Inserts = %d, want 1", res.Inserts)
	}
	if got, want := out.Duration(), 11*time.Second; got != want {
		t.Errorf("duration = %v, want %v", got, want)
	}
	if ttsP.CallCount() != 1 {
		t.Errorf("tts called %d times, want 1", ttsP.CallCount())
	}
}

func TestExecute_EndMarkerCutsSpan(t *testing.T) {
	t.Parallel()

	ttsP := &ttsmock.Provider{Clip: audio.Silence(time.Second, 16000)}
	e := New(nil, ttsP, Config{}, nil, nil)

	track := audio.Silence(10*time.Second, 16000)
	out, res, err := e.Execute(context.Background(), track, 10*time.Second, nil,
		[]types.CommandEvent{{
			Time:           time.Second,
			Token:          "intern",
			IntentOverride: types.IntentGenerateAudio,
			AnswerOverride: "Here you go.",
			ContextEnd:     3 * time.Second,
			HasEndMarker:   true,
			EndMarkerStart: 2 * time.Second,
			EndMarkerEnd:   3 * time.Second,
		}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Inserts != 1 {
		t.Fatalf("Inserts = %d, want 1", res.Inserts)
	}
	// 10s − 1s marker span + 1s insert.
	if got, want := out.Duration(), 10*time.Second; got != want {
		t.Errorf("duration = %v, want %v", got, want)
	}
}

func TestExecute_RemoveSpokenPrompt(t *testing.T) {
	t.Parallel()

	ttsP := &ttsmock.Provider{Clip: audio.Silence(time.Second, 16000)}
	e := New(nil, ttsP, Config{}, nil, nil)

	track := tone(10*time.Second, 16000, 0.5)
	out, _, err := e.Execute(context.Background(), track, 10*time.Second, nil,
		[]types.CommandEvent{{
			Time:               2 * time.Second,
			Token:              "intern",
			IntentOverride:     types.IntentGenerateAudio,
			AnswerOverride:     "Done.",
			ContextEnd:         4 * time.Second,
			RemoveSpokenPrompt: true,
		}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if rms := out.Slice(2500*time.Millisecond, 3500*time.Millisecond).RMS(); rms != 0 {
		t.Errorf("prompt window RMS = %f, want silence", rms)
	}
	if rms := out.Slice(500*time.Millisecond, 1500*time.Millisecond).RMS(); rms == 0 {
		t.Error("audio before the prompt window was silenced")
	}
}

func TestExecute_ShowNoteMode(t *testing.T) {
	t.Parallel()

	e := New(nil, nil, Config{}, nil, nil)
	track := audio.Silence(5*time.Second, 16000)

	out, res, err := e.Execute(context.Background(), track, 5*time.Second, nil,
		[]types.CommandEvent{{
			Token:          "shownote",
			Mode:           types.ModeShowNote,
			AnswerOverride: "Link the episode about Go generics.",
			ContextEnd:     2 * time.Second,
		}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.ShowNotes) != 1 || res.ShowNotes[0] != "Link the episode about Go generics." {
		t.Errorf("ShowNotes = %v", res.ShowNotes)
	}
	if res.Inserts != 0 {
		t.Errorf("Inserts = %d, want 0", res.Inserts)
	}
	if out.Duration() != track.Duration() {
		t.Errorf("show note changed the track: %v", out.Duration())
	}
}

func TestExecute_LLMFailureFallsBackToFixedPhrase(t *testing.T) {
	t.Parallel()

	ttsP := &ttsmock.Provider{Clip: audio.Silence(time.Second, 16000)}
	e := New(&llmmock.Provider{Err: errors.New("backend down")}, ttsP, Config{}, nil, nil)

	track := audio.Silence(10*time.Second, 16000)
	_, res, err := e.Execute(context.Background(), track, 10*time.Second, nil,
		[]types.CommandEvent{{
			Token:       "intern",
			Mode:        types.ModeGeneric,
			ContextText: "what is rust",
			ContextEnd:  2 * time.Second,
		}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Inserts != 1 {
		t.Errorf("Inserts = %d, want 1 (fallback phrase should still be spoken)", res.Inserts)
	}
	if res.Fallbacks == 0 {
		t.Error("Fallbacks = 0, want > 0")
	}
	if ttsP.Calls[0].Text != defaultFallbackAnswer {
		t.Errorf("synthesized %q, want the fallback phrase", ttsP.Calls[0].Text)
	}
}

func TestExecute_TTSFailureSkipsInsert(t *testing.T) {
	t.Parallel()

	ttsP := &ttsmock.Provider{Err: errors.New("tts down")}
	e := New(nil, ttsP, Config{}, nil, nil)

	track := audio.Silence(10*time.Second, 16000)
	out, res, err := e.Execute(context.Background(), track, 10*time.Second, nil,
		[]types.CommandEvent{{
			Token:          "intern",
			IntentOverride: types.IntentGenerateAudio,
			AnswerOverride: "Hello.",
			ContextEnd:     2 * time.Second,
		}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Inserts != 0 {
		t.Errorf("Inserts = %d, want 0", res.Inserts)
	}
	if out.Duration() != track.Duration() {
		t.Errorf("failed insert changed duration: %v", out.Duration())
	}
}

func TestExecute_TimelineRescaling(t *testing.T) {
	t.Parallel()

	// Original 1000s rebuilt to 900s: a context ending at 100s must insert
	// at 90s + pad, not 100s.
	ttsP := &ttsmock.Provider{Clip: audio.Silence(time.Second, 8000)}
	e := New(nil, ttsP, Config{}, nil, nil)

	track := tone(900*time.Second, 8000, 0.3)
	out, res, err := e.Execute(context.Background(), track, 1000*time.Second, nil,
		[]types.CommandEvent{{
			Token:          "intern",
			IntentOverride: types.IntentGenerateAudio,
			AnswerOverride: "Noted.",
			ContextEnd:     100 * time.Second,
		}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Inserts != 1 {
		t.Fatalf("Inserts = %d, want 1", res.Inserts)
	}
	// The silent insert lands at 90.2s; 100s must still carry the tone.
	at := 90*time.Second + 200*time.Millisecond
	if rms := out.Slice(at+100*time.Millisecond, at+900*time.Millisecond).RMS(); rms != 0 {
		t.Errorf("RMS at scaled insert point = %f, want 0", rms)
	}
	if rms := out.Slice(101*time.Second, 102*time.Second).RMS(); rms == 0 {
		t.Error("tone missing at the unscaled timestamp region")
	}
}

// collectMetrics builds an instrumented Metrics and a reader to inspect what
// the executor recorded.
func collectMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestExecute_RecordsCommandAndProviderMetrics(t *testing.T) {
	t.Parallel()

	m, reader := collectMetrics(t)
	ttsP := &ttsmock.Provider{Err: errors.New("tts down")}
	e := New(nil, ttsP, Config{}, m, nil)

	track := audio.Silence(10*time.Second, 16000)
	_, _, err := e.Execute(context.Background(), track, 10*time.Second, nil,
		[]types.CommandEvent{
			{
				Token:          "shownote",
				Mode:           types.ModeShowNote,
				AnswerOverride: "Link the docs.",
				ContextEnd:     time.Second,
			},
			{
				Token:          "intern",
				IntentOverride: types.IntentGenerateAudio,
				AnswerOverride: "Hello.",
				ContextEnd:     2 * time.Second,
			},
		})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	// One show note succeeded, one insert degraded on the dead TTS backend.
	cmds := findMetric(rm, "recut.commands.executed")
	if cmds == nil {
		t.Fatal("recut.commands.executed not recorded")
	}
	got := map[string]int64{}
	for _, dp := range cmds.Data.(metricdata.Sum[int64]).DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == "status" {
				got[kv.Value.AsString()] += dp.Value
			}
		}
	}
	if got["ok"] != 1 || got["fallback"] != 1 {
		t.Errorf("command statuses = %v, want ok=1 fallback=1", got)
	}

	// Both synthesis attempts (answer, then fallback phrase) failed.
	errs := findMetric(rm, "recut.provider.errors")
	if errs == nil {
		t.Fatal("recut.provider.errors not recorded")
	}
	var total int64
	for _, dp := range errs.Data.(metricdata.Sum[int64]).DataPoints {
		total += dp.Value
	}
	if total != 2 {
		t.Errorf("provider errors = %d, want 2", total)
	}
}

func TestSynthesize_RecordsTTSDuration(t *testing.T) {
	t.Parallel()

	m, reader := collectMetrics(t)
	ttsP := &ttsmock.Provider{Clip: audio.Silence(time.Second, 16000)}
	e := New(nil, ttsP, Config{}, m, nil)

	track := audio.Silence(10*time.Second, 16000)
	_, res, err := e.Execute(context.Background(), track, 10*time.Second, nil,
		[]types.CommandEvent{{
			Token:          "intern",
			IntentOverride: types.IntentGenerateAudio,
			AnswerOverride: "Hello.",
			ContextEnd:     2 * time.Second,
		}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Inserts != 1 {
		t.Fatalf("Inserts = %d, want 1", res.Inserts)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "recut.tts.duration")
	if met == nil {
		t.Fatal("recut.tts.duration not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) == 0 {
		t.Fatalf("metric data = %T with no points, want a histogram sample", met.Data)
	}
	if hist.DataPoints[0].Count != 1 {
		t.Errorf("tts duration samples = %d, want 1", hist.DataPoints[0].Count)
	}
}
