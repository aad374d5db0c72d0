// Package intern executes the command events the extractor produced: SFX
// overlays and AI-generated spoken inserts or show notes.
//
// Everything here is fallback-driven. Intent classification, answer
// generation, and TTS synthesis all talk to external providers; when any of
// them fails the executor degrades to a deterministic substitute (default
// intent, fixed fallback phrase, or skipping the insert) and the pipeline
// continues. Only context cancellation stops a run.
package intern

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/recut/internal/observe"
	"github.com/MrWong99/recut/pkg/audio"
	"github.com/MrWong99/recut/pkg/provider/llm"
	"github.com/MrWong99/recut/pkg/provider/tts"
	"github.com/MrWong99/recut/pkg/types"
)

const (
	defaultTargetDBFS = -16
	defaultMaxGainDB  = 9
	defaultMinRMS     = 100

	defaultInsertPad      = 200 * time.Millisecond
	defaultFadeOut        = 80 * time.Millisecond
	defaultFallbackAnswer = "We'll put the details in the show notes."
)

const classifierSystemPrompt = "You label podcast editing commands. " +
	"Given the host's spoken request, answer with exactly one word: " +
	"generate_audio if the host wants a spoken answer inserted into the episode, " +
	"or add_to_shownotes if the host wants a note written down instead."

const answerSystemPrompt = "You are a podcast co-host. The host just asked you " +
	"something on air. Answer in one or two short spoken sentences, " +
	"conversational, no lists, no markdown."

// Config tunes the executor. Zero values take the documented defaults.
type Config struct {
	// MediaRoot is the directory SFX file names resolve against.
	MediaRoot string

	// Voice is passed to the TTS provider. Empty selects the provider default.
	Voice string

	// TargetDBFS is the loudness inserts and overlays are matched toward.
	// Default: -16.
	TargetDBFS float64

	// MaxGainDB clamps the loudness-match gain. Default: 9.
	MaxGainDB float64

	// MinRMS marks clips below it as already-silent; they are left unmodified.
	// Default: 100.
	MinRMS float64

	// InsertPad is added after the scaled insertion point when no end marker
	// fixed the spot. Default: 200ms.
	InsertPad time.Duration

	// FadeOut is applied to the tail of every synthesised insert. Default: 80ms.
	FadeOut time.Duration

	// FallbackAnswer replaces the generated answer when the provider fails.
	FallbackAnswer string
}

func (c Config) withDefaults() Config {
	if c.TargetDBFS == 0 {
		c.TargetDBFS = defaultTargetDBFS
	}
	if c.MaxGainDB <= 0 {
		c.MaxGainDB = defaultMaxGainDB
	}
	if c.MinRMS <= 0 {
		c.MinRMS = defaultMinRMS
	}
	if c.InsertPad <= 0 {
		c.InsertPad = defaultInsertPad
	}
	if c.FadeOut <= 0 {
		c.FadeOut = defaultFadeOut
	}
	if c.FallbackAnswer == "" {
		c.FallbackAnswer = defaultFallbackAnswer
	}
	return c
}

// Result summarises one executor pass.
type Result struct {
	// ShowNotes collects the text produced by add_to_shownotes commands, in
	// event order.
	ShowNotes []string

	// Inserts is the number of spoken answers spliced into the track.
	Inserts int

	// SFXApplied and SFXSkipped count overlay outcomes.
	SFXApplied int
	SFXSkipped int

	// Fallbacks counts provider failures that degraded to a substitute.
	Fallbacks int
}

// Executor applies SFX and command events to a rebuilt track.
type Executor struct {
	llm     llm.Provider
	tts     tts.Provider
	cfg     Config
	metrics *observe.Metrics
	log     *slog.Logger
}

// New creates an [Executor]. Either provider may be nil: a nil LLM skips
// classification and answer generation (defaults and the fallback phrase are
// used), a nil TTS skips audio inserts entirely. A nil metrics disables
// instrumentation.
func New(llmProvider llm.Provider, ttsProvider tts.Provider, cfg Config, metrics *observe.Metrics, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		llm:     llmProvider,
		tts:     ttsProvider,
		cfg:     cfg.withDefaults(),
		metrics: metrics,
		log:     log,
	}
}

// recordDuration records elapsed time since start to one of the latency
// histograms. No-op without metrics.
func (e *Executor) recordDuration(ctx context.Context, pick func(*observe.Metrics) metric.Float64Histogram, start time.Time) {
	if e.metrics == nil {
		return
	}
	pick(e.metrics).Record(ctx, time.Since(start).Seconds())
}

func (e *Executor) recordProviderError(ctx context.Context, provider, kind string) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordProviderError(ctx, provider, kind)
}

// Execute overlays all SFX events and applies all command events to track.
// originalLen is the source track length before rebuilding; event timestamps
// are rescaled by cleanedLen/originalLen to land in the cleaned timeline.
//
// Commands are applied in descending timeline order so that a splice never
// shifts the insertion point of an earlier command.
func (e *Executor) Execute(ctx context.Context, track audio.Clip, originalLen time.Duration, sfxEvents []types.SFXEvent, cmdEvents []types.CommandEvent) (audio.Clip, Result, error) {
	var res Result

	ratio := 1.0
	if originalLen > 0 && track.Duration() > 0 {
		ratio = float64(track.Duration()) / float64(originalLen)
	}
	scale := func(t time.Duration) time.Duration {
		return time.Duration(float64(t) * ratio)
	}

	for _, ev := range sfxEvents {
		if err := ctx.Err(); err != nil {
			return audio.Clip{}, res, err
		}
		var ok bool
		track, ok = e.applySFX(track, ev, scale)
		if ok {
			res.SFXApplied++
		} else {
			res.SFXSkipped++
		}
	}

	cmds := make([]types.CommandEvent, len(cmdEvents))
	copy(cmds, cmdEvents)
	sort.SliceStable(cmds, func(i, j int) bool {
		return cmds[i].ContextEnd > cmds[j].ContextEnd
	})

	for _, ev := range cmds {
		if err := ctx.Err(); err != nil {
			return audio.Clip{}, res, err
		}
		track = e.applyCommand(ctx, track, ev, scale, &res)
	}
	return track, res, nil
}

// applySFX overlays one effect clip. Missing or undecodable assets skip the
// event with a warning; the rest of the pipeline is unaffected.
func (e *Executor) applySFX(track audio.Clip, ev types.SFXEvent, scale func(time.Duration) time.Duration) (audio.Clip, bool) {
	path := filepath.Join(e.cfg.MediaRoot, filepath.Clean("/"+ev.File))
	f, err := os.Open(path)
	if err != nil {
		e.log.Warn("sfx asset missing, skipping event",
			"file", ev.File, "phrase", ev.Phrase, "error", err)
		return track, false
	}
	defer f.Close()

	clip, err := audio.DecodeWAV(f)
	if err != nil {
		e.log.Warn("sfx asset unreadable, skipping event",
			"file", ev.File, "error", err)
		return track, false
	}
	clip = clip.Resample(track.SampleRate)
	clip = clip.LoudnessMatch(e.cfg.TargetDBFS, e.cfg.MaxGainDB, e.cfg.MinRMS)

	out, err := track.Overlay(clip, scale(ev.Time))
	if err != nil {
		e.log.Warn("sfx overlay failed, skipping event", "file", ev.File, "error", err)
		return track, false
	}
	e.log.Debug("sfx overlaid", "file", ev.File, "at", scale(ev.Time))
	return out, true
}

// applyCommand resolves intent and answer for one command event and either
// records a show note or splices a synthesised spoken insert.
func (e *Executor) applyCommand(ctx context.Context, track audio.Clip, ev types.CommandEvent, scale func(time.Duration) time.Duration, res *Result) audio.Clip {
	intent := e.resolveIntent(ctx, ev, res)
	answer := e.resolveAnswer(ctx, ev, res)

	status := "fallback"
	defer func() {
		if e.metrics != nil {
			e.metrics.RecordCommand(ctx, string(intent), status)
		}
	}()

	if intent == types.IntentAddToShowNotes {
		status = "ok"
		res.ShowNotes = append(res.ShowNotes, answer)
		e.log.Info("command recorded as show note", "token", ev.Token, "at", ev.Time)
		return track
	}

	if e.tts == nil {
		e.log.Warn("no tts provider, skipping spoken insert", "token", ev.Token, "at", ev.Time)
		res.Fallbacks++
		return track
	}

	text := StripDuplicatedTail(StripPromptEcho(answer, ev.ContextText))
	if strings.TrimSpace(text) == "" {
		text = e.cfg.FallbackAnswer
	}

	clip, err := e.synthesize(ctx, text, res)
	if err != nil {
		e.log.Warn("tts unavailable, skipping spoken insert",
			"token", ev.Token, "at", ev.Time, "error", err)
		res.Fallbacks++
		return track
	}
	clip = clip.Resample(track.SampleRate)
	clip = clip.LoudnessMatch(e.cfg.TargetDBFS, e.cfg.MaxGainDB, e.cfg.MinRMS)
	clip = clip.FadeOut(e.cfg.FadeOut)

	if ev.RemoveSpokenPrompt {
		track = track.ReplaceWithSilence(scale(ev.Time), scale(ev.ContextEnd))
	}

	var at time.Duration
	if ev.HasEndMarker {
		// The marker span was already blanked in the transcript; cut its
		// audio here and take over the cut point.
		track, at = track.Cut(scale(ev.EndMarkerStart), scale(ev.EndMarkerEnd))
	} else {
		at = scale(ev.ContextEnd) + e.cfg.InsertPad
	}

	out, err := track.Splice(clip, at)
	if err != nil {
		e.log.Warn("insert splice failed, skipping", "token", ev.Token, "error", err)
		res.Fallbacks++
		return track
	}
	res.Inserts++
	status = "ok"
	e.log.Info("spoken insert spliced",
		"token", ev.Token, "at", at, "insert_dur", clip.Duration())
	return out
}

// resolveIntent picks the command's action: explicit override, then the
// show-note mode, then the classifier, then the generate-audio default.
func (e *Executor) resolveIntent(ctx context.Context, ev types.CommandEvent, res *Result) types.CommandIntent {
	if ev.IntentOverride.IsValid() {
		return ev.IntentOverride
	}
	if ev.Mode == types.ModeShowNote {
		return types.IntentAddToShowNotes
	}
	if e.llm == nil || strings.TrimSpace(ev.ContextText) == "" {
		return types.IntentGenerateAudio
	}

	start := time.Now()
	resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: classifierSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: ev.ContextText}},
		MaxTokens:    8,
	})
	e.recordDuration(ctx, func(m *observe.Metrics) metric.Float64Histogram { return m.LLMDuration }, start)
	if err != nil {
		e.log.Warn("intent classification failed, using default",
			"token", ev.Token, "error", err)
		e.recordProviderError(ctx, "llm", "classify")
		res.Fallbacks++
		return types.IntentGenerateAudio
	}
	intent := types.CommandIntent(strings.ToLower(strings.TrimSpace(resp.Content)))
	if !intent.IsValid() {
		e.log.Warn("classifier returned unknown intent, using default",
			"token", ev.Token, "intent", resp.Content)
		res.Fallbacks++
		return types.IntentGenerateAudio
	}
	return intent
}

// resolveAnswer produces the answer text: explicit override, then the
// provider, then the fixed fallback phrase.
func (e *Executor) resolveAnswer(ctx context.Context, ev types.CommandEvent, res *Result) string {
	if ev.AnswerOverride != "" {
		return ev.AnswerOverride
	}
	if e.llm == nil {
		return e.cfg.FallbackAnswer
	}

	start := time.Now()
	resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: answerSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: ev.ContextText}},
		Temperature:  0.7,
	})
	e.recordDuration(ctx, func(m *observe.Metrics) metric.Float64Histogram { return m.LLMDuration }, start)
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		if err != nil {
			e.recordProviderError(ctx, "llm", "answer")
		}
		e.log.Warn("answer generation failed, using fallback phrase",
			"token", ev.Token, "error", err)
		res.Fallbacks++
		return e.cfg.FallbackAnswer
	}
	return resp.Content
}

// synthesize renders text, retrying once with the fallback phrase if the
// first synthesis fails.
func (e *Executor) synthesize(ctx context.Context, text string, res *Result) (audio.Clip, error) {
	start := time.Now()
	clip, err := e.tts.Synthesize(ctx, text, e.cfg.Voice)
	e.recordDuration(ctx, func(m *observe.Metrics) metric.Float64Histogram { return m.TTSDuration }, start)
	if err == nil {
		return clip, nil
	}
	e.recordProviderError(ctx, "tts", "synthesize")
	if text == e.cfg.FallbackAnswer {
		return audio.Clip{}, err
	}
	e.log.Warn("tts synthesis failed, retrying with fallback phrase", "error", err)
	res.Fallbacks++
	start = time.Now()
	clip, err2 := e.tts.Synthesize(ctx, e.cfg.FallbackAnswer, e.cfg.Voice)
	e.recordDuration(ctx, func(m *observe.Metrics) metric.Float64Histogram { return m.TTSDuration }, start)
	if err2 != nil {
		e.recordProviderError(ctx, "tts", "synthesize")
		return audio.Clip{}, fmt.Errorf("synthesize fallback: %w", err2)
	}
	return clip, nil
}
