// Package pipeline sequences the per-episode cleanup stages: SFX detection,
// command extraction, flubber handling, filler removal, audio rebuild,
// command execution, and guarded pause compression.
//
// A pipeline run owns its word slice and mutates it in place through the
// stage sequence; no two stages hold it at once. The run is single-threaded —
// chunked processing parallelises by running independent pipelines on
// independent chunks, never by threading inside one run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/recut/internal/command"
	"github.com/MrWong99/recut/internal/filler"
	"github.com/MrWong99/recut/internal/flubber"
	"github.com/MrWong99/recut/internal/intern"
	"github.com/MrWong99/recut/internal/observe"
	"github.com/MrWong99/recut/internal/pausecomp"
	"github.com/MrWong99/recut/internal/rebuild"
	"github.com/MrWong99/recut/internal/textnorm"
	"github.com/MrWong99/recut/pkg/audio"
	"github.com/MrWong99/recut/pkg/types"
)

// Config assembles the per-stage settings for one pipeline. It is built once
// per job and passed in whole; there is no process-wide mutable state.
type Config struct {
	// Fillers are the filler words and phrases to remove.
	Fillers []textnorm.Phrase

	// Command configures trigger aliases, SFX phrases, and end markers.
	Command command.Config

	// Flubber configures abort/rollback trigger detection.
	Flubber flubber.Config

	// LeadTrim is trimmed off the output tail before each removed filler.
	// Zero selects [rebuild.DefaultLeadTrim].
	LeadTrim time.Duration

	// Pause configures the pause compressor.
	Pause pausecomp.Config

	// DisablePauseCompression skips the pause stage entirely.
	DisablePauseCompression bool
}

// Report aggregates the outcome of one pipeline run.
type Report struct {
	// Rebuild carries filler counts and applied lead trims.
	Rebuild rebuild.Report

	// Intern carries show notes, insert counts, and fallback counts.
	Intern intern.Result

	// Pause carries the compression stats, including guard rollback.
	Pause types.PauseCompressionResult

	// Rollback is the flubber rollback that was applied, if any.
	Rollback *types.FlubberOutcome

	// RollbackBlanked is the number of words blanked by the rollback.
	RollbackBlanked int

	// Commands and SFX are the extracted event counts.
	Commands int
	SFX      int
}

// Pipeline runs the cleanup stage sequence for one episode or chunk.
type Pipeline struct {
	cfg      Config
	variants []textnorm.Variant
	exec     *intern.Executor
	metrics  *observe.Metrics
	log      *slog.Logger
}

// New creates a [Pipeline]. exec must not be nil; metrics may be nil to
// disable instrumentation.
func New(cfg Config, exec *intern.Executor, metrics *observe.Metrics, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if cfg.LeadTrim <= 0 {
		cfg.LeadTrim = rebuild.DefaultLeadTrim
	}
	return &Pipeline{
		cfg:      cfg,
		variants: textnorm.CompilePhrases(cfg.Fillers),
		exec:     exec,
		metrics:  metrics,
		log:      log,
	}
}

// Run executes the full stage sequence on one track and its transcript.
// words is consumed: the pipeline blanks and flags entries in place.
//
// A flubber double-trigger returns [flubber.ErrAborted] and no partial
// output. Every other stage failure either degrades (executor fallbacks) or
// rolls back (pause guards), so the returned track is always publishable when
// err is nil.
func (p *Pipeline) Run(ctx context.Context, track audio.Clip, words []types.Word) (audio.Clip, *Report, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.run")
	defer span.End()

	rep := &Report{}
	originalLen := track.Duration()

	// Snapshot the spoken text before any stage blanks it; the rebuild stage
	// keys its filler report off the original words.
	originals := make([]string, len(words))
	for i, w := range words {
		originals[i] = w.Text
	}

	sfxEvents := command.DetectSFX(words, p.cfg.Command)
	cmdEvents, moreSFX := command.Extract(words, p.cfg.Command)
	sfxEvents = append(sfxEvents, moreSFX...)
	rep.Commands = len(cmdEvents)
	rep.SFX = len(sfxEvents)

	// Fillers are flagged before the rollback blanks text: a filler inside a
	// rollback span must still lose its audio, and flags survive the blanking.
	spans := filler.ComputeSpans(words, p.variants)
	filler.Apply(words, spans)

	if outcome := flubber.Detect(words, p.cfg.Flubber); outcome != nil {
		switch outcome.Kind {
		case types.FlubberAbort:
			p.log.Error("job aborted by flubber double trigger", "reason", outcome.Reason)
			return audio.Clip{}, nil, fmt.Errorf("%w: %s", flubber.ErrAborted, outcome.Reason)
		case types.FlubberRollback:
			rep.Rollback = outcome
			rep.RollbackBlanked = flubber.ApplyRollback(words, outcome)
			p.log.Info("flubber rollback applied",
				"from", outcome.BlankFrom,
				"to", outcome.BlankTo,
				"blanked", rep.RollbackBlanked)
		}
	}

	rebuildStart := time.Now()
	cleaned, rebuildRep, err := rebuild.Rebuild(track, words, originals, p.cfg.LeadTrim)
	if err != nil {
		return audio.Clip{}, nil, fmt.Errorf("rebuild: %w", err)
	}
	rep.Rebuild = rebuildRep
	p.recordStage(ctx, func(m *observe.Metrics) metric.Float64Histogram { return m.RebuildDuration }, rebuildStart)
	if p.metrics != nil {
		p.metrics.FillersRemoved.Add(ctx, int64(rebuildRep.FillersRemoved))
	}
	p.log.Info("audio rebuilt",
		"original_dur", originalLen,
		"rebuilt_dur", cleaned.Duration(),
		"fillers_removed", rebuildRep.FillersRemoved)

	internStart := time.Now()
	cleaned, internRes, err := p.exec.Execute(ctx, cleaned, originalLen, sfxEvents, cmdEvents)
	if err != nil {
		return audio.Clip{}, nil, fmt.Errorf("execute commands: %w", err)
	}
	rep.Intern = internRes
	p.recordStage(ctx, func(m *observe.Metrics) metric.Float64Histogram { return m.InternDuration }, internStart)
	if p.metrics != nil {
		for i := 0; i < internRes.SFXApplied; i++ {
			p.metrics.RecordSFX(ctx, "applied")
		}
		for i := 0; i < internRes.SFXSkipped; i++ {
			p.metrics.RecordSFX(ctx, "skipped")
		}
	}

	if !p.cfg.DisablePauseCompression {
		pauseStart := time.Now()
		var pauseRes types.PauseCompressionResult
		cleaned, pauseRes = pausecomp.Compress(cleaned, p.cfg.Pause)
		rep.Pause = pauseRes
		p.recordStage(ctx, func(m *observe.Metrics) metric.Float64Histogram { return m.PauseDuration }, pauseStart)
	}

	return cleaned, rep, nil
}

// recordStage records the elapsed time of one stage when metrics are enabled.
func (p *Pipeline) recordStage(ctx context.Context, pick func(*observe.Metrics) metric.Float64Histogram, start time.Time) {
	if p.metrics == nil {
		return
	}
	pick(p.metrics).Record(ctx, time.Since(start).Seconds())
}
