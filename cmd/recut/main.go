// Command recut cleans up a podcast episode recording from its word-level
// transcript: fillers are cut, spoken commands become SFX overlays or
// synthesised inserts, flubber rollbacks are applied, and long pauses are
// compressed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/recut/internal/chunker"
	"github.com/MrWong99/recut/internal/command"
	"github.com/MrWong99/recut/internal/config"
	"github.com/MrWong99/recut/internal/flubber"
	"github.com/MrWong99/recut/internal/health"
	"github.com/MrWong99/recut/internal/intern"
	"github.com/MrWong99/recut/internal/observe"
	"github.com/MrWong99/recut/internal/pausecomp"
	"github.com/MrWong99/recut/internal/pipeline"
	"github.com/MrWong99/recut/internal/resilience"
	"github.com/MrWong99/recut/internal/textnorm"
	"github.com/MrWong99/recut/pkg/audio"
	"github.com/MrWong99/recut/pkg/provider/llm"
	"github.com/MrWong99/recut/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/recut/pkg/provider/llm/openai"
	"github.com/MrWong99/recut/pkg/provider/tts"
	oatts "github.com/MrWong99/recut/pkg/provider/tts/openai"
	"github.com/MrWong99/recut/pkg/queue"
	"github.com/MrWong99/recut/pkg/store"
	"github.com/MrWong99/recut/pkg/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	audioPath := flag.String("audio", "", "path to the source recording (16-bit PCM WAV)")
	transcriptPath := flag.String("transcript", "", "path to the word-level transcript (JSON)")
	outPath := flag.String("out", "cleaned.wav", "path the cleaned recording is written to")
	outTranscript := flag.String("out-transcript", "", "optional path the rewritten transcript is written to (direct runs only)")
	notesPath := flag.String("notes", "", "optional path collected show notes are written to")
	flag.Parse()

	if *audioPath == "" || *transcriptPath == "" {
		fmt.Fprintln(os.Stderr, "recut: -audio and -transcript are required")
		flag.Usage()
		return 2
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "recut: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "recut: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("recut starting",
		"config", *configPath,
		"audio", *audioPath,
		"transcript", *transcriptPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "recut"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics := observe.DefaultMetrics()
	if cfg.Server.MetricsAddr != "" {
		startMetricsServer(cfg.Server.MetricsAddr, metrics, readinessChecks(cfg))
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	llmProvider, ttsProvider, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Load inputs ───────────────────────────────────────────────────────────
	src, err := readAudio(*audioPath)
	if err != nil {
		slog.Error("failed to read recording", "err", err)
		return 1
	}
	words, err := readTranscript(*transcriptPath)
	if err != nil {
		slog.Error("failed to read transcript", "err", err)
		return 1
	}
	slog.Info("inputs loaded",
		"duration", src.Duration().Round(time.Second),
		"sample_rate", src.SampleRate,
		"words", len(words),
	)

	// ── Pipeline ──────────────────────────────────────────────────────────────
	exec := intern.New(llmProvider, ttsProvider, internConfig(cfg), metrics, logger)
	pipe := pipeline.New(pipelineConfig(cfg.Pipeline), exec, metrics, logger)

	metrics.ActiveJobs.Add(ctx, 1)
	defer metrics.ActiveJobs.Add(ctx, -1)

	out, notes, rewritten, err := process(ctx, cfg, pipe, src, words, metrics, logger)
	if err != nil {
		if errors.Is(err, flubber.ErrAborted) {
			slog.Error("job aborted, no output written", "err", err)
		} else {
			slog.Error("processing failed", "err", err)
		}
		return 1
	}

	// ── Write outputs ─────────────────────────────────────────────────────────
	if err := writeAudio(*outPath, out); err != nil {
		slog.Error("failed to write cleaned recording", "err", err)
		return 1
	}
	if *outTranscript != "" {
		if rewritten == nil {
			slog.Warn("chunked runs produce no rewritten transcript, skipping",
				"path", *outTranscript)
		} else if err := writeTranscript(*outTranscript, rewritten); err != nil {
			slog.Error("failed to write rewritten transcript", "err", err)
			return 1
		}
	}
	if *notesPath != "" && len(notes) > 0 {
		if err := os.WriteFile(*notesPath, []byte(strings.Join(notes, "\n")+"\n"), 0o644); err != nil {
			slog.Error("failed to write show notes", "err", err)
			return 1
		}
	}

	slog.Info("done",
		"out", *outPath,
		"duration", out.Duration().Round(time.Second),
		"removed", (src.Duration() - out.Duration()).Round(time.Second),
		"show_notes", len(notes),
	)
	return 0
}

// process runs the cleanup either directly or, for long recordings, through
// the chunk orchestrator. A chunked run that fails falls back to direct
// processing of the whole recording.
//
// The returned word slice is the rewritten transcript of a direct run. It is
// nil after a chunked run: chunk workers rewrite their own chunk-local copies,
// so no episode-level transcript exists.
func process(ctx context.Context, cfg *config.Config, pipe *pipeline.Pipeline, src audio.Clip, words []types.Word, metrics *observe.Metrics, logger *slog.Logger) (audio.Clip, []string, []types.Word, error) {
	orch, q, err := newOrchestrator(cfg, pipe, metrics, logger)
	if err != nil {
		return audio.Clip{}, nil, nil, err
	}

	if orch != nil && orch.ShouldChunk(src.Duration()) {
		defer q.Close()

		episodeID := uuid.NewString()
		slog.Info("long recording, processing in chunks",
			"episode_id", episodeID,
			"duration", src.Duration().Round(time.Second),
		)
		out, err := orch.Process(ctx, episodeID, src, words, nil)
		if err == nil {
			return out, q.notes(), nil, nil
		}
		if !errors.Is(err, chunker.ErrChunkedModeFailed) {
			return audio.Clip{}, nil, nil, err
		}
		slog.Warn("chunked processing failed, retrying directly", "err", err)
	}

	out, rep, err := pipe.Run(ctx, src, words)
	if err != nil {
		return audio.Clip{}, nil, nil, err
	}
	logReport(rep)
	return out, rep.Intern.ShowNotes, words, nil
}

// chunkQueue bundles the local task queue with the show notes its workers
// collected across chunks.
type chunkQueue struct {
	*queue.Local

	mu        sync.Mutex
	showNotes []string
}

func (q *chunkQueue) add(notes []string) {
	q.mu.Lock()
	q.showNotes = append(q.showNotes, notes...)
	q.mu.Unlock()
}

func (q *chunkQueue) notes() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.showNotes
}

// newOrchestrator wires the blob store, worker, and local queue for chunked
// processing. Returns nil when chunking is not configured.
func newOrchestrator(cfg *config.Config, pipe *pipeline.Pipeline, metrics *observe.Metrics, logger *slog.Logger) (*chunker.Orchestrator, *chunkQueue, error) {
	if cfg.Chunking.StoreDir == "" {
		return nil, nil, nil
	}

	st, err := store.NewFS(cfg.Chunking.StoreDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open chunk store: %w", err)
	}

	q := &chunkQueue{}
	run := func(ctx context.Context, clip audio.Clip, words []types.Word, _ bool, _ json.RawMessage) (audio.Clip, error) {
		out, rep, err := pipe.Run(ctx, clip, words)
		if err != nil {
			return audio.Clip{}, err
		}
		q.add(rep.Intern.ShowNotes)
		return out, nil
	}
	q.Local = queue.NewLocal(chunker.Worker(st, run, metrics, logger), logger)

	return chunker.New(st, q.Local, chunkerConfig(cfg.Chunking), metrics, logger), q, nil
}

func logReport(rep *pipeline.Report) {
	slog.Info("cleanup report",
		"fillers_removed", rep.Rebuild.FillersRemoved,
		"commands", rep.Commands,
		"inserts", rep.Intern.Inserts,
		"sfx_applied", rep.Intern.SFXApplied,
		"sfx_skipped", rep.Intern.SFXSkipped,
		"provider_fallbacks", rep.Intern.Fallbacks,
		"rollback_blanked", rep.RollbackBlanked,
		"pauses_compressed", rep.Pause.Compressed,
		"pause_removed", rep.Pause.Removed.Round(time.Millisecond),
		"pause_rolled_back", rep.Pause.RolledBack,
	)
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// openai talks to the official client directly; everything else goes
	// through the any-llm gateway with the same option pattern.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		p, err := oallm.New(entry.APIKey, entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			p, err := anyllm.New(providerName, entry.Model, opts...)
			if err != nil {
				return nil, err
			}
			return p, nil
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		p, err := anyllm.New("ollama", entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oatts.Option
		if entry.BaseURL != "" {
			opts = append(opts, oatts.WithBaseURL(entry.BaseURL))
		}
		p, err := oatts.New(entry.APIKey, entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

// buildProviders instantiates the configured text and speech providers,
// wrapping each in a failover group when fallbacks are declared. Either
// returned provider may be nil when not configured.
func buildProviders(cfg *config.Config, reg *config.Registry) (llm.Provider, tts.Provider, error) {
	var (
		llmProvider llm.Provider
		ttsProvider tts.Provider
	)

	if entry := cfg.Providers.LLM; entry.Name != "" {
		primary, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
		}
		llmProvider = primary
		if len(entry.Fallbacks) > 0 {
			group := resilience.NewLLMFallback(primary, entry.Name, resilience.FallbackConfig{})
			for _, fb := range entry.Fallbacks {
				p, err := reg.CreateLLM(fb)
				if err != nil {
					return nil, nil, fmt.Errorf("create llm fallback %q: %w", fb.Name, err)
				}
				group.AddFallback(fb.Name, p)
			}
			llmProvider = group
		}
		slog.Info("provider created", "kind", "llm", "name", entry.Name, "fallbacks", len(entry.Fallbacks))
	}

	if entry := cfg.Providers.TTS; entry.Name != "" {
		primary, err := reg.CreateTTS(entry)
		if err != nil {
			return nil, nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
		}
		ttsProvider = primary
		if len(entry.Fallbacks) > 0 {
			group := resilience.NewTTSFallback(primary, entry.Name, resilience.FallbackConfig{})
			for _, fb := range entry.Fallbacks {
				p, err := reg.CreateTTS(fb)
				if err != nil {
					return nil, nil, fmt.Errorf("create tts fallback %q: %w", fb.Name, err)
				}
				group.AddFallback(fb.Name, p)
			}
			ttsProvider = group
		}
		slog.Info("provider created", "kind", "tts", "name", entry.Name, "fallbacks", len(entry.Fallbacks))
	}

	return llmProvider, ttsProvider, nil
}

// ── Config conversion ─────────────────────────────────────────────────────────

func pipelineConfig(pc config.PipelineConfig) pipeline.Config {
	fillers := make([]textnorm.Phrase, 0, len(pc.Fillers))
	for _, f := range pc.Fillers {
		fillers = append(fillers, textnorm.Phrase{Text: f.Text, Strict: f.Strict})
	}

	aliases := make(map[string]types.CommandMode, len(pc.Commands))
	for word, mode := range pc.Commands {
		m := types.ModeGeneric
		if mode == "shownote" {
			m = types.ModeShowNote
		}
		aliases[word] = m
	}

	return pipeline.Config{
		Fillers: fillers,
		Command: command.Config{
			CommandAliases:     aliases,
			SFXAliases:         pc.SFX,
			EndMarkers:         pc.EndMarkers,
			BlankTriggerToken:  pc.BlankTriggerToken,
			RemoveSpokenPrompt: pc.RemoveSpokenPrompt,
		},
		Flubber: flubber.Config{
			Fuzzy:               pc.Flubber.Fuzzy,
			SimilarityThreshold: pc.Flubber.SimilarityThreshold,
			LookbackWords:       pc.Flubber.LookbackWords,
		},
		LeadTrim: pc.LeadTrim.Std(),
		Pause: pausecomp.Config{
			MaxPause:       pc.Pause.MaxPause.Std(),
			RelThresholdDB: pc.Pause.RelThresholdDB,
			Ratio:          pc.Pause.Ratio,
			MinTarget:      pc.Pause.MinTarget.Std(),
			MaxRemovalPct:  pc.Pause.MaxRemovalPct,
			MinSimilarity:  pc.Pause.MinSimilarity,
		},
		DisablePauseCompression: pc.Pause.Disabled,
	}
}

func internConfig(cfg *config.Config) intern.Config {
	return intern.Config{
		MediaRoot: cfg.Pipeline.MediaRoot,
		Voice:     cfg.Providers.TTS.Voice,
		InsertPad: cfg.Pipeline.InsertPad.Std(),
	}
}

func chunkerConfig(cc config.ChunkingConfig) chunker.Config {
	return chunker.Config{
		Threshold:     cc.Threshold.Std(),
		ChunkLen:      cc.ChunkLen.Std(),
		PollInterval:  cc.PollInterval.Std(),
		RetryWindow:   cc.RetryWindow.Std(),
		MaxRetries:    cc.MaxRetries,
		GlobalTimeout: cc.GlobalTimeout.Std(),
	}
}

// ── I/O helpers ───────────────────────────────────────────────────────────────

func readAudio(path string) (audio.Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return audio.Clip{}, err
	}
	defer f.Close()
	return audio.DecodeWAV(f)
}

func readTranscript(path string) ([]types.Word, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return types.DecodeTranscript(f)
}

func writeAudio(path string, c audio.Clip) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := audio.EncodeWAV(f, c); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeTranscript(path string, words []types.Word) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := types.EncodeTranscript(f, words); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ── Metrics endpoint ──────────────────────────────────────────────────────────

// readinessChecks builds /readyz checkers for the directories the job depends
// on: the chunk blob store and the SFX media root, when configured.
func readinessChecks(cfg *config.Config) []health.Checker {
	dirCheck := func(dir string) health.Check {
		return func(context.Context) error {
			info, err := os.Stat(dir)
			if err != nil {
				return err
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}
			return nil
		}
	}

	var checks []health.Checker
	if cfg.Chunking.StoreDir != "" {
		checks = append(checks, health.Checker{Name: "chunk_store", Check: dirCheck(cfg.Chunking.StoreDir)})
	}
	if cfg.Pipeline.MediaRoot != "" {
		checks = append(checks, health.Checker{Name: "media_root", Check: dirCheck(cfg.Pipeline.MediaRoot)})
	}
	return checks
}

// startMetricsServer serves Prometheus metrics plus liveness and readiness
// probes. Best effort: a bind failure is logged, not fatal.
func startMetricsServer(addr string, m *observe.Metrics, checks []health.Checker) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(checks...).Register(mux)

	handler := observe.Middleware(m)(mux)
	go func() {
		if err := http.ListenAndServe(addr, handler); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("metrics server error", "addr", addr, "err", err)
		}
	}()
	slog.Info("metrics endpoint listening", "addr", addr)
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
