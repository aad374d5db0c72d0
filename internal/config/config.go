// Package config provides the configuration schema, loader, and provider
// registry for the recut episode cleanup pipeline.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a [time.Duration] that unmarshals from YAML strings like
// "60ms" or "30m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for recut.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
}

// ServerConfig holds logging and metrics settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr, when set, serves Prometheus metrics on this address
	// (e.g., ":9090"). Empty disables the metrics endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// ProvidersConfig declares which provider implementation to use for the text
// model and the speech synthesiser. Each entry selects a named provider
// registered in the [Registry].
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o").
	Model string `yaml:"model"`

	// Voice selects the TTS voice. Ignored for text providers.
	Voice string `yaml:"voice"`

	// Fallbacks lists additional provider entries tried in order when this
	// one fails or its circuit breaker is open.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// PipelineConfig holds the per-episode cleanup settings. It is constructed
// once per job and passed into each component; there is no process-wide
// mutable configuration state.
type PipelineConfig struct {
	// Fillers lists filler words and phrases to remove. Multi-word phrases
	// also match their collapsed single-token transcriptions.
	Fillers []FillerEntry `yaml:"fillers"`

	// Commands maps spoken trigger words to a command mode: "generic" or
	// "shownote".
	Commands map[string]string `yaml:"commands"`

	// EndMarkers lists spoken phrases that close a command's context window
	// (e.g., "stop intern").
	EndMarkers []string `yaml:"end_markers"`

	// SFX maps spoken trigger phrases to effect file names under MediaRoot.
	SFX map[string]string `yaml:"sfx"`

	// MediaRoot is the directory SFX file names resolve against.
	MediaRoot string `yaml:"media_root"`

	// BlankTriggerToken blanks the command trigger word from the transcript.
	BlankTriggerToken bool `yaml:"blank_trigger_token"`

	// RemoveSpokenPrompt silences the spoken prompt window in the cleaned
	// track before the answer is inserted.
	RemoveSpokenPrompt bool `yaml:"remove_spoken_prompt"`

	Flubber FlubberConfig `yaml:"flubber"`

	// LeadTrim is trimmed off the output tail before each removed filler.
	// Zero selects the 60ms default.
	LeadTrim Duration `yaml:"lead_trim"`

	Pause PauseConfig `yaml:"pause"`

	// InsertPad is added after the scaled insertion point of a spoken insert.
	// Zero selects the 200ms default.
	InsertPad Duration `yaml:"insert_pad"`
}

// FillerEntry is one configured filler word or phrase.
type FillerEntry struct {
	// Text is the spoken filler (e.g., "um", "you know").
	Text string `yaml:"text"`

	// Strict disables the plural-tolerant matching for this phrase.
	Strict bool `yaml:"strict"`
}

// FlubberConfig tunes abort/rollback trigger detection.
type FlubberConfig struct {
	// Fuzzy accepts near-miss transcriptions of the trigger word.
	Fuzzy bool `yaml:"fuzzy"`

	// SimilarityThreshold is the fuzzy match ratio, clamped to [0.5, 0.95].
	// Zero selects the 0.8 default.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// LookbackWords bounds the rollback span. Zero selects the default of 50.
	LookbackWords int `yaml:"lookback_words"`
}

// PauseConfig tunes the guarded pause compressor.
type PauseConfig struct {
	// Disabled skips pause compression entirely.
	Disabled bool `yaml:"disabled"`

	// MaxPause is the minimum silence length considered a pause. Zero
	// selects the 2s default.
	MaxPause Duration `yaml:"max_pause"`

	// RelThresholdDB places the silence threshold this far below the track's
	// overall dBFS level. Zero selects 16.
	RelThresholdDB float64 `yaml:"rel_threshold_db"`

	// Ratio scales each pause toward its target length. Zero selects 0.4.
	Ratio float64 `yaml:"ratio"`

	// MinTarget is the floor for a compressed pause. Zero selects 500ms.
	MinTarget Duration `yaml:"min_target"`

	// MaxRemovalPct discards the pass when more than this fraction of the
	// track would be cut. Zero selects 0.10.
	MaxRemovalPct float64 `yaml:"max_removal_pct"`

	// MinSimilarity discards the pass when the energy-envelope similarity
	// falls below it. Zero selects 0.85.
	MinSimilarity float64 `yaml:"min_similarity"`
}

// ChunkingConfig tunes the long-recording chunk orchestrator.
type ChunkingConfig struct {
	// Threshold is the source duration above which chunked processing kicks
	// in. Zero selects 30m.
	Threshold Duration `yaml:"threshold"`

	// ChunkLen is the nominal chunk length. Zero selects 10m.
	ChunkLen Duration `yaml:"chunk_len"`

	// PollInterval is the sleep between completion scans. Zero selects 5s.
	PollInterval Duration `yaml:"poll_interval"`

	// RetryWindow re-dispatches a chunk that has produced no artifact within
	// it. Zero selects 600s.
	RetryWindow Duration `yaml:"retry_window"`

	// MaxRetries caps re-dispatches per chunk. Zero selects 3.
	MaxRetries int `yaml:"max_retries"`

	// GlobalTimeout fails the whole job. Zero selects 1800s.
	GlobalTimeout Duration `yaml:"global_timeout"`

	// StoreDir is the root directory of the filesystem blob store used for
	// chunk artifacts.
	StoreDir string `yaml:"store_dir"`
}
