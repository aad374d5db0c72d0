package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to reject unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	errs = append(errs, validateProviderEntry("llm", cfg.Providers.LLM)...)
	errs = append(errs, validateProviderEntry("tts", cfg.Providers.TTS)...)

	for word, mode := range cfg.Pipeline.Commands {
		if mode != "generic" && mode != "shownote" {
			errs = append(errs, fmt.Errorf("pipeline.commands[%q] mode %q is invalid; valid values: generic, shownote", word, mode))
		}
	}
	for phrase, file := range cfg.Pipeline.SFX {
		if file == "" {
			errs = append(errs, fmt.Errorf("pipeline.sfx[%q] has no file name", phrase))
		}
	}
	if len(cfg.Pipeline.SFX) > 0 && cfg.Pipeline.MediaRoot == "" {
		errs = append(errs, errors.New("pipeline.media_root is required when pipeline.sfx is set"))
	}

	if t := cfg.Pipeline.Flubber.SimilarityThreshold; t != 0 && (t < 0 || t > 1) {
		errs = append(errs, fmt.Errorf("pipeline.flubber.similarity_threshold %v is outside [0, 1]", t))
	}
	if p := cfg.Pipeline.Pause.MaxRemovalPct; p != 0 && (p < 0 || p > 1) {
		errs = append(errs, fmt.Errorf("pipeline.pause.max_removal_pct %v is outside [0, 1]", p))
	}
	if r := cfg.Pipeline.Pause.Ratio; r != 0 && (r < 0 || r > 1) {
		errs = append(errs, fmt.Errorf("pipeline.pause.ratio %v is outside [0, 1]", r))
	}

	if cfg.Chunking.ChunkLen != 0 && cfg.Chunking.Threshold != 0 && cfg.Chunking.ChunkLen > cfg.Chunking.Threshold {
		errs = append(errs, fmt.Errorf("chunking.chunk_len %v exceeds chunking.threshold %v", cfg.Chunking.ChunkLen, cfg.Chunking.Threshold))
	}

	return errors.Join(errs...)
}

// validateProviderEntry checks one provider entry and its fallbacks.
func validateProviderEntry(kind string, entry ProviderEntry) []error {
	var errs []error
	if entry.Name != "" && !isValidProviderName(kind, entry.Name) {
		errs = append(errs, fmt.Errorf("providers.%s.name %q is unknown; valid values: %v", kind, entry.Name, ValidProviderNames[kind]))
	}
	for i, fb := range entry.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s.fallbacks[%d] has no name", kind, i))
			continue
		}
		if !isValidProviderName(kind, fb.Name) {
			errs = append(errs, fmt.Errorf("providers.%s.fallbacks[%d].name %q is unknown; valid values: %v", kind, i, fb.Name, ValidProviderNames[kind]))
		}
	}
	return errs
}

func isValidProviderName(kind, name string) bool {
	for _, v := range ValidProviderNames[kind] {
		if v == name {
			return true
		}
	}
	return false
}
