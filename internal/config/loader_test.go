package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
server:
  log_level: info
  metrics_addr: ":9090"
providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o
    fallbacks:
      - name: anthropic
        api_key: sk-ant
        model: claude-sonnet-4-5
  tts:
    name: openai
    api_key: sk-test
    model: tts-1
    voice: alloy
pipeline:
  fillers:
    - text: um
    - text: you know
    - text: basically
      strict: true
  commands:
    intern: generic
    shownote: shownote
  end_markers:
    - stop intern
  sfx:
    air horn: airhorn.wav
  media_root: /srv/media
  flubber:
    fuzzy: true
    similarity_threshold: 0.8
    lookback_words: 50
  lead_trim: 60ms
  pause:
    max_pause: 2s
    rel_threshold_db: 20
    ratio: 0.4
chunking:
  threshold: 30m
  chunk_len: 10m
  poll_interval: 2s
  store_dir: /var/recut
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Providers.LLM.Name != "openai" {
		t.Errorf("llm name = %q, want openai", cfg.Providers.LLM.Name)
	}
	if len(cfg.Providers.LLM.Fallbacks) != 1 || cfg.Providers.LLM.Fallbacks[0].Name != "anthropic" {
		t.Errorf("llm fallbacks = %+v", cfg.Providers.LLM.Fallbacks)
	}
	if len(cfg.Pipeline.Fillers) != 3 {
		t.Fatalf("fillers = %d, want 3", len(cfg.Pipeline.Fillers))
	}
	if !cfg.Pipeline.Fillers[2].Strict {
		t.Error("fillers[2].Strict = false, want true")
	}
	if cfg.Pipeline.Commands["intern"] != "generic" {
		t.Errorf("commands[intern] = %q", cfg.Pipeline.Commands["intern"])
	}
	if cfg.Pipeline.LeadTrim.Std() != 60*time.Millisecond {
		t.Errorf("lead_trim = %v, want 60ms", cfg.Pipeline.LeadTrim.Std())
	}
	if cfg.Pipeline.Pause.RelThresholdDB != 20 {
		t.Errorf("pause.rel_threshold_db = %v, want 20", cfg.Pipeline.Pause.RelThresholdDB)
	}
	if cfg.Chunking.Threshold.Std() != 30*time.Minute {
		t.Errorf("chunking.threshold = %v, want 30m", cfg.Chunking.Threshold.Std())
	}
	if cfg.Chunking.PollInterval.Std() != 2*time.Second {
		t.Errorf("chunking.poll_interval = %v, want 2s", cfg.Chunking.PollInterval.Std())
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	_, err := LoadFromReader(strings.NewReader("pipeline:\n  no_such_field: true\n"))
	if err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	cfg.Server.LogLevel = "loud"
	cfg.Providers.LLM.Name = "skynet"
	cfg.Pipeline.Commands = map[string]string{"intern": "interpretive-dance"}
	cfg.Pipeline.SFX = map[string]string{"air horn": ""}
	cfg.Pipeline.Pause.Ratio = 1.5

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate accepted an invalid config")
	}
	for _, want := range []string{"log_level", "skynet", "interpretive-dance", "air horn", "ratio"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %q: %v", want, err)
		}
	}
}

func TestValidate_ChunkLenExceedsThreshold(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	cfg.Chunking.Threshold = Duration(10 * time.Minute)
	cfg.Chunking.ChunkLen = Duration(20 * time.Minute)

	if err := Validate(cfg); err == nil {
		t.Fatal("Validate accepted chunk_len > threshold")
	}
}
