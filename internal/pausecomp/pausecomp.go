// Package pausecomp shortens unnaturally long pauses in a finished track,
// guarded so an over-aggressive pass can never ship: when too much material
// is removed or the track's energy envelope drifts too far, the compressed
// result is discarded and the original returned byte-for-byte.
package pausecomp

import (
	"log/slog"
	"math"
	"time"

	"github.com/MrWong99/recut/pkg/audio"
	"github.com/MrWong99/recut/pkg/types"
)

const (
	// DefaultMaxPause is the minimum silence length considered compressible.
	DefaultMaxPause = 2 * time.Second

	// DefaultRelThresholdDB places the silence threshold this far below the
	// track's overall dBFS level.
	DefaultRelThresholdDB = 16.0

	// DefaultRatio scales each region: it keeps ratio × original length.
	DefaultRatio = 0.4

	// DefaultMinTarget floors the compressed region length so pauses never
	// collapse into jump cuts.
	DefaultMinTarget = 500 * time.Millisecond

	// DefaultMaxRemovalPct is the guard on total removed material.
	DefaultMaxRemovalPct = 0.10

	// DefaultMinSimilarity is the guard on energy-envelope drift.
	DefaultMinSimilarity = 0.85

	// envelopeWidth is the fixed bucket count for the similarity envelopes.
	envelopeWidth = 256
)

// Config tunes one compression pass. Zero fields mean the package defaults.
type Config struct {
	MaxPause       time.Duration
	RelThresholdDB float64
	Ratio          float64
	MinTarget      time.Duration
	MaxRemovalPct  float64
	MinSimilarity  float64
}

func (c Config) withDefaults() Config {
	if c.MaxPause <= 0 {
		c.MaxPause = DefaultMaxPause
	}
	if c.RelThresholdDB <= 0 {
		c.RelThresholdDB = DefaultRelThresholdDB
	}
	if c.Ratio <= 0 {
		c.Ratio = DefaultRatio
	}
	if c.MinTarget <= 0 {
		c.MinTarget = DefaultMinTarget
	}
	if c.MaxRemovalPct <= 0 {
		c.MaxRemovalPct = DefaultMaxRemovalPct
	}
	if c.MinSimilarity <= 0 {
		c.MinSimilarity = DefaultMinSimilarity
	}
	return c
}

// Compress detects long low-energy regions and truncates each to
// max(MinTarget, length × Ratio), keeping the region's leading edge. The
// returned clip is the original when nothing qualified or a guard tripped
// (result.RolledBack reports the latter).
func Compress(track audio.Clip, cfg Config) (audio.Clip, types.PauseCompressionResult) {
	cfg = cfg.withDefaults()
	result := types.PauseCompressionResult{EnvelopeSimilarity: 1}

	if track.Empty() {
		return track, result
	}

	trackLevel := track.DBFS()
	if math.IsInf(trackLevel, -1) {
		// All-silent track: nothing meaningful to protect or compress.
		return track, result
	}
	threshold := trackLevel - cfg.RelThresholdDB

	regions := track.DetectSilences(cfg.MaxPause, threshold)
	if len(regions) == 0 {
		return track, result
	}

	// Rebuild the track keeping each region's leading edge, walking regions
	// in time order so offsets into the source stay valid.
	out := audio.Clip{SampleRate: track.SampleRate}
	cursor := time.Duration(0)
	var err error
	for _, r := range regions {
		keep := time.Duration(float64(r.Dur()) * cfg.Ratio)
		if keep < cfg.MinTarget {
			keep = cfg.MinTarget
		}
		if keep >= r.Dur() {
			continue
		}
		out, err = out.Append(track.Slice(cursor, r.Start+keep))
		if err != nil {
			slog.Warn("pausecomp: append failed, keeping original", "error", err)
			return track, result
		}
		cursor = r.End
		result.Compressed++
		result.Removed += r.Dur() - keep
	}
	if result.Compressed == 0 {
		return track, result
	}
	out, err = out.Append(track.Slice(cursor, track.Duration()))
	if err != nil {
		slog.Warn("pausecomp: append failed, keeping original", "error", err)
		return track, types.PauseCompressionResult{EnvelopeSimilarity: 1}
	}

	result.RemovalPct = float64(result.Removed) / float64(track.Duration())
	result.EnvelopeSimilarity = audio.CosineSimilarity(
		track.Envelope(envelopeWidth),
		out.Envelope(envelopeWidth),
	)

	if result.RemovalPct > cfg.MaxRemovalPct || result.EnvelopeSimilarity < cfg.MinSimilarity {
		slog.Info("pausecomp: guard tripped, keeping original track",
			"removal_pct", result.RemovalPct,
			"envelope_similarity", result.EnvelopeSimilarity,
			"regions", result.Compressed,
		)
		result.RolledBack = true
		return track, result
	}

	slog.Debug("pausecomp: compressed pauses",
		"regions", result.Compressed,
		"removed", result.Removed,
		"removal_pct", result.RemovalPct,
	)
	return out, result
}
