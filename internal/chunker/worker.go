package chunker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/recut/internal/observe"
	"github.com/MrWong99/recut/pkg/audio"
	"github.com/MrWong99/recut/pkg/queue"
	"github.com/MrWong99/recut/pkg/store"
	"github.com/MrWong99/recut/pkg/types"
)

// RunFunc cleans one chunk: the decoded audio, its rebased words, whether
// this is the job's last chunk, and the opaque cleanup options from the task
// payload.
type RunFunc func(ctx context.Context, clip audio.Clip, words []types.Word, isLast bool, cleanupOptions json.RawMessage) (audio.Clip, error)

// Worker builds a [queue.WorkerFunc] that downloads a chunk's inputs, runs
// the cleanup, and uploads the artifact to the payload's output URI.
//
// The result depends only on the payload, and each chunk's output URI is
// unique, so running the same payload twice writes the same artifact — the
// idempotency the at-least-once queue contract requires.
//
// A nil metrics disables instrumentation.
func Worker(st store.Store, run RunFunc, metrics *observe.Metrics, log *slog.Logger) queue.WorkerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context, p queue.Payload) error {
		start := time.Now()
		raw, err := st.Download(ctx, p.AudioURI)
		if err != nil {
			return fmt.Errorf("download chunk audio: %w", err)
		}
		clip, err := audio.DecodeWAV(bytes.NewReader(raw))
		if err != nil {
			return fmt.Errorf("decode chunk audio: %w", err)
		}

		trRaw, err := st.Download(ctx, p.TranscriptURI)
		if err != nil {
			return fmt.Errorf("download chunk transcript: %w", err)
		}
		words, err := types.DecodeTranscript(bytes.NewReader(trRaw))
		if err != nil {
			return fmt.Errorf("decode chunk transcript: %w", err)
		}

		isLast := p.ChunkIndex == p.TotalChunks-1
		if isLast && len(words) > 0 {
			// Drop trailing silence after the final word, keeping a short pad.
			tail := words[len(words)-1].End + lastChunkTailPad
			if tail < clip.Duration() {
				clip = clip.Slice(0, tail)
			}
		}

		cleaned, err := run(ctx, clip, words, isLast, p.CleanupOptions)
		if err != nil {
			return fmt.Errorf("clean chunk %d: %w", p.ChunkIndex, err)
		}

		var out bytes.Buffer
		if err := audio.EncodeWAV(&out, cleaned); err != nil {
			return fmt.Errorf("encode cleaned chunk: %w", err)
		}
		if _, err := st.Upload(ctx, out.Bytes(), p.OutputURI, "audio/wav"); err != nil {
			return fmt.Errorf("upload cleaned chunk: %w", err)
		}
		if metrics != nil {
			metrics.ChunkDuration.Record(ctx, time.Since(start).Seconds())
		}
		log.Info("chunk cleaned",
			"episode_id", p.EpisodeID,
			"chunk", p.ChunkIndex,
			"in_dur", clip.Duration(),
			"out_dur", cleaned.Duration())
		return nil
	}
}
