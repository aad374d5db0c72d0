// Package chunker splits long recordings into time-aligned chunks, dispatches
// them to workers through a task queue, and reassembles the cleaned results.
//
// The orchestrator is a small state machine: every chunk moves
// pending → dispatched → completed, or to failed when its retry budget is
// spent. Completion is observed solely through the blob store — a cleaned
// artifact appearing at the chunk's derived output URI. Ordering of the final
// concatenation is strictly by chunk index, never by completion time.
package chunker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/MrWong99/recut/internal/observe"
	"github.com/MrWong99/recut/pkg/audio"
	"github.com/MrWong99/recut/pkg/queue"
	"github.com/MrWong99/recut/pkg/store"
	"github.com/MrWong99/recut/pkg/types"
)

// ErrChunkedModeFailed signals that chunked processing could not run to
// completion. The caller is expected to retry via direct processing, not to
// partially reassemble.
var ErrChunkedModeFailed = errors.New("chunked processing failed")

const (
	defaultThreshold     = 30 * time.Minute
	defaultChunkLen      = 10 * time.Minute
	defaultPollInterval  = 5 * time.Second
	defaultRetryWindow   = 600 * time.Second
	defaultMaxRetries    = 3
	defaultGlobalTimeout = 1800 * time.Second

	defaultDispatchWorkers = 4
	defaultDispatchRate    = 8

	// lastChunkTailPad is kept after the final word of the last chunk; audio
	// beyond it is trailing silence and is dropped before processing.
	lastChunkTailPad = 500 * time.Millisecond
)

// Config tunes the orchestrator. Zero values take the documented defaults.
type Config struct {
	// Threshold is the source duration above which chunked processing kicks
	// in. Default: 30m.
	Threshold time.Duration

	// ChunkLen is the nominal chunk length. Boundaries snap forward so no
	// word is cut in half. Default: 10m.
	ChunkLen time.Duration

	// PollInterval is the sleep between completion scans. Default: 5s.
	PollInterval time.Duration

	// RetryWindow is how long a dispatched chunk may stay without a cleaned
	// artifact before it is re-dispatched. Default: 600s.
	RetryWindow time.Duration

	// MaxRetries caps re-dispatches per chunk. Default: 3.
	MaxRetries int

	// GlobalTimeout fails the whole job, naming the incomplete chunks.
	// Default: 1800s.
	GlobalTimeout time.Duration

	// DispatchWorkers bounds concurrent submit calls. Default: 4.
	DispatchWorkers int

	// DispatchRate limits submits per second. Default: 8.
	DispatchRate float64
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = defaultThreshold
	}
	if c.ChunkLen <= 0 {
		c.ChunkLen = defaultChunkLen
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.RetryWindow <= 0 {
		c.RetryWindow = defaultRetryWindow
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.GlobalTimeout <= 0 {
		c.GlobalTimeout = defaultGlobalTimeout
	}
	if c.DispatchWorkers <= 0 {
		c.DispatchWorkers = defaultDispatchWorkers
	}
	if c.DispatchRate <= 0 {
		c.DispatchRate = defaultDispatchRate
	}
	return c
}

// Orchestrator drives chunked processing for one or more jobs. It is the sole
// reader/writer of each job's chunk table; a job's Process call is strictly
// sequential, so no locking is needed beyond the store and queue contracts.
type Orchestrator struct {
	store   store.Store
	queue   queue.Queue
	cfg     Config
	metrics *observe.Metrics
	log     *slog.Logger
}

// New creates an [Orchestrator]. A nil metrics disables instrumentation.
func New(st store.Store, q queue.Queue, cfg Config, metrics *observe.Metrics, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{store: st, queue: q, cfg: cfg.withDefaults(), metrics: metrics, log: log}
}

// addInFlight moves the chunks-in-flight gauge. No-op without metrics.
func (o *Orchestrator) addInFlight(ctx context.Context, n int64) {
	if o.metrics == nil || n == 0 {
		return
	}
	o.metrics.ChunksInFlight.Add(ctx, n)
}

// ShouldChunk reports whether a source of duration d crosses the chunking
// threshold.
func (o *Orchestrator) ShouldChunk(d time.Duration) bool {
	return d > o.cfg.Threshold
}

// piece is one pre-upload chunk: its audio slice and rebased words.
type piece struct {
	clip  audio.Clip
	words []types.Word
	start time.Duration
}

// Process runs the full chunked flow for one episode: split, upload,
// dispatch, poll, reassemble. cleanupOptions is forwarded opaquely to every
// chunk task. Any failure wraps [ErrChunkedModeFailed] so the caller can fall
// back to direct processing.
func (o *Orchestrator) Process(ctx context.Context, episodeID string, src audio.Clip, words []types.Word, cleanupOptions json.RawMessage) (audio.Clip, error) {
	pieces := split(src, words, o.cfg.ChunkLen)
	o.log.Info("splitting source for chunked processing",
		"episode_id", episodeID,
		"source_dur", src.Duration(),
		"chunks", len(pieces))

	chunks, err := o.uploadAll(ctx, episodeID, pieces)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("%w: %v", ErrChunkedModeFailed, err)
	}
	if err := o.dispatchAll(ctx, episodeID, chunks, len(chunks), cleanupOptions); err != nil {
		return audio.Clip{}, fmt.Errorf("%w: %v", ErrChunkedModeFailed, err)
	}
	cleaned, err := o.await(ctx, episodeID, chunks, len(pieces), cleanupOptions)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("%w: %v", ErrChunkedModeFailed, err)
	}
	return o.reassemble(chunks, cleaned)
}

// split cuts the source into contiguous, time-aligned pieces. The nominal
// boundary is every ChunkLen; it snaps forward past any word that straddles
// it so word spans never split across chunks. Word timestamps are rebased to
// the chunk start.
func split(src audio.Clip, words []types.Word, chunkLen time.Duration) []piece {
	total := src.Duration()
	var pieces []piece

	var start time.Duration
	wi := 0
	for start < total {
		end := start + chunkLen
		if end > total {
			end = total
		}

		// Collect words starting in [start, end), pushing the boundary past
		// any word that runs over it.
		var chunkWords []types.Word
		for wi < len(words) && words[wi].Start < end {
			w := words[wi]
			if w.End > end {
				end = w.End
			}
			w.Start -= start
			w.End -= start
			chunkWords = append(chunkWords, w)
			wi++
		}

		pieces = append(pieces, piece{
			clip:  src.Slice(start, end),
			words: chunkWords,
			start: start,
		})
		start = end
	}
	return pieces
}

// uploadAll stores every piece's audio and transcript. A single failed or
// empty URI aborts chunked mode entirely — dispatch is all-or-nothing.
func (o *Orchestrator) uploadAll(ctx context.Context, episodeID string, pieces []piece) ([]*types.Chunk, error) {
	chunks := make([]*types.Chunk, len(pieces))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.DispatchWorkers)

	for i, p := range pieces {
		chunk := &types.Chunk{
			Index:  i,
			ID:     uuid.NewString(),
			Status: types.ChunkPending,
		}
		chunks[i] = chunk
		g.Go(func() error {
			base := fmt.Sprintf("jobs/%s/chunks/%03d-%s", episodeID, i, chunk.ID)

			var wav bytes.Buffer
			if err := audio.EncodeWAV(&wav, p.clip); err != nil {
				return fmt.Errorf("encode chunk %d: %w", i, err)
			}
			audioURI, err := o.store.Upload(gctx, wav.Bytes(), base+"/audio.wav", "audio/wav")
			if err != nil || audioURI == "" {
				return fmt.Errorf("upload chunk %d audio: %w", i, err)
			}

			var tr bytes.Buffer
			if err := types.EncodeTranscript(&tr, p.words); err != nil {
				return fmt.Errorf("encode chunk %d transcript: %w", i, err)
			}
			trURI, err := o.store.Upload(gctx, tr.Bytes(), base+"/transcript.json", "application/json")
			if err != nil || trURI == "" {
				return fmt.Errorf("upload chunk %d transcript: %w", i, err)
			}

			chunk.AudioURI = audioURI
			chunk.TranscriptURI = trURI
			chunk.CleanedURI = base + "/cleaned.wav"
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// dispatchAll submits one task per chunk, bounded by the worker limit and the
// submit rate. A failed submit fails the whole chunked job.
func (o *Orchestrator) dispatchAll(ctx context.Context, episodeID string, chunks []*types.Chunk, total int, cleanupOptions json.RawMessage) error {
	limiter := rate.NewLimiter(rate.Limit(o.cfg.DispatchRate), 1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.DispatchWorkers)

	for _, chunk := range chunks {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}
			return o.dispatch(gctx, episodeID, chunk, total, cleanupOptions)
		})
	}
	return g.Wait()
}

// dispatch submits one chunk task and marks the chunk dispatched.
func (o *Orchestrator) dispatch(ctx context.Context, episodeID string, chunk *types.Chunk, total int, cleanupOptions json.RawMessage) error {
	_, err := o.queue.Submit(ctx, queue.Payload{
		EpisodeID:      episodeID,
		ChunkID:        chunk.ID,
		ChunkIndex:     chunk.Index,
		TotalChunks:    total,
		AudioURI:       chunk.AudioURI,
		TranscriptURI:  chunk.TranscriptURI,
		OutputURI:      chunk.CleanedURI,
		CleanupOptions: cleanupOptions,
	})
	if err != nil {
		return fmt.Errorf("dispatch chunk %d: %w", chunk.Index, err)
	}
	chunk.Status = types.ChunkDispatched
	chunk.DispatchedAt = time.Now()
	return nil
}

// await polls the store until every chunk has produced a cleaned artifact,
// re-dispatching stuck chunks, and returns the artifacts keyed by index.
func (o *Orchestrator) await(ctx context.Context, episodeID string, chunks []*types.Chunk, total int, cleanupOptions json.RawMessage) (map[int][]byte, error) {
	deadline := time.Now().Add(o.cfg.GlobalTimeout)
	cleaned := make(map[int][]byte, len(chunks))

	o.addInFlight(ctx, int64(len(chunks)))
	// Completions decrement one by one below; whatever never completed is
	// cleared here so the gauge cannot drift on a failed job.
	defer func() { o.addInFlight(ctx, -int64(len(chunks)-len(cleaned))) }()

	for {
		for _, chunk := range chunks {
			if chunk.Status != types.ChunkDispatched {
				continue
			}
			data, err := o.store.Download(ctx, chunk.CleanedURI)
			switch {
			case err == nil:
				chunk.Status = types.ChunkCompleted
				cleaned[chunk.Index] = data
				o.addInFlight(ctx, -1)
				o.log.Info("chunk completed",
					"episode_id", episodeID, "chunk", chunk.Index)

			case errors.Is(err, store.ErrNotFound):
				if time.Since(chunk.DispatchedAt) < o.cfg.RetryWindow {
					continue
				}
				if chunk.Retries >= o.cfg.MaxRetries {
					chunk.Status = types.ChunkFailed
					return nil, fmt.Errorf("chunk %d (%s) exceeded %d retries",
						chunk.Index, chunk.ID, o.cfg.MaxRetries)
				}
				chunk.Retries++
				if o.metrics != nil {
					o.metrics.ChunkRetries.Add(ctx, 1)
				}
				o.log.Warn("chunk stuck, re-dispatching",
					"episode_id", episodeID,
					"chunk", chunk.Index,
					"retry", chunk.Retries)
				if err := o.dispatch(ctx, episodeID, chunk, total, cleanupOptions); err != nil {
					return nil, err
				}

			default:
				return nil, fmt.Errorf("poll chunk %d: %w", chunk.Index, err)
			}
		}

		if len(cleaned) == len(chunks) {
			return cleaned, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("global timeout after %s, incomplete chunks: %v",
				o.cfg.GlobalTimeout, incompleteIDs(chunks))
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(o.cfg.PollInterval):
		}
	}
}

// incompleteIDs lists the IDs of chunks that never completed, in index order.
func incompleteIDs(chunks []*types.Chunk) []string {
	var ids []string
	for _, c := range chunks {
		if c.Status != types.ChunkCompleted {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// reassemble decodes the cleaned artifacts and concatenates them strictly by
// chunk index.
func (o *Orchestrator) reassemble(chunks []*types.Chunk, cleaned map[int][]byte) (audio.Clip, error) {
	indices := make([]int, 0, len(cleaned))
	for i := range cleaned {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	clips := make([]audio.Clip, 0, len(indices))
	for _, i := range indices {
		clip, err := audio.DecodeWAV(bytes.NewReader(cleaned[i]))
		if err != nil {
			return audio.Clip{}, fmt.Errorf("%w: decode cleaned chunk %d: %v", ErrChunkedModeFailed, i, err)
		}
		clips = append(clips, clip)
	}
	out, err := audio.Concat(clips...)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("%w: concat: %v", ErrChunkedModeFailed, err)
	}
	return out, nil
}
