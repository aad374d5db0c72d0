// Package queue defines the chunk task submission contract.
//
// The transport behind it (a hosted task queue, a job runner, ...) is an
// external collaborator. The orchestrator only relies on one promise:
// eventually a cleaned-audio artifact appears at the payload's output URI, or
// it does not — completion is observed through the blob store, never through
// the queue.
//
// Dispatch is at-least-once: a stuck chunk is re-dispatched with the same
// payload, so two workers may process the same chunk concurrently. Workers
// MUST therefore be idempotent on their output path — processing the same
// payload twice must yield the same artifact at the same URI. Output URIs are
// unique per chunk, which makes duplicate writes harmless and removes any
// need for distributed locking.
package queue

import (
	"context"
	"encoding/json"
)

// Payload describes one chunk processing task.
type Payload struct {
	// EpisodeID identifies the parent job.
	EpisodeID string `json:"episode_id"`

	// ChunkID uniquely identifies this chunk within the job.
	ChunkID string `json:"chunk_id"`

	// ChunkIndex is the chunk's position; reassembly is strictly by index.
	ChunkIndex int `json:"chunk_index"`

	// TotalChunks lets the worker detect the final chunk (which trims
	// trailing silence after its last word).
	TotalChunks int `json:"total_chunks"`

	// AudioURI and TranscriptURI locate the chunk inputs in the blob store.
	AudioURI      string `json:"audio_uri"`
	TranscriptURI string `json:"transcript_uri"`

	// OutputURI is the derived path the worker must write the cleaned chunk
	// to. The orchestrator polls this exact URI.
	OutputURI string `json:"output_uri"`

	// CleanupOptions carries the pipeline options, opaque to the transport.
	CleanupOptions json.RawMessage `json:"cleanup_options,omitempty"`

	// RequesterID attributes the work for quota/audit purposes.
	RequesterID string `json:"requester_id,omitempty"`
}

// Queue submits chunk tasks for asynchronous processing.
//
// Implementations must be safe for concurrent use.
type Queue interface {
	// Submit enqueues one chunk task and returns a transport task handle.
	// A returned error means the task was definitely not accepted; after a
	// nil error the only completion signal is the artifact at
	// payload.OutputURI.
	Submit(ctx context.Context, payload Payload) (taskID string, err error)
}
