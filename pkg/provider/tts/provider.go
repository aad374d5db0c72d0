// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service and presents a one-shot
// batch interface: the executor synthesises a complete answer, post-processes
// it (loudness match, fade-out), and splices it into the cleaned track. There
// is no streaming surface — this is an offline editor, not a live pipeline.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/recut/pkg/audio"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text as speech using the named voice and returns
	// the decoded clip. voice is provider-specific ("alloy", "nova", ...);
	// an empty voice selects the provider default.
	//
	// Returns an error if synthesis fails or the provider's audio cannot be
	// decoded. Callers are expected to substitute fallback audio rather than
	// abort the job.
	Synthesize(ctx context.Context, text, voice string) (audio.Clip, error)
}
