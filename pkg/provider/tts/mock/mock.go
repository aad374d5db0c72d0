// Package mock provides a test double for the tts.Provider interface.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/recut/pkg/audio"
	"github.com/MrWong99/recut/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Text  string
	Voice string
}

// Provider is a mock implementation of tts.Provider. When Clip is unset it
// returns 500 ms of silence at 16 kHz per call, which is enough for splice
// arithmetic in tests.
type Provider struct {
	mu sync.Mutex

	// Clip is returned by Synthesize when non-empty.
	Clip audio.Clip

	// ClipPerChar, when > 0, sizes the returned silence by text length
	// instead, so tests can make answer length matter.
	ClipPerChar time.Duration

	// Err is returned by Synthesize when non-nil.
	Err error

	// Calls records every invocation in order.
	Calls []SynthesizeCall
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) (audio.Clip, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, SynthesizeCall{Text: text, Voice: voice})
	clip := p.Clip
	perChar := p.ClipPerChar
	err := p.Err
	p.mu.Unlock()

	if err != nil {
		return audio.Clip{}, err
	}
	if !clip.Empty() {
		return clip.Clone(), nil
	}
	d := 500 * time.Millisecond
	if perChar > 0 {
		d = time.Duration(len(text)) * perChar
	}
	return audio.Silence(d, 16000), nil
}

// CallCount returns the number of Synthesize invocations so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
