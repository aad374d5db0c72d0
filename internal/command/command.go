// Package command recognises in-band spoken commands in the word stream:
// sound-effect trigger phrases and "intern" AI commands with their forward
// context. It is a single forward scan over word indices that mutates the
// word list in place (blanking and consuming matched spans) and emits the
// events the executor acts on later.
package command

import (
	"strings"
	"time"

	"github.com/MrWong99/recut/internal/textnorm"
	"github.com/MrWong99/recut/pkg/types"
)

const (
	// DefaultMaxContextWords bounds the forward scan for an end marker.
	DefaultMaxContextWords = 48

	// DefaultSilenceGap ends context capture when the speaker pauses this
	// long between words.
	DefaultSilenceGap = 2500 * time.Millisecond

	// DefaultWindowCap is the absolute context window measured from the
	// trigger token.
	DefaultWindowCap = 15 * time.Second

	// maxMarkerTokens is the longest recognised end-marker phrase.
	maxMarkerTokens = 4
)

// Config holds the alias maps and capture limits for one pipeline run.
// Built from [config.Config]; immutable during the run.
type Config struct {
	// CommandAliases maps normalized trigger tokens to their command mode
	// (e.g. "intern" → generic).
	CommandAliases map[string]types.CommandMode

	// SFXAliases maps trigger phrases to sound-effect file names. Multi-word
	// phrases are matched in the pre-pass; single tokens also resolve during
	// the main scan.
	SFXAliases map[string]string

	// EndMarkers are the spoken phrases that close an intern context
	// ("stop intern", "thanks intern").
	EndMarkers []string

	// MaxContextWords, SilenceGap and WindowCap bound context capture.
	// Zero values mean the package defaults.
	MaxContextWords int
	SilenceGap      time.Duration
	WindowCap       time.Duration

	// BlankTriggerToken removes the trigger word from the transcript.
	// Default false: the token is kept.
	BlankTriggerToken bool

	// RemoveSpokenPrompt is copied onto every emitted command event.
	RemoveSpokenPrompt bool
}

func (c Config) maxContextWords() int {
	if c.MaxContextWords > 0 {
		return c.MaxContextWords
	}
	return DefaultMaxContextWords
}

func (c Config) silenceGap() time.Duration {
	if c.SilenceGap > 0 {
		return c.SilenceGap
	}
	return DefaultSilenceGap
}

func (c Config) windowCap() time.Duration {
	if c.WindowCap > 0 {
		return c.WindowCap
	}
	return DefaultWindowCap
}

// sfxVariants compiles the SFX alias map for phrase matching, with loose
// spacing and plural tolerance.
func (c Config) sfxVariants() []textnorm.Variant {
	phrases := make([]textnorm.Phrase, 0, len(c.SFXAliases))
	for phrase, file := range c.SFXAliases {
		phrases = append(phrases, textnorm.Phrase{Text: phrase, Target: file})
	}
	return textnorm.CompilePhrases(phrases)
}

// markerVariants compiles the end-marker phrases. Markers longer than
// maxMarkerTokens are truncated at compile time rather than silently never
// matching.
func (c Config) markerVariants() []textnorm.Variant {
	phrases := make([]textnorm.Phrase, 0, len(c.EndMarkers))
	for _, m := range c.EndMarkers {
		fields := strings.Fields(m)
		if len(fields) > maxMarkerTokens {
			fields = fields[:maxMarkerTokens]
		}
		phrases = append(phrases, textnorm.Phrase{Text: strings.Join(fields, " "), Target: m})
	}
	return textnorm.CompilePhrases(phrases)
}

// DetectSFX is the pre-pass that matches multi-word (and collapsed) SFX
// trigger phrases before the main command scan. On a match the first word of
// the span receives the effect file and a "{trigger}" placeholder for
// transcript readability; every word of the span is consumed — the spoken cue
// is edited out of the audio before the effect is overlaid in its place.
func DetectSFX(words []types.Word, cfg Config) []types.SFXEvent {
	variants := cfg.sfxVariants()
	var events []types.SFXEvent

	for i := 0; i < len(words); {
		if words[i].Consumed {
			i++
			continue
		}

		matched := false
		for _, v := range variants {
			span, ok := textnorm.MatchAt(words, i, v)
			if !ok {
				continue
			}
			events = append(events, types.SFXEvent{
				Time:   words[i].Start,
				File:   v.Target,
				Phrase: v.Phrase,
			})
			words[i].SFXFile = v.Target
			words[i].Text = placeholder(v.Tokens[0])
			words[i].Consumed = true
			for j := i + 1; j < i+span; j++ {
				words[j].Text = ""
				words[j].Consumed = true
			}
			i += span
			matched = true
			break
		}
		if !matched {
			i++
		}
	}
	return events
}

// Extract runs the command state machine over the word list: one forward
// pass that resolves each unconsumed token against the alias maps, captures
// intern command context, and emits events. First-found command wins; there
// is no retroactive re-scan.
func Extract(words []types.Word, cfg Config) ([]types.CommandEvent, []types.SFXEvent) {
	markers := cfg.markerVariants()

	var commands []types.CommandEvent
	var sfx []types.SFXEvent

	for i := 0; i < len(words); {
		if words[i].Consumed {
			i++
			continue
		}

		token := textnorm.Normalize(words[i].Text)
		if token == "" {
			i++
			continue
		}

		if mode, ok := cfg.CommandAliases[token]; ok {
			ev, next := captureContext(words, i, token, mode, markers, cfg)
			words[i].IsCommandToken = true
			if cfg.BlankTriggerToken {
				words[i].Text = ""
			}
			commands = append(commands, ev)
			i = next
			continue
		}

		if file, ok := cfg.SFXAliases[token]; ok {
			// Single-token trigger the pre-pass did not claim. Legacy
			// behavior: the transcript keeps a "{token}" placeholder.
			sfx = append(sfx, types.SFXEvent{
				Time:   words[i].Start,
				File:   file,
				Phrase: words[i].Text,
			})
			words[i].SFXFile = file
			words[i].Text = placeholder(token)
			words[i].Consumed = true
			i++
			continue
		}

		i++
	}
	return commands, sfx
}

// captureContext collects forward context for the trigger at index i until an
// end marker, another command token, a silence gap, or the absolute window
// cap. It returns the event and the index at which the outer scan resumes.
func captureContext(words []types.Word, i int, token string, mode types.CommandMode, markers []textnorm.Variant, cfg Config) (types.CommandEvent, int) {
	ev := types.CommandEvent{
		Time:               words[i].Start,
		Token:              token,
		Mode:               mode,
		ContextEnd:         words[i].End,
		RemoveSpokenPrompt: cfg.RemoveSpokenPrompt,
	}

	var contextWords []string
	maxWords := cfg.maxContextWords()
	gap := cfg.silenceGap()
	winCap := cfg.windowCap()
	prevEnd := words[i].End
	next := i + 1

	for j := i + 1; j < len(words) && j <= i+maxWords; j++ {
		if words[j].Consumed {
			continue
		}

		// (d) absolute window cap from the trigger.
		if words[j].Start-words[i].End > winCap {
			next = j
			break
		}

		// (c) inter-word silence gap.
		if words[j].Start-prevEnd > gap {
			next = j
			break
		}

		// (a) end-marker phrase starting here.
		if mSpan, ok := matchMarkerAt(words, j, markers); ok {
			markEndMarker(&ev, words, j, mSpan)
			next = j + mSpan
			break
		}

		tok := textnorm.Normalize(words[j].Text)

		// (b) another command token — unless it is the tail of an end-marker
		// phrase that began just before it ("stop intern"): probe a small
		// backward window before giving up on the marker.
		if _, isCmd := cfg.CommandAliases[tok]; isCmd {
			if start, mSpan, ok := probeMarkerAround(words, j, markers); ok {
				markEndMarker(&ev, words, start, mSpan)
				next = start + mSpan
				// Drop context words that turned out to be marker tokens.
				overlap := j - start
				if overlap > len(contextWords) {
					overlap = len(contextWords)
				}
				contextWords = contextWords[:len(contextWords)-overlap]
				break
			}
			next = j
			break
		}

		if tok != "" {
			contextWords = append(contextWords, words[j].Text)
			ev.ContextEnd = words[j].End
		}
		prevEnd = words[j].End
		next = j + 1
	}

	ev.ContextText = strings.Join(contextWords, " ")
	return ev, next
}

// matchMarkerAt tries every compiled marker at index j.
func matchMarkerAt(words []types.Word, j int, markers []textnorm.Variant) (span int, ok bool) {
	for _, m := range markers {
		if span, ok := textnorm.MatchAt(words, j, m); ok {
			return span, true
		}
	}
	return 0, false
}

// probeMarkerAround looks for a marker match that covers index j but starts
// up to maxMarkerTokens−1 words earlier.
func probeMarkerAround(words []types.Word, j int, markers []textnorm.Variant) (start, span int, ok bool) {
	for back := 1; back < maxMarkerTokens; back++ {
		s := j - back
		if s < 0 {
			break
		}
		if mSpan, ok := matchMarkerAt(words, s, markers); ok && s+mSpan > j {
			return s, mSpan, true
		}
	}
	return 0, 0, false
}

// markEndMarker records the marker span on the event and blanks the marker
// words' transcript text. Audio flags are untouched: the executor cuts the
// marker span from the cleaned track at insertion time.
func markEndMarker(ev *types.CommandEvent, words []types.Word, start, span int) {
	ev.HasEndMarker = true
	ev.EndMarkerStart = words[start].Start
	ev.EndMarkerEnd = words[start+span-1].End
	ev.ContextEnd = ev.EndMarkerEnd
	for j := start; j < start+span && j < len(words); j++ {
		words[j].Text = ""
	}
}

func placeholder(token string) string {
	return "{" + token + "}"
}
