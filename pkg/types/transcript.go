package types

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"
)

// transcriptWord is the wire form of a single word. Timestamps are seconds.
// Some transcription providers emit the token under "word", others under
// "text"; both are accepted.
type transcriptWord struct {
	Word    string  `json:"word,omitempty"`
	Text    string  `json:"text,omitempty"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker,omitempty"`
}

// DecodeTranscript reads a JSON array of word records from r and returns the
// ordered word list with timestamps converted to [time.Duration].
//
// Each record must carry "start" and "end" in seconds and the token under
// either "word" or "text". A record whose end precedes its start is rejected.
func DecodeTranscript(r io.Reader) ([]Word, error) {
	var raw []transcriptWord
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("types: decode transcript: %w", err)
	}

	words := make([]Word, 0, len(raw))
	for i, tw := range raw {
		text := tw.Word
		if text == "" {
			text = tw.Text
		}
		if tw.End < tw.Start {
			return nil, fmt.Errorf("types: transcript word %d: end %.3fs precedes start %.3fs", i, tw.End, tw.Start)
		}
		words = append(words, Word{
			Text:    text,
			Start:   Seconds(tw.Start),
			End:     Seconds(tw.End),
			Speaker: tw.Speaker,
		})
	}
	return words, nil
}

// EncodeTranscript writes words to w in the same JSON wire form accepted by
// [DecodeTranscript]. Used when uploading per-chunk transcripts.
func EncodeTranscript(w io.Writer, words []Word) error {
	raw := make([]transcriptWord, len(words))
	for i, wd := range words {
		raw[i] = transcriptWord{
			Word:    wd.Text,
			Start:   wd.Start.Seconds(),
			End:     wd.End.Seconds(),
			Speaker: wd.Speaker,
		}
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(raw); err != nil {
		return fmt.Errorf("types: encode transcript: %w", err)
	}
	return nil
}

// Seconds converts a floating-point seconds value to a [time.Duration],
// rounding to the nearest nanosecond.
func Seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
