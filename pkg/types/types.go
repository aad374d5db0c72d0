// Package types defines the shared data model used across all recut packages.
//
// These types form the lingua franca between the transcript analysis stages,
// the audio rebuilder, the command executor, and the chunk orchestrator. They
// are intentionally minimal — each package defines its own domain types, but
// cross-cutting data structures live here to avoid circular imports.
package types

import "time"

// Word is one timestamped token of the transcript. The word list is owned by
// a single pipeline run and is mutated in place by the analysis stages:
// entries are blanked or flagged, never deleted, so downstream algorithms can
// address words by index throughout the run.
//
// Invariant: Start <= End.
type Word struct {
	// Text is the transcribed token. Stages blank it (or replace it with a
	// "{trigger}" placeholder) when the word is edited out of the transcript.
	Text string

	// Start and End are the word's span in the original audio timeline.
	Start time.Duration
	End   time.Duration

	// Speaker identifies the speaker when diarization data is present.
	Speaker string

	// IsFiller marks the word as part of a detected filler span. The audio
	// rebuilder skips the audio of filler words.
	IsFiller bool

	// IsCommandToken marks the word as a recognised command trigger.
	IsCommandToken bool

	// SFXFile is set on the first word of a matched sound-effect phrase and
	// names the effect clip to overlay at this word's position.
	SFXFile string

	// Consumed marks words swallowed by a multi-word phrase match. Consumed
	// words carry no text and produce no audio in the rebuilt track.
	Consumed bool
}

// Dur returns the length of the word's span.
func (w Word) Dur() time.Duration {
	return w.End - w.Start
}

// CommandMode distinguishes the two spoken command forms.
type CommandMode string

const (
	// ModeGeneric is the plain "intern" command: intent is resolved at
	// execution time (spoken insert or show note).
	ModeGeneric CommandMode = "generic"

	// ModeShowNote forces the command's output into the show notes without
	// any audio insertion.
	ModeShowNote CommandMode = "shownote"
)

// CommandIntent is the resolved action for a command event.
type CommandIntent string

const (
	IntentGenerateAudio  CommandIntent = "generate_audio"
	IntentAddToShowNotes CommandIntent = "add_to_shownotes"
)

// IsValid reports whether i is a recognised intent.
func (i CommandIntent) IsValid() bool {
	return i == IntentGenerateAudio || i == IntentAddToShowNotes
}

// CommandEvent is one recognised spoken command with its captured context.
// Created by the command extractor, consumed by the executor; it lives for
// one pipeline run only.
type CommandEvent struct {
	// Time is the trigger token's start in the original timeline.
	Time time.Duration

	// Token is the trigger word as spoken (normalised form).
	Token string

	// Mode selects generic intent resolution or forced show-note output.
	Mode CommandMode

	// ContextText is the captured forward context the command operates on.
	ContextText string

	// ContextEnd is the end of the captured context in the original timeline:
	// the end marker's end time when one was found, otherwise the last
	// captured word's end time.
	ContextEnd time.Duration

	// EndMarkerStart/EndMarkerEnd delimit the spoken end-marker phrase in the
	// original timeline. Valid only when HasEndMarker is true.
	HasEndMarker   bool
	EndMarkerStart time.Duration
	EndMarkerEnd   time.Duration

	// RemoveSpokenPrompt requests that the spoken prompt's window in the
	// cleaned track be replaced with equal-duration silence before the
	// synthesised answer is inserted.
	RemoveSpokenPrompt bool

	// IntentOverride forces the intent, bypassing the classifier.
	// Empty means classify at execution time.
	IntentOverride CommandIntent

	// AnswerOverride supplies the answer text directly, bypassing the
	// answer provider. Empty means generate.
	AnswerOverride string
}

// SFXEvent is one matched sound-effect trigger. Created by the SFX pre-pass,
// consumed by the executor within the same run.
type SFXEvent struct {
	// Time is the overlay position in the original timeline.
	Time time.Duration

	// File is the configured effect clip name, resolved against the media root.
	File string

	// Phrase is the spoken trigger phrase that matched.
	Phrase string
}

// FlubberKind tags a FlubberOutcome.
type FlubberKind string

const (
	// FlubberAbort cancels the entire job with no partial output.
	FlubberAbort FlubberKind = "abort"

	// FlubberRollback blanks the transcript text of a preceding span.
	FlubberRollback FlubberKind = "rollback"
)

// FlubberOutcome is the result of flubber trigger detection.
type FlubberOutcome struct {
	Kind FlubberKind

	// Reason is the human-readable abort reason. Set only for FlubberAbort.
	Reason string

	// BlankFrom/BlankTo are the inclusive word-index bounds of the rollback
	// span. Set only for FlubberRollback.
	BlankFrom int
	BlankTo   int
}

// ChunkStatus is the lifecycle state of one chunk in the orchestrator's
// in-memory status table.
type ChunkStatus string

const (
	ChunkPending    ChunkStatus = "pending"
	ChunkDispatched ChunkStatus = "dispatched"
	ChunkCompleted  ChunkStatus = "completed"
	ChunkFailed     ChunkStatus = "failed"
)

// Chunk is one time-aligned slice of a long recording. Created at split time,
// mutated by the orchestrator's polling loop, discarded after reassembly.
// The orchestrator is the sole reader/writer of chunk state.
type Chunk struct {
	// Index orders the chunk within the job. Reassembly is strictly by Index,
	// never by completion time.
	Index int

	// ID uniquely identifies the chunk within its job.
	ID string

	// AudioURI and TranscriptURI locate the chunk's inputs in the blob store.
	AudioURI      string
	TranscriptURI string

	Status ChunkStatus

	// CleanedURI locates the cleaned-chunk artifact once the worker has
	// produced it.
	CleanedURI string

	// DispatchedAt starts the per-chunk retry window.
	DispatchedAt time.Time

	// Retries counts re-dispatches of a stuck chunk.
	Retries int
}

// PauseCompressionResult summarises a pause-compression pass, including
// whether the guards discarded it.
type PauseCompressionResult struct {
	// Compressed is the number of silence regions that were shortened.
	Compressed int

	// Removed is the total duration cut from the track.
	Removed time.Duration

	// RemovalPct is Removed divided by the original track length.
	RemovalPct float64

	// EnvelopeSimilarity is the cosine similarity of the RMS energy envelopes
	// before and after compression.
	EnvelopeSimilarity float64

	// RolledBack reports that a guard tripped and the original track was
	// returned unchanged.
	RolledBack bool
}
