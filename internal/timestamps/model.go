package timestamps

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Word is one transcript word aligned to a time interval in an audio track.
// The interval is half-open: the word is active for t in [Start, End).
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"` // seconds
	End   float64 `json:"end"`   // seconds
	Index int     `json:"index"` // ordinal position in the transcript
}

// Model is the canonical word-to-time alignment for one audio asset.
// A model belongs to exactly one audio asset; the raw and mastered variants
// of the same narration each carry their own model.
type Model struct {
	Words          []Word  `json:"words"`
	TotalDuration  float64 `json:"total_duration"` // seconds
	TranscriptHash string  `json:"transcript_hash"`
}

// Tokenize splits a transcript into words using the pipeline's whitespace
// rule. Joining the result with single spaces is the canonical transcript
// form that coverage validation checks against.
func Tokenize(transcript string) []string {
	return strings.Fields(transcript)
}

// Canonical returns the whitespace-normalized form of a transcript.
func Canonical(transcript string) string {
	return strings.Join(Tokenize(transcript), " ")
}

// HashTranscript returns the identity hash recorded in a model, computed
// over the canonical transcript form so incidental whitespace differences
// don't break the identity check.
func HashTranscript(transcript string) string {
	sum := sha256.Sum256([]byte(Canonical(transcript)))
	return hex.EncodeToString(sum[:])
}

// ValidationError reports a violated model invariant. It is fatal for the
// job that hits it: a model that fails validation must never be rendered.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "timestamp validation failed: " + e.Reason
}

// Validate checks the model invariants against its source transcript:
// indices strictly increasing and contiguous from 0, Start < End per word,
// no backward time travel between consecutive words (zero-width gaps are
// fine), word count and text matching the tokenized transcript, and no word
// ending past TotalDuration by more than rounding slop.
func (m *Model) Validate(transcript string) error {
	tokens := Tokenize(transcript)
	if len(m.Words) != len(tokens) {
		return &ValidationError{Reason: fmt.Sprintf("word count %d does not cover transcript (%d words)", len(m.Words), len(tokens))}
	}
	if got := HashTranscript(transcript); m.TranscriptHash != got {
		return &ValidationError{Reason: "transcript hash mismatch"}
	}
	for i, w := range m.Words {
		if w.Index != i {
			return &ValidationError{Reason: fmt.Sprintf("word %d has index %d", i, w.Index)}
		}
		if w.Word != tokens[i] {
			return &ValidationError{Reason: fmt.Sprintf("word %d is %q, transcript has %q", i, w.Word, tokens[i])}
		}
		if w.Start < 0 {
			return &ValidationError{Reason: fmt.Sprintf("word %d starts at %.3f", i, w.Start)}
		}
		if w.End <= w.Start {
			return &ValidationError{Reason: fmt.Sprintf("word %d has empty interval [%.3f, %.3f)", i, w.Start, w.End)}
		}
		if i > 0 && w.Start < m.Words[i-1].End {
			return &ValidationError{Reason: fmt.Sprintf("word %d starts at %.3f before word %d ends at %.3f", i, w.Start, i-1, m.Words[i-1].End)}
		}
	}
	if n := len(m.Words); n > 0 {
		if last := m.Words[n-1].End; last > m.TotalDuration+durationSlop {
			return &ValidationError{Reason: fmt.Sprintf("last word ends at %.3f, past total duration %.3f", last, m.TotalDuration)}
		}
	}
	return nil
}

// durationSlop absorbs rounding between provider timings and probed audio
// duration when checking that no word ends past TotalDuration.
const durationSlop = 0.05

// ActiveIndex returns the index of the word whose [Start, End) interval
// contains t, or -1 during a silence gap (or before the first word).
func (m *Model) ActiveIndex(t float64) int {
	i := m.LastStartedIndex(t)
	if i >= 0 && t < m.Words[i].End {
		return i
	}
	return -1
}

// LastStartedIndex returns the index of the last word with Start <= t,
// or -1 if t precedes every word. During silence this is the most recently
// completed word, which the renderer shows unhighlighted.
func (m *Model) LastStartedIndex(t float64) int {
	// First word with Start > t; the one before it is the answer.
	i := sort.Search(len(m.Words), func(i int) bool {
		return m.Words[i].Start > t
	})
	return i - 1
}

// Text reassembles the transcript from the model's words using the
// whitespace-join rule.
func (m *Model) Text() string {
	parts := make([]string, len(m.Words))
	for i, w := range m.Words {
		parts[i] = w.Word
	}
	return strings.Join(parts, " ")
}
