package align

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/voxpage/voxpage/internal/audio"
	"github.com/voxpage/voxpage/internal/timestamps"
)

// MismatchError reports a word-count disagreement between the transcript and
// the provider's transcription of the audio.
type MismatchError struct {
	Expected int // tokenized transcript word count
	Actual   int // provider word count
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("alignment mismatch: transcript has %d words, provider returned %d", e.Expected, e.Actual)
}

// Aligner derives a timestamp model from an audio asset and its transcript.
// It is stage-agnostic and side-effect free: the post-mastering re-alignment
// is just a second call with the mastered asset.
type Aligner struct {
	provider Provider
	log      zerolog.Logger
}

// New creates an Aligner backed by the given STT provider.
func New(provider Provider, log zerolog.Logger) *Aligner {
	return &Aligner{
		provider: provider,
		log:      log.With().Str("component", "align").Logger(),
	}
}

// Align maps every transcript word to a time interval in the asset.
//
// The word text of the returned model always comes from the transcript
// tokens and only the timing comes from the provider, so the model
// reproduces the transcript exactly whenever the counts agree; a count
// disagreement is a MismatchError. Negative provider starts (seen when
// mastering trims into the first word) are clamped to zero.
func (a *Aligner) Align(ctx context.Context, asset audio.Asset, transcript string) (*timestamps.Model, error) {
	tokens := timestamps.Tokenize(transcript)
	if len(tokens) == 0 {
		return nil, &MismatchError{Expected: 0, Actual: 0}
	}

	resp, err := a.provider.Transcribe(ctx, asset.Path, TranscribeOpts{
		Prompt: transcript,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.provider.Name(), err)
	}

	if len(resp.Words) != len(tokens) {
		a.log.Warn().
			Str("stage", string(asset.Stage)).
			Int("expected", len(tokens)).
			Int("actual", len(resp.Words)).
			Msg("provider word count disagrees with transcript")
		return nil, &MismatchError{Expected: len(tokens), Actual: len(resp.Words)}
	}

	// The probed asset duration describes the exact audio that gets muxed;
	// provider-reported durations can drift and serve only as a fallback.
	total := asset.Duration
	if total <= 0 {
		total = resp.Duration
	}

	words := make([]timestamps.Word, len(tokens))
	for i, tok := range tokens {
		start := resp.Words[i].Start
		end := resp.Words[i].End
		if start < 0 {
			start = 0
		}
		if end <= start {
			// Providers occasionally emit zero-width words; give them a
			// minimal interval so the [start, end) contract holds.
			end = start + 0.01
		}
		words[i] = timestamps.Word{Word: tok, Start: start, End: end, Index: i}
	}

	model := &timestamps.Model{
		Words:          words,
		TotalDuration:  total,
		TranscriptHash: timestamps.HashTranscript(transcript),
	}

	a.log.Debug().
		Str("stage", string(asset.Stage)).
		Int("words", len(words)).
		Float64("duration", total).
		Msg("alignment complete")

	return model, nil
}
