package align

import "context"

// Provider is the interface for speech-to-text backends used to recover
// word-level timing from synthesized audio.
type Provider interface {
	Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error)
	Name() string  // "whisper"
	Model() string // model identifier for logs
}

// TranscribeOpts are per-request options for an STT provider.
type TranscribeOpts struct {
	Temperature float64
	Language    string
	Prompt      string // initial_prompt / domain vocabulary
}

// Response is the common transcription result from any provider.
type Response struct {
	Text     string
	Language string
	Duration float64 // audio duration in seconds
	Words    []ProviderWord
}

// ProviderWord is a timestamped word as returned by an STT provider. Its
// text may differ from the transcript token (punctuation, casing); the
// aligner keeps the timing and substitutes the transcript's own word.
type ProviderWord struct {
	Word  string
	Start float64 // seconds
	End   float64 // seconds
}
