package tts

import (
	"context"

	"github.com/voxpage/voxpage/internal/timestamps"
)

// VoiceConfig selects the voice and model for a synthesis request.
type VoiceConfig struct {
	VoiceID  string
	ModelID  string
	Language string
}

// Result is the output of one synthesis call. Coarse is an optional
// provider-supplied timestamp hint; it is never authoritative. The
// alignment adapter always derives the model that rendering uses.
type Result struct {
	Audio  []byte // WAV bytes
	Coarse *timestamps.Model
}

// Synthesizer is the opaque text-to-speech collaborator. Implementations
// must be safe for concurrent use across jobs.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice VoiceConfig) (*Result, error)
	Name() string
}
