package render

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Config is the immutable per-job render configuration. It is created once
// at submission and never mutated while frames are being produced.
type Config struct {
	FPS    int
	Width  int
	Height int

	FontPath string  // empty = embedded Go Regular
	FontSize float64 // points

	TextColor      color.RGBA // regular words
	HighlightColor color.RGBA // the active word
	BackgroundPath string     // empty = solid BackgroundColor
	BackgroundColor color.RGBA

	WordsPerLine   int
	LinesPerScreen int
}

// DefaultConfig returns the 720p defaults used when a job doesn't override
// layout settings.
func DefaultConfig() Config {
	return Config{
		FPS:             30,
		Width:           1280,
		Height:          720,
		FontSize:        42,
		TextColor:       color.RGBA{R: 0xE8, G: 0xE8, B: 0xE8, A: 0xFF},
		HighlightColor:  color.RGBA{R: 0xFF, G: 0xD5, B: 0x4F, A: 0xFF},
		BackgroundColor: color.RGBA{R: 0x1A, G: 0x1A, B: 0x2E, A: 0xFF},
		WordsPerLine:    6,
		LinesPerScreen:  4,
	}
}

// Validate checks the config is renderable.
func (c Config) Validate() error {
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %d", c.FPS)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions %dx%d", c.Width, c.Height)
	}
	if c.FontSize <= 0 {
		return fmt.Errorf("font size must be positive, got %.1f", c.FontSize)
	}
	if c.WordsPerLine <= 0 || c.LinesPerScreen <= 0 {
		return fmt.Errorf("invalid layout policy %d words x %d lines", c.WordsPerLine, c.LinesPerScreen)
	}
	return nil
}

// ParseHexColor parses "#RRGGBB" or "RRGGBB" into an opaque RGBA color.
func ParseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	return color.RGBA{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n), A: 0xFF}, nil
}
