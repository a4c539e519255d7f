package render

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/rs/zerolog"
	"github.com/voxpage/voxpage/internal/timestamps"
)

func testModel(t *testing.T, transcript string, words []timestamps.Word, dur float64) *timestamps.Model {
	t.Helper()
	m := &timestamps.Model{
		Words:          words,
		TotalDuration:  dur,
		TranscriptHash: timestamps.HashTranscript(transcript),
	}
	if err := m.Validate(transcript); err != nil {
		t.Fatalf("test model invalid: %v", err)
	}
	return m
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 320
	cfg.Height = 180
	cfg.FontSize = 16
	return cfg
}

// ── Paginate / ScreenFor ─────────────────────────────────────────────

func TestPaginate(t *testing.T) {
	tests := []struct {
		name        string
		words       int
		perLine     int
		perScreen   int
		wantScreens int
	}{
		{"exact_fit", 24, 6, 4, 1},
		{"one_over", 25, 6, 4, 2},
		{"single_word", 1, 6, 4, 1},
		{"empty", 0, 6, 4, 0},
		{"many", 100, 6, 4, 5}, // ceil(100/24)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			screens := Paginate(tt.words, tt.perLine, tt.perScreen)
			if len(screens) != tt.wantScreens {
				t.Fatalf("len(screens) = %d, want %d", len(screens), tt.wantScreens)
			}
		})
	}
}

func TestPaginate_NoStraddlingAndContiguous(t *testing.T) {
	screens := Paginate(25, 6, 4)

	next := 0
	for si, s := range screens {
		if s.FirstWord != next {
			t.Errorf("screen %d FirstWord = %d, want %d", si, s.FirstWord, next)
		}
		for _, line := range s.Lines {
			if len(line) > 6 {
				t.Errorf("screen %d line has %d words, want <= 6", si, len(line))
			}
			for _, idx := range line {
				if idx != next {
					t.Fatalf("word index %d out of order, want %d", idx, next)
				}
				next++
			}
		}
		if s.LastWord != next-1 {
			t.Errorf("screen %d LastWord = %d, want %d", si, s.LastWord, next-1)
		}
	}
	if next != 25 {
		t.Errorf("paginated %d words, want 25", next)
	}
}

func TestPaginate_Deterministic(t *testing.T) {
	a := Paginate(50, 5, 3)
	b := Paginate(50, 5, 3)
	if len(a) != len(b) {
		t.Fatalf("screen counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].FirstWord != b[i].FirstWord || a[i].LastWord != b[i].LastWord {
			t.Errorf("screen %d differs between runs", i)
		}
	}
}

func TestScreenFor(t *testing.T) {
	tests := []struct {
		idx  int
		want int
	}{
		{0, 0}, {23, 0}, {24, 1}, {47, 1}, {48, 2}, {-1, 0},
	}
	for _, tt := range tests {
		if got := ScreenFor(tt.idx, 6, 4); got != tt.want {
			t.Errorf("ScreenFor(%d) = %d, want %d", tt.idx, got, tt.want)
		}
	}
}

// ── FrameCount ───────────────────────────────────────────────────────

func TestFrameCount(t *testing.T) {
	tests := []struct {
		name string
		dur  float64
		fps  int
		want int
	}{
		{"ten_seconds_30fps", 10.0, 30, 301}, // k = 0..300, final tick at t=10.0
		{"fractional", 1.05, 30, 32},         // floor(31.5)+1
		{"zero_duration", 0, 30, 0},
		{"sub_tick", 0.01, 30, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FrameCount(tt.dur, tt.fps); got != tt.want {
				t.Errorf("FrameCount(%v, %d) = %d, want %d", tt.dur, tt.fps, got, tt.want)
			}
		})
	}
}

// ── FrameAt ──────────────────────────────────────────────────────────

func containsColor(img *image.RGBA, c color.RGBA) bool {
	for i := 0; i < len(img.Pix); i += 4 {
		if img.Pix[i] == c.R && img.Pix[i+1] == c.G && img.Pix[i+2] == c.B {
			return true
		}
	}
	return false
}

// Raw audio 10s, "Hello" at [0.00, 0.40), mastering trimmed 0.20s of leading
// silence: reconciled interval is [0.00, 0.20) and frame 0 must show "Hello"
// highlighted.
func TestFrameAt_FrameZeroHighlightsFirstWord(t *testing.T) {
	m := testModel(t, "Hello", []timestamps.Word{
		{Word: "Hello", Start: 0.0, End: 0.2, Index: 0},
	}, 9.8)

	cfg := smallConfig()
	r, err := NewRenderer(cfg, m, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}

	frame := r.FrameAt(0)
	if !containsColor(frame, cfg.HighlightColor) {
		t.Error("frame 0 has no highlighted pixels, want active word highlighted")
	}
}

func TestFrameAt_SilenceGapHasNoHighlight(t *testing.T) {
	m := testModel(t, "a b", []timestamps.Word{
		{Word: "a", Start: 0.0, End: 0.2, Index: 0},
		{Word: "b", Start: 2.0, End: 2.2, Index: 1},
	}, 3.0)

	cfg := smallConfig()
	r, err := NewRenderer(cfg, m, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}

	// t = 1.0 falls in the silence gap: the completed word stays on screen
	// in the regular color, nothing highlighted.
	frame := r.FrameAt(cfg.FPS)
	if containsColor(frame, cfg.HighlightColor) {
		t.Error("silence-gap frame contains highlight color, want none")
	}
	if !containsColor(frame, cfg.TextColor) {
		t.Error("silence-gap frame shows no text, want last completed word visible")
	}
}

func TestFrameAt_Deterministic(t *testing.T) {
	m := testModel(t, "one two three", []timestamps.Word{
		{Word: "one", Start: 0.0, End: 0.4, Index: 0},
		{Word: "two", Start: 0.4, End: 0.8, Index: 1},
		{Word: "three", Start: 0.8, End: 1.2, Index: 2},
	}, 1.5)

	cfg := smallConfig()
	r1, err := NewRenderer(cfg, m, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	r2, err := NewRenderer(cfg, m, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}

	for _, k := range []int{0, 13, 27, r1.FrameCount() - 1} {
		a := r1.FrameAt(k)
		b := r2.FrameAt(k)
		if !bytes.Equal(a.Pix, b.Pix) {
			t.Errorf("frame %d differs between identical renderers", k)
		}
		// And re-rendering the same tick on the same renderer.
		c := r1.FrameAt(k)
		if !bytes.Equal(a.Pix, c.Pix) {
			t.Errorf("frame %d differs between calls on the same renderer", k)
		}
	}
}

// ── Render ───────────────────────────────────────────────────────────

type collectSink struct {
	frames [][]byte
}

func (c *collectSink) WriteFrame(img *image.RGBA) error {
	pix := make([]byte, len(img.Pix))
	copy(pix, img.Pix)
	c.frames = append(c.frames, pix)
	return nil
}

func TestRender_EmitsExactFrameCountInOrder(t *testing.T) {
	m := testModel(t, "a b c d e", []timestamps.Word{
		{Word: "a", Start: 0.0, End: 0.1, Index: 0},
		{Word: "b", Start: 0.1, End: 0.2, Index: 1},
		{Word: "c", Start: 0.2, End: 0.3, Index: 2},
		{Word: "d", Start: 0.3, End: 0.4, Index: 3},
		{Word: "e", Start: 0.4, End: 0.5, Index: 4},
	}, 0.5)

	r, err := NewRenderer(smallConfig(), m, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}

	sink := &collectSink{}
	if err := r.Render(context.Background(), sink, 4); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if len(sink.frames) != r.FrameCount() {
		t.Fatalf("rendered %d frames, want %d", len(sink.frames), r.FrameCount())
	}

	// Parallel render matches the serial per-tick frames.
	for _, k := range []int{0, 7, len(sink.frames) - 1} {
		want := r.FrameAt(k)
		if !bytes.Equal(sink.frames[k], want.Pix) {
			t.Errorf("streamed frame %d differs from FrameAt(%d)", k, k)
		}
	}
}

func TestRender_IdempotentAcrossRuns(t *testing.T) {
	m := testModel(t, "hello world", []timestamps.Word{
		{Word: "hello", Start: 0.0, End: 0.3, Index: 0},
		{Word: "world", Start: 0.3, End: 0.6, Index: 1},
	}, 0.7)

	r, err := NewRenderer(smallConfig(), m, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}

	a := &collectSink{}
	b := &collectSink{}
	if err := r.Render(context.Background(), a, 3); err != nil {
		t.Fatalf("first Render() error = %v", err)
	}
	if err := r.Render(context.Background(), b, 1); err != nil {
		t.Fatalf("second Render() error = %v", err)
	}
	if len(a.frames) != len(b.frames) {
		t.Fatalf("frame counts differ: %d vs %d", len(a.frames), len(b.frames))
	}
	for k := range a.frames {
		if !bytes.Equal(a.frames[k], b.frames[k]) {
			t.Fatalf("frame %d differs between renders", k)
		}
	}
}

// ── ParseHexColor ────────────────────────────────────────────────────

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.RGBA
		wantErr bool
	}{
		{"#FFD54F", color.RGBA{0xFF, 0xD5, 0x4F, 0xFF}, false},
		{"1a1a2e", color.RGBA{0x1A, 0x1A, 0x2E, 0xFF}, false},
		{"  #000000 ", color.RGBA{0, 0, 0, 0xFF}, false},
		{"xyz", color.RGBA{}, true},
		{"#FFF", color.RGBA{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHexColor(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHexColor(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseHexColor(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
