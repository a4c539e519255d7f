package tts

import (
	"strings"
	"testing"
)

func TestSplitText_ShortTextSingleChunk(t *testing.T) {
	chunks := SplitText("Hello world. How are you?", 1000)
	if len(chunks) != 1 {
		t.Fatalf("len(chunks) = %d, want 1", len(chunks))
	}
	if chunks[0] != "Hello world. How are you?" {
		t.Errorf("chunk = %q", chunks[0])
	}
}

func TestSplitText_Empty(t *testing.T) {
	if chunks := SplitText("   ", 100); chunks != nil {
		t.Errorf("SplitText(whitespace) = %v, want nil", chunks)
	}
}

func TestSplitText_SentenceBoundaries(t *testing.T) {
	text := "First sentence here. Second sentence here. Third sentence here."
	chunks := SplitText(text, 45)
	if len(chunks) < 2 {
		t.Fatalf("len(chunks) = %d, want >= 2", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 45 {
			t.Errorf("chunk %d is %d chars, want <= 45", i, len(c))
		}
	}
}

func TestSplitText_JoinReproducesCanonicalText(t *testing.T) {
	text := "One two three. Four five six! Seven eight? Nine ten."
	chunks := SplitText(text, 20)
	if got := strings.Join(chunks, " "); got != text {
		t.Errorf("joined chunks = %q, want %q", got, text)
	}
}

func TestSplitText_OversizedSentenceFallsBackToWords(t *testing.T) {
	text := strings.Repeat("word ", 40) + "end"
	chunks := SplitText(text, 50)
	if len(chunks) < 2 {
		t.Fatalf("len(chunks) = %d, want >= 2", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 50 {
			t.Errorf("chunk %d is %d chars, want <= 50", i, len(c))
		}
	}
	if got := strings.Join(chunks, " "); got != strings.Join(strings.Fields(text), " ") {
		t.Errorf("joined chunks do not reproduce text")
	}
}
