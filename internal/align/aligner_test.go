package align

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/voxpage/voxpage/internal/audio"
)

// fakeProvider returns canned words, optionally shifted earlier by trim
// seconds to simulate a mastering pass that removed leading silence.
type fakeProvider struct {
	words []ProviderWord
	trim  float64
	dur   float64
	err   error
}

func (f *fakeProvider) Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]ProviderWord, len(f.words))
	for i, w := range f.words {
		out[i] = ProviderWord{Word: w.Word, Start: w.Start - f.trim, End: w.End - f.trim}
	}
	return &Response{Text: "", Duration: f.dur, Words: out}, nil
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake-1" }

func testAligner(p Provider) *Aligner {
	return New(p, zerolog.Nop())
}

func rawAsset(dur float64) audio.Asset {
	return audio.Asset{Path: "raw.wav", Duration: dur, SampleRate: 44100, Stage: audio.StageRaw}
}

func masteredAsset(dur float64) audio.Asset {
	return audio.Asset{Path: "mastered.wav", Duration: dur, SampleRate: 44100, Stage: audio.StageMastered}
}

// ── Align ────────────────────────────────────────────────────────────

func TestAlign_PairsTranscriptTokensWithProviderTiming(t *testing.T) {
	p := &fakeProvider{words: []ProviderWord{
		{Word: "Hello,", Start: 0.0, End: 0.4},
		{Word: "world.", Start: 0.5, End: 0.9},
	}}
	m, err := testAligner(p).Align(context.Background(), rawAsset(1.0), "hello world")
	if err != nil {
		t.Fatalf("Align() error = %v", err)
	}
	// Word text comes from the transcript, not the provider tokens.
	if m.Words[0].Word != "hello" || m.Words[1].Word != "world" {
		t.Errorf("words = %q %q, want transcript tokens", m.Words[0].Word, m.Words[1].Word)
	}
	if m.Words[1].Start != 0.5 {
		t.Errorf("Start[1] = %f, want provider timing 0.5", m.Words[1].Start)
	}
	if m.Text() != "hello world" {
		t.Errorf("Text() = %q, want %q", m.Text(), "hello world")
	}
	if err := m.Validate("hello world"); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestAlign_EmptyTranscript(t *testing.T) {
	p := &fakeProvider{}
	_, err := testAligner(p).Align(context.Background(), rawAsset(1.0), "   ")
	var mismatch *MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Align() error = %v, want *MismatchError", err)
	}
	if mismatch.Expected != 0 {
		t.Errorf("Expected = %d, want 0", mismatch.Expected)
	}
}

func TestAlign_WordCountMismatch(t *testing.T) {
	p := &fakeProvider{words: []ProviderWord{{Word: "hello", Start: 0, End: 0.4}}}
	_, err := testAligner(p).Align(context.Background(), rawAsset(1.0), "hello there world")
	var mismatch *MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Align() error = %v, want *MismatchError", err)
	}
	if mismatch.Expected != 3 || mismatch.Actual != 1 {
		t.Errorf("mismatch = %d/%d, want 3/1", mismatch.Expected, mismatch.Actual)
	}
}

func TestAlign_TotalDurationComesFromAsset(t *testing.T) {
	// A provider-reported duration drifting from the probed audio would put
	// the frame parity check out of step with the muxed file.
	p := &fakeProvider{
		words: []ProviderWord{{Word: "hello", Start: 0.0, End: 0.4}},
		dur:   1.4,
	}
	m, err := testAligner(p).Align(context.Background(), rawAsset(1.0), "hello")
	if err != nil {
		t.Fatalf("Align() error = %v", err)
	}
	if m.TotalDuration != 1.0 {
		t.Errorf("TotalDuration = %f, want probed 1.0", m.TotalDuration)
	}
}

func TestAlign_ClampsNegativeStart(t *testing.T) {
	// Mastering trimmed 0.2s into the word: [-0.20, 0.20) must clamp to
	// [0.00, 0.20).
	p := &fakeProvider{words: []ProviderWord{{Word: "Hello", Start: -0.2, End: 0.2}}}
	m, err := testAligner(p).Align(context.Background(), rawAsset(9.8), "Hello")
	if err != nil {
		t.Fatalf("Align() error = %v", err)
	}
	if m.Words[0].Start != 0 {
		t.Errorf("Start = %f, want 0 (clamped)", m.Words[0].Start)
	}
	if m.Words[0].End != 0.2 {
		t.Errorf("End = %f, want 0.2", m.Words[0].End)
	}
}

// ── Reconcile ────────────────────────────────────────────────────────

// Reconciliation must re-derive timestamps, not scale the raw ones: with a
// leading-silence trim of Δ every word shifts by Δ, which a global duration
// ratio cannot reproduce.
func TestReconcile_TrimShiftsNotScales(t *testing.T) {
	transcript := "one two three"
	raw := []ProviderWord{
		{Word: "one", Start: 2.0, End: 2.4},
		{Word: "two", Start: 2.5, End: 2.9},
		{Word: "three", Start: 3.0, End: 3.4},
	}
	const rawDur, trim = 10.0, 2.0

	rawModel, err := testAligner(&fakeProvider{words: raw}).Align(context.Background(), rawAsset(rawDur), transcript)
	if err != nil {
		t.Fatalf("raw Align() error = %v", err)
	}

	reconciled, err := Reconcile(context.Background(),
		testAligner(&fakeProvider{words: raw, trim: trim}),
		masteredAsset(rawDur-trim), transcript)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	scale := (rawDur - trim) / rawDur
	for i := range reconciled.Words {
		gotStart := reconciled.Words[i].Start
		wantStart := rawModel.Words[i].Start - trim
		if math.Abs(gotStart-wantStart) > 1e-9 {
			t.Errorf("word %d Start = %f, want shifted %f", i, gotStart, wantStart)
		}
		scaled := rawModel.Words[i].Start * scale
		if math.Abs(gotStart-scaled) < 1e-9 {
			t.Errorf("word %d Start %f equals naive scaling %f; trim is not a scale", i, gotStart, scaled)
		}
	}
}

func TestReconcile_RejectsRawAsset(t *testing.T) {
	_, err := Reconcile(context.Background(), testAligner(&fakeProvider{}), rawAsset(1.0), "hello")
	var serr *SyncError
	if !errors.As(err, &serr) {
		t.Errorf("Reconcile() error = %v, want *SyncError", err)
	}
}

func TestReconcile_MismatchBecomesSyncError(t *testing.T) {
	p := &fakeProvider{words: []ProviderWord{{Word: "hello", Start: 0, End: 0.4}}}
	_, err := Reconcile(context.Background(), testAligner(p), masteredAsset(1.0), "hello there")
	var serr *SyncError
	if !errors.As(err, &serr) {
		t.Errorf("Reconcile() error = %v, want *SyncError", err)
	}
}

func TestReconcile_OverlapBecomesSyncError(t *testing.T) {
	p := &fakeProvider{words: []ProviderWord{
		{Word: "a", Start: 0.0, End: 0.6},
		{Word: "b", Start: 0.5, End: 0.9}, // overlaps previous word
	}}
	_, err := Reconcile(context.Background(), testAligner(p), masteredAsset(1.0), "a b")
	var serr *SyncError
	if !errors.As(err, &serr) {
		t.Errorf("Reconcile() error = %v, want *SyncError", err)
	}
}
