package audio

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// ── filterChain ──────────────────────────────────────────────────────

func TestFilterChain_Deterministic(t *testing.T) {
	p := DefaultProfile()
	a, err := p.filterChain()
	if err != nil {
		t.Fatalf("filterChain() error = %v", err)
	}
	b, err := p.filterChain()
	if err != nil {
		t.Fatalf("filterChain() error = %v", err)
	}
	if a != b {
		t.Errorf("filterChain not deterministic: %q vs %q", a, b)
	}
}

func TestFilterChain_DefaultProfile(t *testing.T) {
	chain, err := DefaultProfile().filterChain()
	if err != nil {
		t.Fatalf("filterChain() error = %v", err)
	}
	for _, want := range []string{"silenceremove=", "acompressor=", "highpass=f=90", "lowpass=f=16000", "loudnorm=I=-16.0"} {
		if !strings.Contains(chain, want) {
			t.Errorf("filterChain() = %q, missing %q", chain, want)
		}
	}
	// Loudnorm must come after EQ, pad last.
	if strings.Index(chain, "loudnorm") < strings.Index(chain, "lowpass") {
		t.Errorf("loudnorm should follow EQ in %q", chain)
	}
}

func TestFilterChain_MinimalProfile(t *testing.T) {
	p := Profile{LoudnessTarget: -16, TruePeak: -1.5, LoudnessRange: 11}
	chain, err := p.filterChain()
	if err != nil {
		t.Fatalf("filterChain() error = %v", err)
	}
	if chain != "loudnorm=I=-16.0:TP=-1.5:LRA=11.0" {
		t.Errorf("filterChain() = %q, want loudnorm only", chain)
	}
}

func TestFilterChain_LeadInOut(t *testing.T) {
	p := Profile{LoudnessTarget: -16, TruePeak: -1.5, LoudnessRange: 11, LeadInSec: 0.5, LeadOutSec: 1.25}
	chain, err := p.filterChain()
	if err != nil {
		t.Fatalf("filterChain() error = %v", err)
	}
	if !strings.Contains(chain, "adelay=500:all=1") {
		t.Errorf("filterChain() = %q, missing adelay", chain)
	}
	if !strings.HasSuffix(chain, "apad=pad_dur=1.250") {
		t.Errorf("filterChain() = %q, apad should be last", chain)
	}
}

func TestFilterChain_Invalid(t *testing.T) {
	tests := []struct {
		name string
		p    Profile
	}{
		{"positive_loudness", Profile{LoudnessTarget: 3}},
		{"positive_compress_threshold", Profile{LoudnessTarget: -16, Compress: true, CompressThreshold: 5}},
		{"negative_lead_in", Profile{LoudnessTarget: -16, LeadInSec: -1}},
		{"inverted_eq_band", Profile{LoudnessTarget: -16, HighpassHz: 8000, LowpassHz: 300}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.p.filterChain()
			var merr *MasteringError
			if !errors.As(err, &merr) {
				t.Errorf("filterChain() error = %v, want *MasteringError", err)
			}
		})
	}
}

func TestMaster_RejectsMasteredInput(t *testing.T) {
	_, err := Master(context.Background(), Asset{Path: "x.wav", Stage: StageMastered}, DefaultProfile(), "out.wav")
	var merr *MasteringError
	if !errors.As(err, &merr) {
		t.Errorf("Master() error = %v, want *MasteringError", err)
	}
}
