package mux

import (
	"errors"
	"testing"
)

func TestExpectedFrames(t *testing.T) {
	tests := []struct {
		name string
		dur  float64
		fps  int
		want int
	}{
		{"exact", 10.0, 30, 300},
		{"rounds_up", 10.02, 30, 301}, // 300.6
		{"rounds_down", 10.01, 30, 300},
		{"short", 0.5, 30, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpectedFrames(tt.dur, tt.fps); got != tt.want {
				t.Errorf("ExpectedFrames(%v, %d) = %d, want %d", tt.dur, tt.fps, got, tt.want)
			}
		})
	}
}

func TestCheckParity(t *testing.T) {
	// 10s at 30fps expects 300 frames; one frame of drift is allowed in
	// either direction, more is a sync failure.
	tests := []struct {
		name    string
		frames  int
		wantErr bool
	}{
		{"exact", 300, false},
		{"one_over", 301, false}, // renderer emits floor(d*fps)+1 ticks
		{"one_under", 299, false},
		{"two_over", 302, true},
		{"two_under", 298, true},
		{"way_off", 150, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckParity(tt.frames, 10.0, 30)
			if tt.wantErr {
				var serr *SyncError
				if !errors.As(err, &serr) {
					t.Fatalf("CheckParity(%d) = %v, want *SyncError", tt.frames, err)
				}
				if serr.Expected != 300 {
					t.Errorf("Expected = %d, want 300", serr.Expected)
				}
			} else if err != nil {
				t.Errorf("CheckParity(%d) = %v, want nil", tt.frames, err)
			}
		})
	}
}

// The renderer's tick rule (floor(d*fps)+1 frames) must always land within
// the muxer's tolerance of round(d*fps), whatever the duration.
func TestRendererTickRuleWithinTolerance(t *testing.T) {
	for _, dur := range []float64{0.1, 0.5, 1.0, 9.97, 10.0, 61.38, 3600.5} {
		frames := int(dur*30) + 1 // floor + final tick
		if err := CheckParity(frames, dur, 30); err != nil {
			t.Errorf("duration %v: %v", dur, err)
		}
	}
}
