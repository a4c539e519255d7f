package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Profile selects the signal processing applied by Master. The zero value is
// invalid; use DefaultProfile as a starting point. Identical profile +
// identical input bytes produce identical ffmpeg invocations, so mastering is
// reproducible.
type Profile struct {
	// Loudness normalization (EBU R128). LoudnessTarget is in LUFS.
	LoudnessTarget float64 `json:"loudness_target"`
	TruePeak       float64 `json:"true_peak"`
	LoudnessRange  float64 `json:"loudness_range"`

	// Dynamic range compression.
	Compress          bool    `json:"compress"`
	CompressThreshold float64 `json:"compress_threshold"` // dB, must be <= 0

	// Voice EQ band. Zero disables the corresponding filter.
	HighpassHz int `json:"highpass_hz"`
	LowpassHz  int `json:"lowpass_hz"`

	// TrimLeadingSilence removes silence before the first word; this shifts
	// every word earlier, which is exactly why re-alignment after mastering
	// is mandatory.
	TrimLeadingSilence bool    `json:"trim_leading_silence"`
	SilenceThresholdDB float64 `json:"silence_threshold_db"` // e.g. -40

	// Lead-in/lead-out padding in seconds.
	LeadInSec  float64 `json:"lead_in_sec"`
	LeadOutSec float64 `json:"lead_out_sec"`
}

// DefaultProfile is the podcast-style voice chain used when a job doesn't
// specify its own.
func DefaultProfile() Profile {
	return Profile{
		LoudnessTarget:     -16,
		TruePeak:           -1.5,
		LoudnessRange:      11,
		Compress:           true,
		CompressThreshold:  -18,
		HighpassHz:         90,
		LowpassHz:          16000,
		TrimLeadingSilence: true,
		SilenceThresholdDB: -40,
	}
}

// MasteringError is a recoverable signal-processing failure. The caller
// degrades to the raw asset and its timestamps instead of failing the job.
type MasteringError struct {
	Op  string
	Err error
}

func (e *MasteringError) Error() string {
	if e.Err == nil {
		return "mastering: " + e.Op
	}
	return fmt.Sprintf("mastering: %s: %v", e.Op, e.Err)
}

func (e *MasteringError) Unwrap() error { return e.Err }

// filterChain builds the deterministic ffmpeg -af argument for the profile.
// Filter order matters and is fixed: trim, delay, compress, EQ, loudnorm, pad.
func (p Profile) filterChain() (string, error) {
	if p.LoudnessTarget > 0 || p.LoudnessTarget < -70 {
		return "", &MasteringError{Op: fmt.Sprintf("loudness target %.1f LUFS out of range [-70, 0]", p.LoudnessTarget)}
	}
	if p.Compress && p.CompressThreshold > 0 {
		return "", &MasteringError{Op: fmt.Sprintf("compressor threshold %.1f dB must be <= 0", p.CompressThreshold)}
	}
	if p.LeadInSec < 0 || p.LeadOutSec < 0 {
		return "", &MasteringError{Op: "negative lead-in/lead-out"}
	}
	if p.HighpassHz < 0 || p.LowpassHz < 0 || (p.LowpassHz > 0 && p.HighpassHz >= p.LowpassHz) {
		return "", &MasteringError{Op: fmt.Sprintf("invalid EQ band %d-%d Hz", p.HighpassHz, p.LowpassHz)}
	}

	var filters []string
	if p.TrimLeadingSilence {
		filters = append(filters, fmt.Sprintf(
			"silenceremove=start_periods=1:start_threshold=%.0fdB", p.SilenceThresholdDB))
	}
	if p.LeadInSec > 0 {
		filters = append(filters, fmt.Sprintf("adelay=%.0f:all=1", p.LeadInSec*1000))
	}
	if p.Compress {
		filters = append(filters, fmt.Sprintf(
			"acompressor=threshold=%.1fdB:ratio=3:attack=20:release=250", p.CompressThreshold))
	}
	if p.HighpassHz > 0 {
		filters = append(filters, fmt.Sprintf("highpass=f=%d", p.HighpassHz))
	}
	if p.LowpassHz > 0 {
		filters = append(filters, fmt.Sprintf("lowpass=f=%d", p.LowpassHz))
	}
	filters = append(filters, fmt.Sprintf(
		"loudnorm=I=%.1f:TP=%.1f:LRA=%.1f", p.LoudnessTarget, p.TruePeak, p.LoudnessRange))
	if p.LeadOutSec > 0 {
		filters = append(filters, fmt.Sprintf("apad=pad_dur=%.3f", p.LeadOutSec))
	}

	return strings.Join(filters, ","), nil
}

// Master applies the profile to a raw asset and writes a mastered WAV at
// outPath. Duration is re-probed, never assumed: trimming and padding change
// timing, and the caller must re-align against the result. On failure no
// partial output is left behind and the raw asset remains valid.
func Master(ctx context.Context, raw Asset, profile Profile, outPath string) (Asset, error) {
	if raw.Stage != StageRaw {
		return Asset{}, &MasteringError{Op: fmt.Sprintf("input asset is %s, want raw", raw.Stage)}
	}

	chain, err := profile.filterChain()
	if err != nil {
		return Asset{}, err
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", raw.Path,
		"-af", chain,
		"-ar", "44100",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		outPath,
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(outPath)
		return Asset{}, &MasteringError{Op: "ffmpeg: " + lastLine(stderr.String()), Err: err}
	}

	mastered, err := Probe(ctx, outPath, StageMastered)
	if err != nil {
		os.Remove(outPath)
		return Asset{}, &MasteringError{Op: "probe mastered output", Err: err}
	}
	return mastered, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
