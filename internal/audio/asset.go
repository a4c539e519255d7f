package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Stage identifies which side of the mastering boundary an asset is on.
type Stage string

const (
	StageRaw      Stage = "raw"
	StageMastered Stage = "mastered"
)

// Asset is one audio file in a job's working directory. A mastered asset is
// derived from exactly one raw asset and owns its own timestamp model; the
// raw and mastered models are never interchanged.
type Asset struct {
	Path       string  `json:"path"`
	Duration   float64 `json:"duration_seconds"`
	SampleRate int     `json:"sample_rate"`
	Stage      Stage   `json:"stage"`
}

// ffprobeBin is overridable in tests.
var ffprobeBin = "ffprobe"

// CheckFFmpeg reports whether ffmpeg and ffprobe are in PATH. Call once at
// startup; mastering and muxing cannot run without them.
func CheckFFmpeg() error {
	for _, bin := range []string{"ffmpeg", ffprobeBin} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%s not found in PATH: %w", bin, err)
		}
	}
	return nil
}

// Probe inspects an audio file and returns an Asset for it at the given
// stage. Fails if the file cannot be decoded or has zero duration.
func Probe(ctx context.Context, path string, stage Stage) (Asset, error) {
	out, err := exec.CommandContext(ctx, ffprobeBin,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "format=duration:stream=sample_rate",
		"-of", "default=noprint_wrappers=1",
		path,
	).Output()
	if err != nil {
		return Asset{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	asset := Asset{Path: path, Stage: stage}
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		key, val, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "duration":
			asset.Duration, _ = strconv.ParseFloat(val, 64)
		case "sample_rate":
			asset.SampleRate, _ = strconv.Atoi(val)
		}
	}

	if asset.Duration <= 0 {
		return Asset{}, fmt.Errorf("audio %s has zero duration", path)
	}
	return asset, nil
}
