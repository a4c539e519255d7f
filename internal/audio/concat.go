package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Concat joins audio files in order into a single WAV at outPath. Used when
// a long transcript was synthesized in chunks. Inputs are re-encoded to the
// pipeline's canonical format so chunk boundaries don't introduce codec
// seams.
func Concat(ctx context.Context, paths []string, outPath string) error {
	if len(paths) == 0 {
		return fmt.Errorf("no audio files to concatenate")
	}
	if len(paths) == 1 {
		data, err := os.ReadFile(paths[0])
		if err != nil {
			return fmt.Errorf("read audio: %w", err)
		}
		return os.WriteFile(outPath, data, 0o644)
	}

	listPath := filepath.Join(filepath.Dir(outPath), ".concat_list.txt")
	var list strings.Builder
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", p, err)
		}
		fmt.Fprintf(&list, "file '%s'\n", abs)
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	defer os.Remove(listPath)

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-ar", "44100",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		outPath,
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(outPath)
		return fmt.Errorf("ffmpeg concat: %w: %s", err, lastLine(stderr.String()))
	}
	return nil
}
