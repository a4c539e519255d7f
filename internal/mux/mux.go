package mux

import (
	"context"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/voxpage/voxpage/internal/audio"
)

// ToleranceFrames is how far the rendered frame count may drift from
// round(audio duration * fps) before the container is considered out of
// sync. One frame absorbs the rounding at the tail tick; anything beyond it
// means the timestamps and the audio disagree.
const ToleranceFrames = 1

// SyncError means the frame count and the audio duration disagree beyond
// tolerance. It is fatal: the mismatch is never papered over by truncating
// or padding the video.
type SyncError struct {
	Frames   int
	Expected int
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("mux sync failure: %d frames for an audio track expecting %d (tolerance %d)",
		e.Frames, e.Expected, ToleranceFrames)
}

// ExpectedFrames returns the frame count implied by an audio duration.
func ExpectedFrames(duration float64, fps int) int {
	return int(math.Round(duration * float64(fps)))
}

// CheckParity validates the frame count against the audio duration.
func CheckParity(frames int, duration float64, fps int) error {
	expected := ExpectedFrames(duration, fps)
	if diff := frames - expected; diff < -ToleranceFrames || diff > ToleranceFrames {
		return &SyncError{Frames: frames, Expected: expected}
	}
	return nil
}

// Options configure one mux run.
type Options struct {
	Audio   audio.Asset // the exact asset the timestamps were derived from
	OutPath string      // final artifact path
	FPS     int
	Width   int
	Height  int
}

// Sink streams raw RGBA frames into an ffmpeg process that muxes them with
// the audio track. Close finalizes: it verifies frame/audio parity and only
// then moves the container to its final path, so a failed run never leaves
// a partial artifact behind.
type Sink struct {
	opts    Options
	tmpPath string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stderr  *strings.Builder
	frames  int
	log     zerolog.Logger
}

// Start launches the ffmpeg mux process writing to a temporary file next to
// the final path.
func Start(ctx context.Context, opts Options, log zerolog.Logger) (*Sink, error) {
	if opts.FPS <= 0 || opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid mux geometry %dx%d@%d", opts.Width, opts.Height, opts.FPS)
	}

	tmpPath := filepath.Join(filepath.Dir(opts.OutPath), "."+filepath.Base(opts.OutPath)+".tmp")

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-r", strconv.Itoa(opts.FPS),
		"-i", "-",
		"-i", opts.Audio.Path,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "18",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
		"-f", "mp4",
		tmpPath,
	)

	stderr := &strings.Builder{}
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	return &Sink{
		opts:    opts,
		tmpPath: tmpPath,
		cmd:     cmd,
		stdin:   stdin,
		stderr:  stderr,
		log:     log.With().Str("component", "mux").Logger(),
	}, nil
}

// WriteFrame streams one frame. Frames must arrive in tick order and match
// the configured geometry.
func (s *Sink) WriteFrame(img *image.RGBA) error {
	b := img.Bounds()
	if b.Dx() != s.opts.Width || b.Dy() != s.opts.Height {
		return fmt.Errorf("frame %d is %dx%d, want %dx%d", s.frames, b.Dx(), b.Dy(), s.opts.Width, s.opts.Height)
	}
	if _, err := s.stdin.Write(img.Pix); err != nil {
		return fmt.Errorf("pipe frame %d: %w", s.frames, err)
	}
	s.frames++
	return nil
}

// Frames returns how many frames have been written so far.
func (s *Sink) Frames() int { return s.frames }

// Close finishes the stream, waits for ffmpeg, checks frame/audio parity,
// and atomically renames the temporary container into place. On any failure
// the temporary file is removed and the final path is untouched.
func (s *Sink) Close() error {
	s.stdin.Close()
	if err := s.cmd.Wait(); err != nil {
		os.Remove(s.tmpPath)
		return fmt.Errorf("ffmpeg mux: %w: %s", err, lastLine(s.stderr.String()))
	}

	if err := CheckParity(s.frames, s.opts.Audio.Duration, s.opts.FPS); err != nil {
		os.Remove(s.tmpPath)
		return err
	}

	if err := os.Rename(s.tmpPath, s.opts.OutPath); err != nil {
		os.Remove(s.tmpPath)
		return fmt.Errorf("finalize container: %w", err)
	}

	s.log.Debug().
		Int("frames", s.frames).
		Float64("audio_seconds", s.opts.Audio.Duration).
		Str("path", s.opts.OutPath).
		Msg("container finalized")
	return nil
}

// Abort tears down a mux run without finalizing, removing the temp file.
func (s *Sink) Abort() {
	s.stdin.Close()
	s.cmd.Wait()
	os.Remove(s.tmpPath)
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
