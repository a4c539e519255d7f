package render

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg" // background decoding
	_ "image/png"
	"math"
	"os"
	"sync"

	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/sync/errgroup"

	"github.com/voxpage/voxpage/internal/timestamps"
)

// Renderer produces the frame sequence for one job. Every frame is a pure
// function of (Config, Model, tick index): no mutable state survives between
// FrameAt calls, so frames are computable in any order and two renders of
// the same inputs are byte-identical.
type Renderer struct {
	cfg     Config
	model   *timestamps.Model
	fnt     *opentype.Font
	bg      *image.RGBA
	screens []Screen
	log     zerolog.Logger

	// face for the serial FrameAt path; opentype faces are not safe for
	// concurrent use, so parallel rendering creates one per worker.
	mu   sync.Mutex
	face font.Face
}

// NewRenderer prepares fonts, background, and pagination for a model.
func NewRenderer(cfg Config, model *timestamps.Model, log zerolog.Logger) (*Renderer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	fnt, err := loadFont(cfg.FontPath)
	if err != nil {
		return nil, err
	}

	bg, err := loadBackground(cfg)
	if err != nil {
		return nil, err
	}

	r := &Renderer{
		cfg:     cfg,
		model:   model,
		fnt:     fnt,
		bg:      bg,
		screens: Paginate(len(model.Words), cfg.WordsPerLine, cfg.LinesPerScreen),
		log:     log.With().Str("component", "render").Logger(),
	}
	r.face, err = r.newFace()
	if err != nil {
		return nil, err
	}
	return r, nil
}

func loadFont(path string) (*opentype.Font, error) {
	data := goregular.TTF
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read font: %w", err)
		}
		data = b
	}
	fnt, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	return fnt, nil
}

// loadBackground decodes the background asset and scales it to the frame
// size, or fills a solid color when no asset is configured. The background
// is a read-only shared input; the renderer copies it into every frame.
func loadBackground(cfg Config) (*image.RGBA, error) {
	bounds := image.Rect(0, 0, cfg.Width, cfg.Height)
	bg := image.NewRGBA(bounds)

	if cfg.BackgroundPath == "" {
		draw.Draw(bg, bounds, image.NewUniform(cfg.BackgroundColor), image.Point{}, draw.Src)
		return bg, nil
	}

	f, err := os.Open(cfg.BackgroundPath)
	if err != nil {
		return nil, fmt.Errorf("open background: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode background: %w", err)
	}
	xdraw.ApproxBiLinear.Scale(bg, bounds, src, src.Bounds(), xdraw.Src, nil)
	return bg, nil
}

func (r *Renderer) newFace() (font.Face, error) {
	return opentype.NewFace(r.fnt, &opentype.FaceOptions{
		Size:    r.cfg.FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// FrameCount returns the number of output ticks for a duration: one frame
// per tick t=k/fps for k = 0 .. floor(duration*fps). The final tick lands at
// or just past the duration; nothing is rendered beyond it.
func FrameCount(duration float64, fps int) int {
	if duration <= 0 || fps <= 0 {
		return 0
	}
	return int(math.Floor(duration*float64(fps))) + 1
}

// FrameCount returns the renderer's total tick count.
func (r *Renderer) FrameCount() int {
	return FrameCount(r.model.TotalDuration, r.cfg.FPS)
}

// FrameAt renders the frame for tick k.
func (r *Renderer) FrameAt(k int) *image.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frameAt(k, r.face)
}

func (r *Renderer) frameAt(k int, face font.Face) *image.RGBA {
	t := float64(k) / float64(r.cfg.FPS)

	active := r.model.ActiveIndex(t)
	display := active
	if display < 0 {
		// Silence gap: keep showing the most recently completed word's
		// screen with no highlight.
		display = r.model.LastStartedIndex(t)
	}

	img := image.NewRGBA(r.bg.Bounds())
	copy(img.Pix, r.bg.Pix)

	if len(r.screens) == 0 {
		return img
	}
	screenIdx := ScreenFor(display, r.cfg.WordsPerLine, r.cfg.LinesPerScreen)
	if screenIdx >= len(r.screens) {
		screenIdx = len(r.screens) - 1
	}
	r.drawScreen(img, face, r.screens[screenIdx], active)
	return img
}

func (r *Renderer) drawScreen(img *image.RGBA, face font.Face, s Screen, active int) {
	metrics := face.Metrics()
	lineH := metrics.Height.Ceil() * 3 / 2
	blockH := lineH * len(s.Lines)
	top := (r.cfg.Height-blockH)/2 + metrics.Ascent.Ceil()

	spaceW := font.MeasureString(face, " ")

	for li, line := range s.Lines {
		lineW := fixed.I(0)
		for wi, idx := range line {
			if wi > 0 {
				lineW += spaceW
			}
			lineW += font.MeasureString(face, r.model.Words[idx].Word)
		}

		x := fixed.I(r.cfg.Width/2) - lineW/2
		y := top + li*lineH

		d := font.Drawer{
			Dst:  img,
			Face: face,
			Dot:  fixed.Point26_6{X: x, Y: fixed.I(y)},
		}
		for wi, idx := range line {
			if wi > 0 {
				d.DrawString(" ")
			}
			c := r.cfg.TextColor
			if idx == active {
				c = r.cfg.HighlightColor
			}
			d.Src = image.NewUniform(c)
			d.DrawString(r.model.Words[idx].Word)
		}
	}
}

// Sink receives rendered frames strictly in tick order.
type Sink interface {
	WriteFrame(img *image.RGBA) error
}

// Render streams every frame, in order, into the sink. Frames are computed
// in parallel batches (each frame depends only on its tick) but emitted
// sequentially because only the muxer cares about temporal order.
func (r *Renderer) Render(ctx context.Context, sink Sink, workers int) error {
	if workers < 1 {
		workers = 1
	}
	total := r.FrameCount()
	batch := workers * 8

	r.log.Debug().Int("frames", total).Int("workers", workers).Msg("rendering frames")

	for base := 0; base < total; base += batch {
		n := batch
		if base+n > total {
			n = total - base
		}

		frames := make([]*image.RGBA, n)
		g, gctx := errgroup.WithContext(ctx)
		chunk := (n + workers - 1) / workers
		for w := 0; w < n; w += chunk {
			lo, hi := w, w+chunk
			if hi > n {
				hi = n
			}
			g.Go(func() error {
				face, err := r.newFace()
				if err != nil {
					return err
				}
				for i := lo; i < hi; i++ {
					if err := gctx.Err(); err != nil {
						return err
					}
					frames[i] = r.frameAt(base+i, face)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for i, img := range frames {
			if err := sink.WriteFrame(img); err != nil {
				return fmt.Errorf("write frame %d: %w", base+i, err)
			}
		}
	}
	return nil
}
