package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/voxpage/voxpage/internal/jobstore"
	"github.com/voxpage/voxpage/internal/pipeline"
)

// debounceDelay coalesces rapid Create+Write events on the same file and
// gives the writer time to finish before the document is read.
const debounceDelay = 500 * time.Millisecond

// processedDirName is where submitted documents are moved inside the inbox
// so they are not picked up again.
const processedDirName = "processed"

// Submitter is the slice of the pipeline the watcher needs.
type Submitter interface {
	SubmitFile(ctx context.Context, path string, opts pipeline.SubmitOptions) (*jobstore.Job, error)
}

// Options configure the inbox watcher.
type Options struct {
	InboxDir string
	// Summary requests a summary video for every inbox submission.
	Summary bool
	Submit  Submitter
	Log     zerolog.Logger
}

// Watcher monitors an inbox directory and submits every dropped document as
// a new job. This is the hands-off alternative to the HTTP upload endpoint:
// point the inbox at a synced folder and narrated videos appear as documents
// land.
type Watcher struct {
	opts    Options
	log     zerolog.Logger
	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	submitted atomic.Int64
	skipped   atomic.Int64
}

// New creates a watcher; Start begins watching.
func New(opts Options) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		opts:           opts,
		log:            opts.Log.With().Str("component", "watch").Logger(),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
		debounceTimers: make(map[string]*time.Timer),
	}
}

// Start creates the inbox directory if needed, submits any documents already
// waiting in it, and begins watching for new ones.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(filepath.Join(w.opts.InboxDir, processedDirName), 0o755); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.opts.InboxDir); err != nil {
		fsw.Close()
		return err
	}
	w.watcher = fsw

	go w.watchLoop()
	go w.sweepExisting()

	w.log.Info().Str("inbox", w.opts.InboxDir).Msg("inbox watcher started")
	return nil
}

// Stop closes the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.cancel()
	if w.watcher != nil {
		w.watcher.Close()
	}
	<-w.done
	w.log.Info().
		Int64("submitted", w.submitted.Load()).
		Int64("skipped", w.skipped.Load()).
		Msg("inbox watcher stopped")
}

// Submitted returns how many documents have been submitted so far.
func (w *Watcher) Submitted() int64 { return w.submitted.Load() }

func (w *Watcher) watchLoop() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isDocumentFile(event.Name) {
				continue
			}
			w.scheduleSubmit(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// sweepExisting submits documents that were already in the inbox at startup.
func (w *Watcher) sweepExisting() {
	entries, err := os.ReadDir(w.opts.InboxDir)
	if err != nil {
		w.log.Warn().Err(err).Msg("could not scan inbox")
		return
	}
	for _, e := range entries {
		if w.ctx.Err() != nil {
			return
		}
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.opts.InboxDir, e.Name())
		if !isDocumentFile(path) {
			continue
		}
		w.submitDocument(path)
	}
}

func (w *Watcher) scheduleSubmit(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if t, ok := w.debounceTimers[path]; ok {
		t.Reset(debounceDelay)
		return
	}
	w.debounceTimers[path] = time.AfterFunc(debounceDelay, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()

		w.submitDocument(path)
	})
}

func (w *Watcher) submitDocument(path string) {
	if w.ctx.Err() != nil {
		return
	}

	job, err := w.opts.Submit.SubmitFile(w.ctx, path, pipeline.SubmitOptions{Summary: w.opts.Summary})
	if err != nil {
		w.skipped.Add(1)
		w.log.Warn().Err(err).Str("path", path).Msg("inbox submission failed")
		return
	}

	// The pipeline copied the source into the job workdir, so the inbox
	// copy only needs to get out of the watch set.
	dest := filepath.Join(w.opts.InboxDir, processedDirName, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		w.log.Warn().Err(err).Str("path", path).Msg("could not move processed document")
	}

	w.submitted.Add(1)
	w.log.Info().Str("job_id", job.ID).Str("document", filepath.Base(path)).Msg("inbox document submitted")
}

// isDocumentFile reports whether a path looks like a narration source.
// Hidden files and partial downloads are ignored.
func isDocumentFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".txt", ".md", ".pdf":
		return true
	}
	return false
}
