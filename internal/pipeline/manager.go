package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxpage/voxpage/internal/align"
	"github.com/voxpage/voxpage/internal/audio"
	"github.com/voxpage/voxpage/internal/extract"
	"github.com/voxpage/voxpage/internal/jobstore"
	"github.com/voxpage/voxpage/internal/metrics"
	"github.com/voxpage/voxpage/internal/render"
	"github.com/voxpage/voxpage/internal/storage"
	"github.com/voxpage/voxpage/internal/summarize"
	"github.com/voxpage/voxpage/internal/timestamps"
	"github.com/voxpage/voxpage/internal/tts"
)

// Store is the persistence surface the pipeline needs. *jobstore.DB
// implements it; tests substitute an in-memory registry.
type Store interface {
	Create(ctx context.Context, job *jobstore.Job) error
	Get(ctx context.Context, id string) (*jobstore.Job, error)
	List(ctx context.Context, limit, offset int) ([]*jobstore.Job, error)
	Update(ctx context.Context, job *jobstore.Job) error
}

// Options configures the pipeline manager.
type Options struct {
	DB          Store
	Synthesizer tts.Synthesizer
	Aligner     *align.Aligner
	Summarizer  summarize.Summarizer // optional; enables summary jobs
	Extractors  *extract.Registry
	Archiver    *storage.Archiver // optional; uploads finished videos

	JobsDir         string
	Voice           tts.VoiceConfig
	Mastering       audio.Profile
	Render          render.Config
	ProviderTimeout time.Duration
	RenderWorkers   int
	Workers         int
	QueueSize       int
	Log             zerolog.Logger
}

// SubmitOptions are per-job flags.
type SubmitOptions struct {
	// Summary additionally produces a condensed narration and a second,
	// shorter video from it.
	Summary bool
}

type request struct {
	id      string
	summary bool
}

// Manager owns the job queue and the worker goroutines that drive each job
// through the pipeline. One worker processes one job at a time end to end;
// no job is ever touched by two workers.
type Manager struct {
	opts Options
	db   Store
	log  zerolog.Logger

	jobs   chan request
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	// Job ids enqueued by this process. Startup recovery consults it so a
	// job is never queued twice.
	queued sync.Map

	// Stage seams. Production wiring is installed by NewManager; tests
	// swap individual stages for fakes.
	extractText func(ctx context.Context, path string) (string, error)
	synthesize  func(ctx context.Context, text, outPath string) (audio.Asset, error)
	alignWords  func(ctx context.Context, asset audio.Asset, transcript string) (*timestamps.Model, error)
	masterAudio func(ctx context.Context, raw audio.Asset, outPath string) (audio.Asset, error)
	reconcile   func(ctx context.Context, mastered audio.Asset, transcript string) (*timestamps.Model, error)
	produce     func(ctx context.Context, model *timestamps.Model, a audio.Asset, outPath string) (int, error)
	condense    func(ctx context.Context, text string) (string, error)
}

// NewManager wires the production stages over the configured collaborators.
func NewManager(opts Options) *Manager {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 16
	}
	if opts.RenderWorkers < 1 {
		opts.RenderWorkers = 4
	}
	if opts.Extractors == nil {
		opts.Extractors = extract.NewRegistry()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		opts:   opts,
		db:     opts.DB,
		log:    opts.Log.With().Str("component", "pipeline").Logger(),
		jobs:   make(chan request, opts.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	m.extractText = opts.Extractors.Extract
	m.synthesize = m.synthesizeChunks
	m.alignWords = func(ctx context.Context, asset audio.Asset, transcript string) (*timestamps.Model, error) {
		ctx, cancel := m.providerContext(ctx)
		defer cancel()
		model, err := opts.Aligner.Align(ctx, asset, transcript)
		if err != nil {
			return nil, timeoutOf("alignment provider", err)
		}
		return model, nil
	}
	m.masterAudio = func(ctx context.Context, raw audio.Asset, outPath string) (audio.Asset, error) {
		return audio.Master(ctx, raw, opts.Mastering, outPath)
	}
	m.reconcile = func(ctx context.Context, mastered audio.Asset, transcript string) (*timestamps.Model, error) {
		ctx, cancel := m.providerContext(ctx)
		defer cancel()
		model, err := align.Reconcile(ctx, opts.Aligner, mastered, transcript)
		if err != nil {
			return nil, timeoutOf("alignment provider", err)
		}
		return model, nil
	}
	m.produce = m.renderAndMux
	if opts.Summarizer != nil {
		m.condense = opts.Summarizer.Summarize
	}

	return m
}

func (m *Manager) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.opts.ProviderTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.opts.ProviderTimeout)
}

// Start launches the worker goroutines and requeues jobs a previous process
// left unfinished.
func (m *Manager) Start() {
	for i := 0; i < m.opts.Workers; i++ {
		m.wg.Add(1)
		go m.worker(i)
	}
	m.requeueInterrupted()
	m.log.Info().
		Int("workers", m.opts.Workers).
		Int("queue_size", m.opts.QueueSize).
		Msg("pipeline started")
}

// requeueInterrupted re-enqueues pending and processing jobs found in the
// registry at startup. A processing job here means the previous process died
// mid-run; it is re-run from the top, overwriting any partial stage outputs
// in its working directory.
func (m *Manager) requeueInterrupted() {
	const page = 100
	for offset := 0; ; offset += page {
		jobs, err := m.db.List(m.ctx, page, offset)
		if err != nil {
			m.log.Warn().Err(err).Msg("startup job scan failed")
			return
		}
		for _, j := range jobs {
			if j.Status != jobstore.StatusPending && j.Status != jobstore.StatusProcessing {
				continue
			}
			if _, already := m.queued.LoadOrStore(j.ID, struct{}{}); already {
				continue
			}
			select {
			case m.jobs <- request{id: j.ID, summary: j.Metadata["summary_requested"] == "true"}:
				m.log.Info().Str("job_id", j.ID).Str("status", string(j.Status)).Msg("requeued interrupted job")
			default:
				m.queued.Delete(j.ID)
				m.log.Warn().Str("job_id", j.ID).Msg("queue full, job not requeued")
				return
			}
		}
		if len(jobs) < page {
			return
		}
	}
}

// Stop drains the queue and waits for in-flight jobs to finish.
func (m *Manager) Stop() {
	close(m.jobs)
	m.wg.Wait()
	m.cancel()
	m.log.Info().
		Int64("completed", m.completed.Load()).
		Int64("failed", m.failed.Load()).
		Msg("pipeline stopped")
}

// PendingJobs returns the number of queued, unstarted jobs.
func (m *Manager) PendingJobs() int { return len(m.jobs) }

// ActiveJobs returns the number of jobs currently being processed.
func (m *Manager) ActiveJobs() int { return int(m.active.Load()) }

// Submit registers a new job for an uploaded document and queues it. The
// source is copied into the job's working directory before this returns, so
// the caller may discard the reader immediately.
func (m *Manager) Submit(ctx context.Context, filename string, src io.Reader, opts SubmitOptions) (*jobstore.Job, error) {
	if !m.opts.Extractors.Supports(filename) {
		return nil, fmt.Errorf("unsupported document type %s", filepath.Ext(filename))
	}
	if opts.Summary && m.condense == nil {
		return nil, fmt.Errorf("summary requested but no summarizer is configured")
	}

	id := newJobID(filename)
	workdir := filepath.Join(m.opts.JobsDir, id)
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return nil, fmt.Errorf("create workdir: %w", err)
	}

	sourcePath := filepath.Join(workdir, "source"+strings.ToLower(filepath.Ext(filename)))
	if err := copyToFile(sourcePath, src); err != nil {
		os.RemoveAll(workdir)
		return nil, err
	}

	job := &jobstore.Job{
		ID:     id,
		Status: jobstore.StatusPending,
		Metadata: map[string]string{
			"source":      sourcePath,
			"source_name": filename,
		},
	}
	if opts.Summary {
		job.Metadata["summary_requested"] = "true"
	}
	if err := m.db.Create(ctx, job); err != nil {
		os.RemoveAll(workdir)
		return nil, err
	}

	m.queued.Store(id, struct{}{})
	select {
	case m.jobs <- request{id: id, summary: opts.Summary}:
	default:
		m.queued.Delete(id)
		job.Status = jobstore.StatusFailed
		job.Error = ErrQueueFull.Error()
		_ = m.db.Update(ctx, job)
		os.RemoveAll(workdir)
		return nil, ErrQueueFull
	}

	metrics.JobsSubmittedTotal.Inc()
	m.log.Info().Str("job_id", id).Str("source", filename).Bool("summary", opts.Summary).Msg("job submitted")
	return job, nil
}

// SubmitFile submits a document already on disk, used by the inbox watcher.
func (m *Manager) SubmitFile(ctx context.Context, path string, opts SubmitOptions) (*jobstore.Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()
	return m.Submit(ctx, filepath.Base(path), f, opts)
}

// GetJob returns one job by id.
func (m *Manager) GetJob(ctx context.Context, id string) (*jobstore.Job, error) {
	return m.db.Get(ctx, id)
}

// ListJobs returns jobs newest-first.
func (m *Manager) ListJobs(ctx context.Context, limit, offset int) ([]*jobstore.Job, error) {
	return m.db.List(ctx, limit, offset)
}

// OpenArtifact streams a produced artifact. Returns ErrNotFound for unknown
// jobs, for artifacts the job will never produce (a summary kind on a job
// submitted without the summary flag, or any unrecorded artifact once the
// job is terminal), and ErrNotReady while the producing phase is still ahead.
func (m *Manager) OpenArtifact(ctx context.Context, id string, kind jobstore.ArtifactKind) (io.ReadCloser, string, error) {
	job, err := m.db.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	path, ok := job.Artifact(kind)
	if !ok {
		if !artifactRequested(job, kind) || job.Status.Terminal() {
			return nil, "", ErrNotFound
		}
		return nil, "", ErrNotReady
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open artifact: %w", err)
	}
	return f, filepath.Base(path), nil
}

// artifactRequested reports whether the job was asked to produce this kind.
// Summary artifacts only exist when the job was submitted with the summary
// flag; the main video is always produced.
func artifactRequested(job *jobstore.Job, kind jobstore.ArtifactKind) bool {
	switch kind {
	case jobstore.ArtifactSummaryText, jobstore.ArtifactSummaryVideo:
		return job.Metadata["summary_requested"] == "true"
	}
	return true
}

func copyToFile(path string, src io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create source copy: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return fmt.Errorf("copy source: %w", err)
	}
	return f.Close()
}

// newJobID builds a readable, collision-resistant id from the document name.
func newJobID(filename string) string {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	stem = sanitizeStem(stem)
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("%s_%s_%s", stem, time.Now().UTC().Format("20060102T150405"), hex.EncodeToString(b))
}

func sanitizeStem(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == ' ' || r == '.':
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		out = "document"
	}
	if len(out) > 40 {
		out = out[:40]
	}
	return out
}
