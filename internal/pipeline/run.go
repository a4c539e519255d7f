package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxpage/voxpage/internal/audio"
	"github.com/voxpage/voxpage/internal/jobstore"
	"github.com/voxpage/voxpage/internal/metrics"
	"github.com/voxpage/voxpage/internal/mux"
	"github.com/voxpage/voxpage/internal/render"
	"github.com/voxpage/voxpage/internal/timestamps"
	"github.com/voxpage/voxpage/internal/tts"
)

// Progress marks for the video production sub-pipeline. A summary job
// compresses the main video into the first 80% so the summary phases have
// room at the tail.
type marks struct {
	synthesize int
	align      int
	master     int
	reconcile  int
	render     int
	mux        int
}

var (
	plainMarks   = marks{synthesize: 30, align: 45, master: 55, reconcile: 65, render: 95, mux: 100}
	mainMarks    = marks{synthesize: 25, align: 35, master: 45, reconcile: 55, render: 70, mux: 80}
	summaryMarks = marks{synthesize: 88, align: 90, master: 92, reconcile: 94, render: 99, mux: 100}
)

const progressExtract = 10

func (m *Manager) worker(id int) {
	defer m.wg.Done()
	log := m.log.With().Int("worker", id).Logger()

	for req := range m.jobs {
		m.active.Add(1)
		if err := m.runJob(log, req); err != nil {
			m.failed.Add(1)
			metrics.JobsFinishedTotal.WithLabelValues(string(jobstore.StatusFailed)).Inc()
			log.Warn().Err(err).Str("job_id", req.id).Msg("job failed")
		} else {
			m.completed.Add(1)
			metrics.JobsFinishedTotal.WithLabelValues(string(jobstore.StatusCompleted)).Inc()
		}
		m.active.Add(-1)
	}
}

func (m *Manager) runJob(log zerolog.Logger, req request) error {
	ctx := m.ctx
	start := time.Now()

	job, err := m.db.Get(ctx, req.id)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	workdir := filepath.Join(m.opts.JobsDir, job.ID)

	job.Status = jobstore.StatusProcessing
	job.Phase = jobstore.PhaseExtract
	if err := m.db.Update(ctx, job); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	text, err := m.runExtract(ctx, job, workdir)
	if err != nil {
		return m.fail(ctx, job, err)
	}

	mk := plainMarks
	if req.summary {
		mk = mainMarks
	}
	if err := m.produceVideo(ctx, job, workdir, text, "video", jobstore.ArtifactVideo, mk, false); err != nil {
		return m.fail(ctx, job, err)
	}

	if req.summary {
		summaryText, err := m.runSummarize(ctx, job, workdir, text)
		if err != nil {
			return m.fail(ctx, job, err)
		}
		if err := m.produceVideo(ctx, job, workdir, summaryText, "summary", jobstore.ArtifactSummaryVideo, summaryMarks, true); err != nil {
			return m.fail(ctx, job, err)
		}
	}

	job.Status = jobstore.StatusCompleted
	job.Progress = 100
	job.Error = ""
	if err := m.db.Update(ctx, job); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	m.archive(ctx, job)

	log.Info().
		Str("job_id", job.ID).
		Str("audio_variant", job.Metadata["audio_variant"]).
		Dur("elapsed", time.Since(start)).
		Msg("job completed")
	return nil
}

func (m *Manager) runExtract(ctx context.Context, job *jobstore.Job, workdir string) (string, error) {
	started := time.Now()
	defer metrics.ObservePhase(string(jobstore.PhaseExtract), started)

	text, err := m.extractText(ctx, job.Metadata["source"])
	if err != nil {
		return "", fmt.Errorf("extract: %w", err)
	}

	transcriptPath := filepath.Join(workdir, "transcript.txt")
	if err := os.WriteFile(transcriptPath, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	job.Metadata["transcript"] = transcriptPath

	return text, m.advance(ctx, job, jobstore.PhaseExtract, progressExtract)
}

func (m *Manager) runSummarize(ctx context.Context, job *jobstore.Job, workdir, text string) (string, error) {
	started := time.Now()
	defer metrics.ObservePhase(string(jobstore.PhaseSummarize), started)

	if err := m.advance(ctx, job, jobstore.PhaseSummarize, job.Progress); err != nil {
		return "", err
	}

	sctx, cancel := m.providerContext(ctx)
	defer cancel()
	summary, err := m.condense(sctx, text)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", timeoutOf("summarizer", err))
	}

	summaryPath := filepath.Join(workdir, "summary.txt")
	if err := os.WriteFile(summaryPath, []byte(summary), 0o644); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	job.Metadata[string(jobstore.ArtifactSummaryText)] = summaryPath

	return summary, m.advance(ctx, job, jobstore.PhaseSummarize, 85)
}

// produceVideo drives one text through synthesize, align, master, reconcile,
// render, and mux, recording the finished container under the given artifact
// kind. A summary run reports all its work under the summary_video phase.
func (m *Manager) produceVideo(ctx context.Context, job *jobstore.Job, workdir, text, prefix string, kind jobstore.ArtifactKind, mk marks, summaryRun bool) error {
	ph := func(p jobstore.Phase) jobstore.Phase {
		if summaryRun {
			return jobstore.PhaseSummaryVideo
		}
		return p
	}

	// Synthesize.
	started := time.Now()
	rawPath := filepath.Join(workdir, prefix+"_raw.wav")
	rawAsset, err := m.synthesize(ctx, text, rawPath)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	job.Metadata[prefix+"_audio_raw"] = rawPath
	metrics.ObservePhase(string(jobstore.PhaseSynthesize), started)
	if err := m.advance(ctx, job, ph(jobstore.PhaseSynthesize), mk.synthesize); err != nil {
		return err
	}

	// Align raw audio.
	started = time.Now()
	rawModel, err := m.alignWords(ctx, rawAsset, text)
	if err != nil {
		return fmt.Errorf("align: %w", err)
	}
	if err := rawModel.Validate(text); err != nil {
		return fmt.Errorf("align: %w", err)
	}
	if err := m.writeModel(filepath.Join(workdir, prefix+"_raw_timestamps.json"), rawModel); err != nil {
		return err
	}
	metrics.ObservePhase(string(jobstore.PhaseAlign), started)
	if err := m.advance(ctx, job, ph(jobstore.PhaseAlign), mk.align); err != nil {
		return err
	}

	// Master. A mastering failure degrades to the raw audio rather than
	// killing the job; the raw model is already valid for the raw asset.
	started = time.Now()
	finalAsset, finalModel := rawAsset, rawModel
	variant := "mastered"
	masteredPath := filepath.Join(workdir, prefix+"_mastered.wav")
	masteredAsset, err := m.masterAudio(ctx, rawAsset, masteredPath)
	if err != nil {
		var merr *audio.MasteringError
		if !errors.As(err, &merr) {
			return fmt.Errorf("master: %w", err)
		}
		m.log.Warn().Err(err).Str("job_id", job.ID).Msg("mastering failed, falling back to raw audio")
		metrics.MasteringFallbacksTotal.Inc()
		variant = "raw"
	}
	metrics.ObservePhase(string(jobstore.PhaseMaster), started)
	if err := m.advance(ctx, job, ph(jobstore.PhaseMaster), mk.master); err != nil {
		return err
	}

	// Reconcile against the mastered audio.
	if variant == "mastered" {
		started = time.Now()
		job.Metadata[prefix+"_audio_mastered"] = masteredPath
		finalModel, err = m.reconcile(ctx, masteredAsset, text)
		if err != nil {
			return fmt.Errorf("reconcile: %w", err)
		}
		finalAsset = masteredAsset
		metrics.ObservePhase(string(jobstore.PhaseReconcile), started)
	}
	job.Metadata["audio_variant"] = variant
	if err := m.writeModel(filepath.Join(workdir, prefix+"_timestamps.json"), finalModel); err != nil {
		return err
	}
	if err := m.advance(ctx, job, ph(jobstore.PhaseReconcile), mk.reconcile); err != nil {
		return err
	}

	// Render and mux.
	started = time.Now()
	if err := m.advance(ctx, job, ph(jobstore.PhaseRender), mk.render-1); err != nil {
		return err
	}
	outPath := filepath.Join(workdir, prefix+".mp4")
	frames, err := m.produce(ctx, finalModel, finalAsset, outPath)
	metrics.FramesRenderedTotal.Add(float64(frames))
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	metrics.ObservePhase(string(jobstore.PhaseRender), started)

	job.Metadata[string(kind)] = outPath
	return m.advance(ctx, job, ph(jobstore.PhaseMux), mk.mux)
}

// synthesizeChunks is the production synthesize stage: long texts are split
// at sentence boundaries, synthesized per chunk, and concatenated back into
// one raw asset.
func (m *Manager) synthesizeChunks(ctx context.Context, text, outPath string) (audio.Asset, error) {
	chunks := tts.SplitText(text, tts.MaxChunkChars)
	if len(chunks) == 0 {
		return audio.Asset{}, fmt.Errorf("nothing to synthesize")
	}

	dir := filepath.Dir(outPath)
	parts := make([]string, 0, len(chunks))
	defer func() {
		for _, p := range parts {
			os.Remove(p)
		}
	}()

	for i, chunk := range chunks {
		cctx, cancel := m.providerContext(ctx)
		res, err := m.opts.Synthesizer.Synthesize(cctx, chunk, m.opts.Voice)
		cancel()
		if err != nil {
			return audio.Asset{}, timeoutOf(m.opts.Synthesizer.Name(), err)
		}
		p := filepath.Join(dir, fmt.Sprintf(".chunk_%03d.wav", i))
		if err := os.WriteFile(p, res.Audio, 0o644); err != nil {
			return audio.Asset{}, fmt.Errorf("write chunk %d: %w", i, err)
		}
		parts = append(parts, p)
	}

	if err := audio.Concat(ctx, parts, outPath); err != nil {
		return audio.Asset{}, err
	}
	return audio.Probe(ctx, outPath, audio.StageRaw)
}

// renderAndMux is the production render stage.
func (m *Manager) renderAndMux(ctx context.Context, model *timestamps.Model, a audio.Asset, outPath string) (int, error) {
	cfg := m.opts.Render
	r, err := render.NewRenderer(cfg, model, m.log)
	if err != nil {
		return 0, err
	}

	sink, err := mux.Start(ctx, mux.Options{
		Audio:   a,
		OutPath: outPath,
		FPS:     cfg.FPS,
		Width:   cfg.Width,
		Height:  cfg.Height,
	}, m.log)
	if err != nil {
		return 0, err
	}

	if err := r.Render(ctx, sink, m.opts.RenderWorkers); err != nil {
		sink.Abort()
		return sink.Frames(), err
	}
	if err := sink.Close(); err != nil {
		return sink.Frames(), err
	}
	return sink.Frames(), nil
}

func (m *Manager) writeModel(path string, model *timestamps.Model) error {
	data, err := json.MarshalIndent(model, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal timestamps: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write timestamps: %w", err)
	}
	return nil
}

func (m *Manager) advance(ctx context.Context, job *jobstore.Job, phase jobstore.Phase, progress int) error {
	job.Phase = phase
	if progress > job.Progress {
		job.Progress = progress
	}
	if err := m.db.Update(ctx, job); err != nil {
		return fmt.Errorf("record progress: %w", err)
	}
	return nil
}

func (m *Manager) fail(ctx context.Context, job *jobstore.Job, cause error) error {
	job.Status = jobstore.StatusFailed
	job.Error = cause.Error()
	if err := m.db.Update(ctx, job); err != nil {
		m.log.Error().Err(err).Str("job_id", job.ID).Msg("could not record job failure")
	}
	return cause
}

// archive uploads finished artifacts when an object store is configured.
// Failures are logged but never affect the job outcome.
func (m *Manager) archive(ctx context.Context, job *jobstore.Job) {
	if m.opts.Archiver == nil {
		return
	}
	for kind, contentType := range map[jobstore.ArtifactKind]string{
		jobstore.ArtifactVideo:        "video/mp4",
		jobstore.ArtifactSummaryVideo: "video/mp4",
		jobstore.ArtifactSummaryText:  "text/plain",
	} {
		path, ok := job.Artifact(kind)
		if !ok {
			continue
		}
		if err := m.opts.Archiver.Save(ctx, job.ID, path, contentType); err != nil {
			m.log.Warn().Err(err).Str("job_id", job.ID).Str("kind", string(kind)).Msg("archive upload failed")
		}
	}
}
