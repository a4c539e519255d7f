package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/voxpage/voxpage/internal/align"
	"github.com/voxpage/voxpage/internal/api"
	"github.com/voxpage/voxpage/internal/audio"
	"github.com/voxpage/voxpage/internal/config"
	"github.com/voxpage/voxpage/internal/jobstore"
	"github.com/voxpage/voxpage/internal/metrics"
	"github.com/voxpage/voxpage/internal/pipeline"
	"github.com/voxpage/voxpage/internal/render"
	"github.com/voxpage/voxpage/internal/storage"
	"github.com/voxpage/voxpage/internal/summarize"
	"github.com/voxpage/voxpage/internal/tts"
	"github.com/voxpage/voxpage/internal/watch"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file")
	flag.StringVar(&overrides.HTTPAddr, "http-addr", "", "HTTP listen address")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (trace..error)")
	flag.StringVar(&overrides.DatabaseURL, "database-url", "", "Postgres connection URL")
	flag.StringVar(&overrides.JobsDir, "jobs-dir", "", "job working directory")
	flag.StringVar(&overrides.InboxDir, "inbox-dir", "", "inbox directory to watch")
	flag.Parse()

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("voxpage starting")

	if err := audio.CheckFFmpeg(); err != nil {
		log.Fatal().Err(err).Msg("audio toolchain missing")
	}
	if err := os.MkdirAll(cfg.JobsDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.JobsDir).Msg("could not create jobs directory")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Job registry
	db, err := jobstore.Connect(ctx, cfg.DatabaseURL, log.With().Str("component", "jobstore").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Collaborators
	synth := tts.NewCartesiaClient(cfg.CartesiaAPIKey, cfg.ProviderTimeout)

	var provider align.Provider
	switch cfg.AlignProvider {
	case "elevenlabs":
		provider = align.NewElevenLabsClient(cfg.ElevenLabsAPIKey, cfg.ElevenLabsModel, cfg.ProviderTimeout)
	default:
		provider = align.NewWhisperClient(cfg.WhisperURL, cfg.WhisperModel, cfg.ProviderTimeout)
	}
	aligner := align.New(provider, log)

	var summarizer summarize.Summarizer
	if len(cfg.GeminiAPIKeys) > 0 {
		summarizer, err = summarize.NewGemini(cfg.GeminiModel, cfg.GeminiAPIKeys, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to configure summarizer")
		}
	}

	var archiver *storage.Archiver
	if cfg.ArchiveEnabled() {
		archiver, err = storage.NewArchiver(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			Prefix:        cfg.S3Prefix,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			PresignExpiry: cfg.S3PresignExpiry,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to configure artifact archive")
		}
		if err := archiver.HeadBucket(ctx); err != nil {
			log.Fatal().Err(err).Str("bucket", cfg.S3Bucket).Msg("artifact archive bucket unreachable")
		}
	}

	if cfg.JobsRetention > 0 || cfg.JobsMaxGB > 0 {
		pruner := storage.NewPruner(cfg.JobsDir, cfg.JobsRetention, cfg.JobsMaxGB, archiver, log)
		pruner.Start()
		defer pruner.Stop()
	}

	renderCfg, err := renderConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid render configuration")
	}

	mastering := audio.DefaultProfile()
	mastering.LoudnessTarget = cfg.MasterLoudnessLUFS
	mastering.TrimLeadingSilence = cfg.MasterTrimSilence
	mastering.LeadInSec = cfg.MasterLeadIn.Seconds()
	mastering.LeadOutSec = cfg.MasterLeadOut.Seconds()

	// Pipeline
	manager := pipeline.NewManager(pipeline.Options{
		DB:          db,
		Synthesizer: synth,
		Aligner:     aligner,
		Summarizer:  summarizer,
		Archiver:    archiver,
		JobsDir:     cfg.JobsDir,
		Voice: tts.VoiceConfig{
			VoiceID:  cfg.CartesiaVoiceID,
			ModelID:  cfg.CartesiaModelID,
			Language: cfg.TTSLanguage,
		},
		Mastering:       mastering,
		Render:          renderCfg,
		ProviderTimeout: cfg.ProviderTimeout,
		RenderWorkers:   cfg.RenderWorkers,
		Workers:         cfg.Workers,
		QueueSize:       cfg.QueueSize,
		Log:             log,
	})
	manager.Start()
	defer manager.Stop()

	prometheus.MustRegister(metrics.NewCollector(db.Pool(), manager))

	// Inbox watcher
	if cfg.InboxDir != "" {
		watcher := watch.New(watch.Options{
			InboxDir: cfg.InboxDir,
			Summary:  cfg.InboxSummary,
			Submit:   manager,
			Log:      log,
		})
		if err := watcher.Start(); err != nil {
			log.Fatal().Err(err).Str("dir", cfg.InboxDir).Msg("failed to start inbox watcher")
		}
		defer watcher.Stop()
	}

	// HTTP server
	srv := api.NewServer(api.Options{
		Addr:         cfg.HTTPAddr,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		AuthToken:    cfg.AuthToken,
		MaxUploadMB:  cfg.MaxUploadMB,
		Service:      manager,
		DB:           db,
		Version:      version,
		StartTime:    startTime,
		Log:          log.With().Str("component", "http").Logger(),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("voxpage stopped")
}

func renderConfig(cfg *config.Config) (render.Config, error) {
	rc := render.DefaultConfig()
	rc.FPS = cfg.RenderFPS
	rc.Width = cfg.RenderWidth
	rc.Height = cfg.RenderHeight
	rc.FontPath = cfg.FontPath
	rc.FontSize = cfg.FontSize
	rc.BackgroundPath = cfg.BackgroundPath
	rc.WordsPerLine = cfg.WordsPerLine
	rc.LinesPerScreen = cfg.LinesPerScreen

	var err error
	if rc.TextColor, err = render.ParseHexColor(cfg.TextColor); err != nil {
		return rc, err
	}
	if rc.HighlightColor, err = render.ParseHexColor(cfg.HighlightColor); err != nil {
		return rc, err
	}
	if rc.BackgroundColor, err = render.ParseHexColor(cfg.BackgroundColor); err != nil {
		return rc, err
	}
	return rc, rc.Validate()
}
