package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`

	JobsDir      string `env:"JOBS_DIR" envDefault:"./jobs"`
	InboxDir     string `env:"INBOX_DIR"`
	InboxSummary bool   `env:"INBOX_SUMMARY" envDefault:"false"`

	// Local disk retention for job working directories. Zero disables pruning.
	JobsRetention time.Duration `env:"JOBS_RETENTION" envDefault:"0"`
	JobsMaxGB     int           `env:"JOBS_MAX_GB" envDefault:"0"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"5m"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	MaxUploadMB  int64         `env:"MAX_UPLOAD_MB" envDefault:"64"`

	Workers         int           `env:"WORKERS" envDefault:"2"`
	QueueSize       int           `env:"QUEUE_SIZE" envDefault:"32"`
	RenderWorkers   int           `env:"RENDER_WORKERS" envDefault:"4"`
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"2m"`

	// Text-to-speech.
	CartesiaAPIKey  string `env:"CARTESIA_API_KEY,required"`
	CartesiaVoiceID string `env:"CARTESIA_VOICE_ID,required"`
	CartesiaModelID string `env:"CARTESIA_MODEL_ID" envDefault:"sonic-2"`
	TTSLanguage     string `env:"TTS_LANGUAGE" envDefault:"en"`

	// Word-level alignment. Whisper by default, ElevenLabs as an alternative.
	AlignProvider    string `env:"ALIGN_PROVIDER" envDefault:"whisper"`
	WhisperURL       string `env:"WHISPER_URL"`
	WhisperModel     string `env:"WHISPER_MODEL" envDefault:"Systran/faster-whisper-large-v3"`
	ElevenLabsAPIKey string `env:"ELEVENLABS_API_KEY"`
	ElevenLabsModel  string `env:"ELEVENLABS_MODEL" envDefault:"scribe_v1"`

	// Summaries. Leaving the key list empty disables summary jobs.
	GeminiAPIKeys []string `env:"GEMINI_API_KEYS" envSeparator:","`
	GeminiModel   string   `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`

	// Mastering.
	MasterLoudnessLUFS float64       `env:"MASTER_LOUDNESS_LUFS" envDefault:"-16"`
	MasterTrimSilence  bool          `env:"MASTER_TRIM_SILENCE" envDefault:"true"`
	MasterLeadIn       time.Duration `env:"MASTER_LEAD_IN" envDefault:"500ms"`
	MasterLeadOut      time.Duration `env:"MASTER_LEAD_OUT" envDefault:"1s"`

	// Rendering.
	RenderFPS       int     `env:"RENDER_FPS" envDefault:"30"`
	RenderWidth     int     `env:"RENDER_WIDTH" envDefault:"1280"`
	RenderHeight    int     `env:"RENDER_HEIGHT" envDefault:"720"`
	FontPath        string  `env:"RENDER_FONT_PATH"`
	FontSize        float64 `env:"RENDER_FONT_SIZE" envDefault:"42"`
	TextColor       string  `env:"RENDER_TEXT_COLOR" envDefault:"#E8E8E8"`
	HighlightColor  string  `env:"RENDER_HIGHLIGHT_COLOR" envDefault:"#FFD54F"`
	BackgroundPath  string  `env:"RENDER_BACKGROUND_PATH"`
	BackgroundColor string  `env:"RENDER_BACKGROUND_COLOR" envDefault:"#1A1A2E"`
	WordsPerLine    int     `env:"RENDER_WORDS_PER_LINE" envDefault:"6"`
	LinesPerScreen  int     `env:"RENDER_LINES_PER_SCREEN" envDefault:"4"`

	// Optional artifact archive. Empty bucket disables it.
	S3Endpoint      string        `env:"S3_ENDPOINT"`
	S3Region        string        `env:"S3_REGION" envDefault:"us-east-1"`
	S3Bucket        string        `env:"S3_BUCKET"`
	S3Prefix        string        `env:"S3_PREFIX" envDefault:"voxpage"`
	S3AccessKey     string        `env:"S3_ACCESS_KEY"`
	S3SecretKey     string        `env:"S3_SECRET_KEY"`
	S3PresignExpiry time.Duration `env:"S3_PRESIGN_EXPIRY" envDefault:"24h"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

// ArchiveEnabled reports whether the S3 archive is configured.
func (c *Config) ArchiveEnabled() bool { return c.S3Bucket != "" }

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	HTTPAddr    string
	LogLevel    string
	DatabaseURL string
	JobsDir     string
	InboxDir    string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.JobsDir != "" {
		cfg.JobsDir = overrides.JobsDir
	}
	if overrides.InboxDir != "" {
		cfg.InboxDir = overrides.InboxDir
	}

	switch cfg.AlignProvider {
	case "whisper":
		if cfg.WhisperURL == "" {
			return nil, fmt.Errorf("WHISPER_URL is required when ALIGN_PROVIDER=whisper")
		}
	case "elevenlabs":
		if cfg.ElevenLabsAPIKey == "" {
			return nil, fmt.Errorf("ELEVENLABS_API_KEY is required when ALIGN_PROVIDER=elevenlabs")
		}
	default:
		return nil, fmt.Errorf("unknown ALIGN_PROVIDER %q", cfg.AlignProvider)
	}

	return cfg, nil
}
