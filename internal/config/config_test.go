package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	// Set required env vars for all subtests
	cleanup := setEnvs(t, map[string]string{
		"DATABASE_URL":      "postgres://localhost/test",
		"CARTESIA_API_KEY":  "key",
		"CARTESIA_VOICE_ID": "voice",
		"WHISPER_URL":       "http://localhost:8000/v1/audio/transcriptions",
	})
	defer cleanup()

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":8080" {
			t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
		}
		if cfg.JobsDir != "./jobs" {
			t.Errorf("JobsDir = %q, want ./jobs", cfg.JobsDir)
		}
		if cfg.RenderFPS != 30 || cfg.RenderWidth != 1280 || cfg.RenderHeight != 720 {
			t.Errorf("render geometry = %dx%d@%d", cfg.RenderWidth, cfg.RenderHeight, cfg.RenderFPS)
		}
		if cfg.WordsPerLine != 6 || cfg.LinesPerScreen != 4 {
			t.Errorf("layout = %dx%d, want 6x4", cfg.WordsPerLine, cfg.LinesPerScreen)
		}
		if cfg.MasterLoudnessLUFS != -16 {
			t.Errorf("MasterLoudnessLUFS = %v, want -16", cfg.MasterLoudnessLUFS)
		}
		if cfg.ProviderTimeout != 2*time.Minute {
			t.Errorf("ProviderTimeout = %v, want 2m", cfg.ProviderTimeout)
		}
		if cfg.ArchiveEnabled() {
			t.Error("archive should be disabled without a bucket")
		}
	})

	t.Run("cli_overrides_take_priority", func(t *testing.T) {
		cfg, err := Load(Overrides{
			EnvFile:     "nonexistent.env",
			HTTPAddr:    ":9090",
			LogLevel:    "debug",
			DatabaseURL: "postgres://override/db",
			JobsDir:     "/tmp/jobs",
			InboxDir:    "/tmp/inbox",
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":9090" {
			t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
		}
		if cfg.DatabaseURL != "postgres://override/db" {
			t.Errorf("DatabaseURL = %q, want override", cfg.DatabaseURL)
		}
		if cfg.JobsDir != "/tmp/jobs" {
			t.Errorf("JobsDir = %q, want /tmp/jobs", cfg.JobsDir)
		}
		if cfg.InboxDir != "/tmp/inbox" {
			t.Errorf("InboxDir = %q, want /tmp/inbox", cfg.InboxDir)
		}
	})

	t.Run("gemini_key_list", func(t *testing.T) {
		c := setEnvs(t, map[string]string{"GEMINI_API_KEYS": "k1,k2,k3"})
		defer c()

		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(cfg.GeminiAPIKeys) != 3 || cfg.GeminiAPIKeys[1] != "k2" {
			t.Errorf("GeminiAPIKeys = %v, want [k1 k2 k3]", cfg.GeminiAPIKeys)
		}
	})

	t.Run("align_provider", func(t *testing.T) {
		c := setEnvs(t, map[string]string{"ALIGN_PROVIDER": "elevenlabs"})
		defer c()

		if _, err := Load(Overrides{EnvFile: "nonexistent.env"}); err == nil {
			t.Error("elevenlabs provider without API key should fail")
		}

		c2 := setEnvs(t, map[string]string{"ELEVENLABS_API_KEY": "el-key"})
		defer c2()
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.ElevenLabsModel != "scribe_v1" {
			t.Errorf("ElevenLabsModel = %q, want scribe_v1", cfg.ElevenLabsModel)
		}
	})

	t.Run("unknown_align_provider", func(t *testing.T) {
		c := setEnvs(t, map[string]string{"ALIGN_PROVIDER": "parakeet"})
		defer c()

		if _, err := Load(Overrides{EnvFile: "nonexistent.env"}); err == nil {
			t.Error("unknown provider should fail")
		}
	})

	t.Run("empty_overrides_use_env", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.DatabaseURL != "postgres://localhost/test" {
			t.Errorf("DatabaseURL = %q, want env value", cfg.DatabaseURL)
		}
	})
}

func TestLoadMissingRequired(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{
		"DATABASE_URL":      "",
		"CARTESIA_API_KEY":  "",
		"CARTESIA_VOICE_ID": "",
		"WHISPER_URL":       "",
	})
	defer cleanup()
	for _, k := range []string{"DATABASE_URL", "CARTESIA_API_KEY", "CARTESIA_VOICE_ID", "WHISPER_URL"} {
		os.Unsetenv(k)
	}

	_, err := Load(Overrides{EnvFile: "nonexistent.env"})
	if err == nil {
		t.Error("expected error when required env vars are missing")
	}
}

// setEnvs sets environment variables and returns a cleanup function.
func setEnvs(t *testing.T, envs map[string]string) func() {
	t.Helper()
	originals := make(map[string]string)
	unset := make([]string, 0)

	for k, v := range envs {
		if orig, ok := os.LookupEnv(k); ok {
			originals[k] = orig
		} else {
			unset = append(unset, k)
		}
		os.Setenv(k, v)
	}

	return func() {
		for k, v := range originals {
			os.Setenv(k, v)
		}
		for _, k := range unset {
			os.Unsetenv(k)
		}
	}
}
