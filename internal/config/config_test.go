package config

import (
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestLoadDefaults(t *testing.T) {
	is := is.New(t)

	cfg := Load()
	is.Equal(cfg.Port, 8000)
	is.Equal(cfg.STTBackend, "assemblyai")
	is.Equal(cfg.GeminiModel, "gemini-2.5-flash")
	is.Equal(cfg.MurfVoice, "en-US-miles")
	is.Equal(cfg.FallbackAudioURL, "/static/fallback.mp3")
	is.Equal(cfg.MaxHistoryTurns, 0) // unbounded by default
	is.Equal(cfg.StreamQueueSize, 64)
	is.Equal(cfg.ProviderTimeout, 30*time.Second)
}

func TestLoadOverrides(t *testing.T) {
	is := is.New(t)

	t.Setenv("VB_PORT", "9001")
	t.Setenv("VB_STT_BACKEND", "whisper")
	t.Setenv("VB_MAX_HISTORY_TURNS", "40")
	t.Setenv("VB_PROVIDER_TIMEOUT", "45s")
	t.Setenv("ASSEMBLYAI_API_KEY", "aa-key")

	cfg := Load()
	is.Equal(cfg.Port, 9001)
	is.Equal(cfg.STTBackend, "whisper")
	is.Equal(cfg.MaxHistoryTurns, 40)
	is.Equal(cfg.ProviderTimeout, 45*time.Second)
	is.Equal(cfg.AssemblyAIKey, "aa-key")
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	is := is.New(t)

	t.Setenv("VB_PORT", "not-a-number")
	t.Setenv("VB_PROVIDER_TIMEOUT", "soon")

	cfg := Load()
	is.Equal(cfg.Port, 8000) // malformed values fall back to defaults
	is.Equal(cfg.ProviderTimeout, 30*time.Second)
}
