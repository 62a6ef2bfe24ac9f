// Package config loads process configuration from the environment.
// Per-provider credentials can additionally be overridden per request;
// everything else is process-wide.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port int

	AssemblyAIKey string
	GeminiKey     string
	MurfKey       string
	TavilyKey     string
	OpenAIKey     string

	// STTBackend selects the transcription provider: "assemblyai"
	// (default) or "whisper".
	STTBackend string

	GeminiModel string
	MurfVoice   string

	LogLevel  string
	LogFormat string

	FallbackAudioURL string
	UploadDir        string
	StaticDir        string

	// MaxHistoryTurns caps stored utterances per session; 0 = unbounded.
	MaxHistoryTurns int

	StreamQueueSize int
	ProviderTimeout time.Duration
}

func Load() Config {
	return Config{
		Port:             envInt("VB_PORT", 8000),
		AssemblyAIKey:    envStr("ASSEMBLYAI_API_KEY", ""),
		GeminiKey:        envStr("GEMINI_API_KEY", ""),
		MurfKey:          envStr("MURF_API_KEY", ""),
		TavilyKey:        envStr("TAVILY_API_KEY", ""),
		OpenAIKey:        envStr("OPENAI_API_KEY", ""),
		STTBackend:       envStr("VB_STT_BACKEND", "assemblyai"),
		GeminiModel:      envStr("VB_GEMINI_MODEL", "gemini-2.5-flash"),
		MurfVoice:        envStr("VB_MURF_VOICE", "en-US-miles"),
		LogLevel:         envStr("VB_LOG_LEVEL", "info"),
		LogFormat:        envStr("VB_LOG_FORMAT", "json"),
		FallbackAudioURL: envStr("VB_FALLBACK_AUDIO_URL", "/static/fallback.mp3"),
		UploadDir:        envStr("VB_UPLOAD_DIR", "uploads"),
		StaticDir:        envStr("VB_STATIC_DIR", "static"),
		MaxHistoryTurns:  envInt("VB_MAX_HISTORY_TURNS", 0),
		StreamQueueSize:  envInt("VB_STREAM_QUEUE_SIZE", 64),
		ProviderTimeout:  envDur("VB_PROVIDER_TIMEOUT", 30*time.Second),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
