package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/voicebridge/voicebridge/internal/agent"
	"github.com/voicebridge/voicebridge/internal/api"
	"github.com/voicebridge/voicebridge/internal/config"
	"github.com/voicebridge/voicebridge/internal/provider/llm"
	"github.com/voicebridge/voicebridge/internal/provider/search"
	"github.com/voicebridge/voicebridge/internal/provider/stt"
	"github.com/voicebridge/voicebridge/internal/provider/tts"
	"github.com/voicebridge/voicebridge/internal/session"
	"github.com/voicebridge/voicebridge/internal/stream"
	"github.com/voicebridge/voicebridge/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "voicebridge",
	Short: "Voicebridge - conversational voice agent backend",
	Long: `voicebridge runs the HTTP and websocket backend for a voice agent:
speech-to-text, chat completion over per-session history, text-to-speech,
and realtime transcription streaming.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetVersionInfo())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the voicebridge server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Port = port
		}

		logger := setupLogger(cfg)
		logger.Info("Starting server",
			slog.String("service", "voicebridge"),
			slog.String("version", version.Version),
			slog.String("commit", version.GitCommit),
			slog.Int("port", cfg.Port),
			slog.String("stt_backend", cfg.STTBackend))

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		srv, err := buildServer(cfg, logger)
		if err != nil {
			logger.Error("Server setup failed", slog.String("error", err.Error()))
			return err
		}

		if err := srv.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", slog.String("error", err.Error()))
			return err
		}
		return nil
	},
}

var healthzCmd = &cobra.Command{
	Use:   "healthz",
	Short: "Quick configuration check (validates credentials are present)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		logger := setupLogger(cfg)
		logger.Info("Performing health check",
			slog.String("service", "voicebridge"),
			slog.String("version", version.Version))

		missing := []string{}
		if cfg.AssemblyAIKey == "" && cfg.STTBackend == "assemblyai" {
			missing = append(missing, "ASSEMBLYAI_API_KEY")
		}
		if cfg.OpenAIKey == "" && cfg.STTBackend == "whisper" {
			missing = append(missing, "OPENAI_API_KEY")
		}
		if cfg.GeminiKey == "" {
			missing = append(missing, "GEMINI_API_KEY")
		}
		if cfg.MurfKey == "" {
			missing = append(missing, "MURF_API_KEY")
		}
		if len(missing) > 0 {
			return fmt.Errorf("missing credentials: %v (per-request overrides can still supply them)", missing)
		}

		logger.Info("Health check passed - required credentials present")
		return nil
	},
}

func buildServer(cfg config.Config, logger *slog.Logger) (*api.Server, error) {
	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}

	var transcriber stt.Transcriber
	switch cfg.STTBackend {
	case "whisper":
		transcriber = stt.NewWhisper(cfg.OpenAIKey, "", logger)
	case "assemblyai":
		transcriber = stt.NewAssemblyAI(cfg.AssemblyAIKey, "", httpClient, logger)
	default:
		return nil, fmt.Errorf("unknown STT backend %q", cfg.STTBackend)
	}

	completer := llm.NewGemini(cfg.GeminiKey, "", cfg.GeminiModel, httpClient, logger)
	synthesizer := tts.NewMurf(cfg.MurfKey, "", cfg.MurfVoice, httpClient, logger)
	searcher := search.NewTavily(cfg.TavilyKey, "", httpClient, logger)
	store := session.NewStore(cfg.MaxHistoryTurns)

	orchestrator := agent.New(agent.Config{
		Transcriber:      transcriber,
		Completer:        completer,
		Synthesizer:      synthesizer,
		Searcher:         searcher,
		Store:            store,
		FallbackAudioURL: cfg.FallbackAudioURL,
		Logger:           logger,
	})

	newRealtime := func(ctx context.Context) (stream.RealtimeClient, error) {
		client := stream.NewAssemblyAIRealtime(cfg.AssemblyAIKey, "", 16000, logger)
		if err := client.Connect(ctx); err != nil {
			return nil, err
		}
		return client, nil
	}

	return api.NewServer(api.Config{
		Port:             cfg.Port,
		Orchestrator:     orchestrator,
		Transcriber:      transcriber,
		Synthesizer:      synthesizer,
		NewRealtime:      newRealtime,
		FallbackAudioURL: cfg.FallbackAudioURL,
		UploadDir:        cfg.UploadDir,
		StaticDir:        cfg.StaticDir,
		StreamQueueSize:  cfg.StreamQueueSize,
		Logger:           logger,
	})
}

func setupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{}

	switch cfg.LogLevel {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.LogFormat == "console" || cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func main() {
	serveCmd.Flags().Int("port", 0, "Listen port (overrides VB_PORT)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthzCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
