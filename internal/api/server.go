// Package api exposes the HTTP and websocket surface: single-turn helper
// routes, the conversational turn route, and the realtime bridge
// endpoints.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/voicebridge/voicebridge/internal/agent"
	"github.com/voicebridge/voicebridge/internal/provider"
	"github.com/voicebridge/voicebridge/internal/provider/stt"
	"github.com/voicebridge/voicebridge/internal/stream"
)

// RealtimeFactory opens a fresh connected realtime transcription session
// for one bridge connection.
type RealtimeFactory func(ctx context.Context) (stream.RealtimeClient, error)

type Server struct {
	router *chi.Mux
	port   int
	logger *slog.Logger

	orchestrator *agent.Orchestrator
	transcriber  stt.Transcriber
	synthesizer  agent.Synthesizer
	newRealtime  RealtimeFactory

	fallbackAudioURL string
	uploadDir        string
	staticDir        string
	streamQueueSize  int
}

type Config struct {
	Port             int
	Orchestrator     *agent.Orchestrator
	Transcriber      stt.Transcriber
	Synthesizer      agent.Synthesizer
	NewRealtime      RealtimeFactory
	FallbackAudioURL string
	UploadDir        string
	StaticDir        string
	StreamQueueSize  int
	Logger           *slog.Logger
}

func NewServer(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UploadDir != "" {
		if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
			return nil, fmt.Errorf("create upload dir: %w", err)
		}
	}

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(recoverJSON(logger))

	s := &Server{
		router:           router,
		port:             cfg.Port,
		logger:           logger,
		orchestrator:     cfg.Orchestrator,
		transcriber:      cfg.Transcriber,
		synthesizer:      cfg.Synthesizer,
		newRealtime:      cfg.NewRealtime,
		fallbackAudioURL: cfg.FallbackAudioURL,
		uploadDir:        cfg.UploadDir,
		staticDir:        cfg.StaticDir,
		streamQueueSize:  cfg.StreamQueueSize,
	}

	router.Get("/health", s.health)
	router.Post("/generate-audio", s.generateAudio)
	router.Post("/upload-audio", s.uploadAudio)
	router.Post("/transcribe/file", s.transcribeFile)
	router.Post("/agent/chat/{session_id}", s.agentChat)

	router.Get("/ws", s.wsEcho)
	router.Get("/ws/transcribe", s.wsTranscribe)
	router.Get("/ws/stream", s.wsCapture)

	if cfg.StaticDir != "" {
		router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))))
	}

	return s, nil
}

// recoverJSON keeps a handler panic from tearing down the connection
// bare: the peer gets the common failure shape, tagged agent.
func recoverJSON(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("handler panic",
						slog.String("path", r.URL.Path),
						slog.Any("panic", rec))
					writeStageError(w, http.StatusInternalServerError,
						provider.Errorf(provider.StageAgent, "internal error"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	srv := &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
