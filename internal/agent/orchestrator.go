// Package agent drives one conversational turn: audio in, transcript,
// completion over the session history, synthesized reply out. Each stage
// either continues, degrades per its fallback policy, or aborts the turn.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/voicebridge/voicebridge/internal/provider"
	"github.com/voicebridge/voicebridge/internal/provider/stt"
	"github.com/voicebridge/voicebridge/internal/session"
)

// Fixed reply strings for the degraded paths.
const (
	apologyReply = "I'm having trouble connecting right now. Please try again."
	fillerReply  = "Let's talk about something else. How can I help you today?"

	conciseInstruction = "Answer in exactly 3 short bullet points. Keep it under 60 words.\n\n"
)

// Completer runs one chat completion over the conversation log.
type Completer interface {
	ChatFromHistory(ctx context.Context, history []session.Utterance, apiKey string) (string, error)
}

// Synthesizer turns reply text into a playable audio URL.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, apiKey string) (string, error)
}

// Searcher produces brief web context for prompt enrichment.
type Searcher interface {
	Brief(ctx context.Context, query string, apiKey string) (string, error)
}

// Credentials are optional per-call overrides; empty fields fall back to
// the process-wide defaults held by each client.
type Credentials struct {
	STT    string
	LLM    string
	TTS    string
	Search string
}

// TurnRequest is one audio clip plus its mode flags.
type TurnRequest struct {
	SessionID string
	Audio     []byte
	WebSearch bool
	Concise   bool
	Keys      Credentials
}

// TurnResult is the caller-facing contract for every turn, success or
// degraded-success. Only unrecoverable infrastructure failure produces an
// error response instead.
type TurnResult struct {
	OK         bool            `json:"ok"`
	Transcript string          `json:"transcript"`
	ReplyText  string          `json:"reply_text"`
	AudioURL   string          `json:"audio_url"`
	Degraded   bool            `json:"degraded"`
	Warning    *provider.Error `json:"warning,omitempty"`
}

// Orchestrator owns the provider clients and the session store.
type Orchestrator struct {
	transcriber stt.Transcriber
	completer   Completer
	synthesizer Synthesizer
	searcher    Searcher
	store       *session.Store

	fallbackAudioURL string
	logger           *slog.Logger
}

type Config struct {
	Transcriber      stt.Transcriber
	Completer        Completer
	Synthesizer      Synthesizer
	Searcher         Searcher
	Store            *session.Store
	FallbackAudioURL string
	Logger           *slog.Logger
}

func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		transcriber:      cfg.Transcriber,
		completer:        cfg.Completer,
		synthesizer:      cfg.Synthesizer,
		searcher:         cfg.Searcher,
		store:            cfg.Store,
		fallbackAudioURL: cfg.FallbackAudioURL,
		logger:           logger,
	}
}

// RunTurn executes the turn state machine. A non-nil *provider.Error means
// the turn terminated with no viable fallback (transcription failure or an
// ingest problem); anything else comes back as a TurnResult, degraded or
// not.
func (o *Orchestrator) RunTurn(ctx context.Context, req TurnRequest) (*TurnResult, *provider.Error) {
	tmpPath, err := o.ingest(req.Audio)
	if err != nil {
		return nil, provider.AsError(provider.StageAgent, err)
	}
	defer os.Remove(tmpPath)

	transcript, err := o.transcriber.Transcribe(ctx, tmpPath, req.Keys.STT)
	if err != nil {
		o.logger.Warn("transcription failed",
			slog.String("session_id", req.SessionID),
			slog.String("error", err.Error()))
		return nil, provider.AsError(provider.StageSTT, err)
	}

	userContent := o.composePrompt(ctx, transcript, req)
	o.store.Append(req.SessionID, session.Utterance{Role: session.RoleUser, Content: userContent})

	reply, err := o.completer.ChatFromHistory(ctx, o.store.History(req.SessionID), req.Keys.LLM)
	if err != nil {
		// No assistant append: the log must not claim a reply that was
		// fallback filler.
		warn := provider.AsError(provider.StageLLM, err)
		o.logger.Warn("completion failed",
			slog.String("session_id", req.SessionID),
			slog.String("error", err.Error()))

		audioURL, synthErr := o.synthesizer.Synthesize(ctx, apologyReply, req.Keys.TTS)
		if synthErr != nil {
			audioURL = o.fallbackAudioURL
		}
		return &TurnResult{
			OK:         true,
			Transcript: transcript,
			ReplyText:  apologyReply,
			AudioURL:   audioURL,
			Degraded:   true,
			Warning:    warn,
		}, nil
	}

	if strings.TrimSpace(reply) == "" {
		// Successful call, no candidates. Treated as success with a
		// neutral filler, not as failure.
		reply = fillerReply
	}
	o.store.Append(req.SessionID, session.Utterance{Role: session.RoleAssistant, Content: reply})

	audioURL, synthErr := o.synthesizer.Synthesize(ctx, reply, req.Keys.TTS)
	if synthErr != nil {
		o.logger.Warn("synthesis failed",
			slog.String("session_id", req.SessionID),
			slog.String("error", synthErr.Error()))
		return &TurnResult{
			OK:         true,
			Transcript: transcript,
			ReplyText:  reply,
			AudioURL:   o.fallbackAudioURL,
			Degraded:   true,
			Warning:    provider.AsError(provider.StageTTS, synthErr),
		}, nil
	}

	return &TurnResult{
		OK:         true,
		Transcript: transcript,
		ReplyText:  reply,
		AudioURL:   audioURL,
		Degraded:   false,
	}, nil
}

// ingest persists the uploaded clip to a scoped temporary file. The caller
// removes it on every exit path.
func (o *Orchestrator) ingest(audio []byte) (string, error) {
	tmp, err := os.CreateTemp("", "voicebridge-*.webm")
	if err != nil {
		return "", fmt.Errorf("create temp audio: %w", err)
	}
	if _, err := tmp.Write(audio); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write temp audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp audio: %w", err)
	}
	return tmp.Name(), nil
}

// composePrompt wraps the transcript per the turn's mode flags. Enrichment
// failure falls back to the raw transcript and is only logged.
func (o *Orchestrator) composePrompt(ctx context.Context, transcript string, req TurnRequest) string {
	if req.Concise {
		o.logger.Info("mode concise_on")
	}

	if req.WebSearch && o.searcher != nil {
		o.logger.Info("mode web_search_on")
		webCtx, err := o.searcher.Brief(ctx, transcript, req.Keys.Search)
		if err == nil {
			enriched := "Use the following web context to answer briefly. " +
				"Do not show raw URLs; refer to sources naturally.\n\n" +
				"[Web context]\n" + webCtx + "\n\n" +
				"[User question]\n" + transcript
			if req.Concise {
				return conciseInstruction + enriched
			}
			return enriched
		}
		o.logger.Warn("enrichment failed, proceeding on raw transcript",
			slog.String("session_id", req.SessionID),
			slog.String("error", err.Error()))
	}

	if req.Concise {
		return conciseInstruction + "[User question]\n" + transcript
	}
	return transcript
}
