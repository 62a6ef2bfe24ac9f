package stt

import (
	"context"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voicebridge/voicebridge/internal/provider"
)

// Whisper is the alternate transcription backend, selected with
// VB_STT_BACKEND=whisper. It sends the whole clip to OpenAI's Whisper API
// in one shot.
type Whisper struct {
	apiKey string
	model  string
	logger *slog.Logger
}

func NewWhisper(apiKey, model string, logger *slog.Logger) *Whisper {
	if model == "" {
		model = openai.Whisper1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Whisper{apiKey: strings.TrimSpace(apiKey), model: model, logger: logger}
}

func (w *Whisper) Transcribe(ctx context.Context, audioPath string, apiKey string) (string, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		key = w.apiKey
	}
	if key == "" {
		return "", provider.Errorf(provider.StageSTT, "OPENAI_API_KEY missing")
	}

	ctx, cancel := context.WithTimeout(ctx, provider.DefaultTimeout)
	defer cancel()

	// Per-call credential overrides mean the client cannot be shared.
	client := openai.NewClient(key)
	resp, err := client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", provider.Errorf(provider.StageSTT, "whisper transcription failed: %v", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", provider.Errorf(provider.StageSTT, "empty transcript")
	}

	w.logger.Debug("transcription complete",
		slog.String("transcript_excerpt", provider.Redact(text, 120)))
	return text, nil
}
