// Package tts wraps the Murf speech generation API. Failures never raise
// past this boundary; callers get a stage-tagged error carrying a redacted
// diagnostic and decide what to play instead.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/voicebridge/voicebridge/internal/provider"
)

const defaultMurfBaseURL = "https://api.murf.ai"

// maxInputChars caps synthesis input to respect the provider limit.
const maxInputChars = 3000

// Murf is the synthesis client.
type Murf struct {
	apiKey     string
	baseURL    string
	voiceID    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewMurf(apiKey, baseURL, voiceID string, httpClient *http.Client, logger *slog.Logger) *Murf {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultMurfBaseURL
	}
	if voiceID == "" {
		voiceID = "en-US-miles"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: provider.DefaultTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Murf{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		voiceID:    voiceID,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Synthesize turns reply text into a playable audio URL. Input beyond the
// provider's character limit is truncated, not rejected.
func (m *Murf) Synthesize(ctx context.Context, text string, apiKey string) (string, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		key = m.apiKey
	}
	if key == "" {
		return "", provider.Errorf(provider.StageTTS, "MURF_API_KEY missing")
	}

	if r := []rune(text); len(r) > maxInputChars {
		text = string(r[:maxInputChars])
	}

	body, _ := json.Marshal(map[string]any{
		"text":     text,
		"voice_id": m.voiceID,
		"style":    "Conversational",
		"pitch":    1.7,
		"speed":    1.9,
		"format":   "mp3",
	})

	ctx, cancel := context.WithTimeout(ctx, provider.DefaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v1/speech/generate", bytes.NewReader(body))
	if err != nil {
		return "", provider.Errorf(provider.StageTTS, "create request: %v", err)
	}
	req.Header.Set("api-key", key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", provider.Errorf(provider.StageTTS, "request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return "", provider.Errorf(provider.StageTTS, "murf status %d: %s",
			resp.StatusCode, provider.Redact(string(b), 300))
	}

	var decoded struct {
		AudioFile string `json:"audioFile"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", provider.Errorf(provider.StageTTS, "decode response: %v", err)
	}
	if decoded.AudioFile == "" {
		return "", provider.Errorf(provider.StageTTS, "murf response missing audioFile")
	}

	m.logger.Debug("synthesis complete", slog.Int("chars", len(text)))
	return decoded.AudioFile, nil
}
