package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/voicebridge/voicebridge/internal/provider"
)

const defaultAssemblyAIBaseURL = "https://api.assemblyai.com"

// AssemblyAI transcribes finite audio clips through the AssemblyAI v2 REST
// API: upload the blob, create a transcript job, poll until it settles.
type AssemblyAI struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewAssemblyAI creates the default transcription client. apiKey is the
// process-wide credential; httpClient nil means a client with the standard
// provider timeout.
func NewAssemblyAI(apiKey, baseURL string, httpClient *http.Client, logger *slog.Logger) *AssemblyAI {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultAssemblyAIBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: provider.DefaultTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AssemblyAI{
		apiKey:       strings.TrimSpace(apiKey),
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   httpClient,
		pollInterval: time.Second,
		logger:       logger,
	}
}

func (c *AssemblyAI) Transcribe(ctx context.Context, audioPath string, apiKey string) (string, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		key = c.apiKey
	}
	if key == "" {
		return "", provider.Errorf(provider.StageSTT, "ASSEMBLYAI_API_KEY missing")
	}

	ctx, cancel := context.WithTimeout(ctx, provider.DefaultTimeout)
	defer cancel()

	audioURL, err := c.upload(ctx, audioPath, key)
	if err != nil {
		return "", provider.AsError(provider.StageSTT, err)
	}

	id, err := c.createTranscript(ctx, audioURL, key)
	if err != nil {
		return "", provider.AsError(provider.StageSTT, err)
	}

	text, err := c.awaitTranscript(ctx, id, key)
	if err != nil {
		return "", provider.AsError(provider.StageSTT, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", provider.Errorf(provider.StageSTT, "empty transcript")
	}

	c.logger.Debug("transcription complete",
		slog.String("transcript_excerpt", provider.Redact(text, 120)))
	return text, nil
}

func (c *AssemblyAI) upload(ctx context.Context, audioPath, key string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/upload", f)
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Authorization", key)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload status %d: %s", resp.StatusCode, readBodyExcerpt(resp.Body))
	}

	var decoded struct {
		UploadURL string `json:"upload_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if decoded.UploadURL == "" {
		return "", fmt.Errorf("upload response missing upload_url")
	}
	return decoded.UploadURL, nil
}

func (c *AssemblyAI) createTranscript(ctx context.Context, audioURL, key string) (string, error) {
	body, _ := json.Marshal(map[string]any{"audio_url": audioURL})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/transcript", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create transcript request: %w", err)
	}
	req.Header.Set("Authorization", key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcript request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcript status %d: %s", resp.StatusCode, readBodyExcerpt(resp.Body))
	}

	var decoded struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode transcript response: %w", err)
	}
	if decoded.ID == "" {
		return "", fmt.Errorf("transcript response missing id")
	}
	return decoded.ID, nil
}

func (c *AssemblyAI) awaitTranscript(ctx context.Context, id, key string) (string, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, text, cause, err := c.pollTranscript(ctx, id, key)
		if err != nil {
			return "", err
		}

		switch status {
		case "completed":
			return text, nil
		case "error":
			if cause == "" {
				cause = "transcription failed"
			}
			return "", fmt.Errorf("%s", cause)
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("transcription timed out: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *AssemblyAI) pollTranscript(ctx context.Context, id, key string) (status, text, cause string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/transcript/"+id, nil)
	if err != nil {
		return "", "", "", fmt.Errorf("create poll request: %w", err)
	}
	req.Header.Set("Authorization", key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", "", fmt.Errorf("poll failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", "", fmt.Errorf("poll status %d: %s", resp.StatusCode, readBodyExcerpt(resp.Body))
	}

	var decoded struct {
		Status string `json:"status"`
		Text   string `json:"text"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", "", "", fmt.Errorf("decode poll response: %w", err)
	}
	return decoded.Status, decoded.Text, decoded.Error, nil
}

func readBodyExcerpt(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 8192))
	return provider.Redact(string(b), 300)
}
