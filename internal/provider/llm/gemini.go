// Package llm wraps the Gemini generateContent REST API for multi-turn
// chat completion. The provider is stateless across calls, so the full
// conversation log and the persona directive are resent every time.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/voicebridge/voicebridge/internal/provider"
	"github.com/voicebridge/voicebridge/internal/session"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	defaultGeminiModel   = "gemini-2.5-flash"
)

// personaDirective is the fixed system instruction resent on every call.
const personaDirective = "You are Doraemon, a friendly, futuristic robot cat from the 22nd century. " +
	"Always speak in a warm, playful, and childlike tone, just like Doraemon talks to Nobita. " +
	"Be concise, kind, and encouraging. " +
	"Keep responses safe, positive, and family-friendly at all times. " +
	"When answering, imagine you are speaking directly to Nobita. " +
	"Never break character as Doraemon. " +
	"Do not include emotions like boing and giggles; return clean text. " +
	"As you are a voice agent, keep your responses detailed."

// Gemini is the completion client.
type Gemini struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewGemini(apiKey, baseURL, model string, httpClient *http.Client, logger *slog.Logger) *Gemini {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultGeminiBaseURL
	}
	if model == "" {
		model = defaultGeminiModel
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: provider.DefaultTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gemini{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Gemini wire types.
type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// ChatFromHistory runs one completion over the full conversation log.
// The primary attempt sends the entire history; if it errors or comes back
// empty, a single secondary attempt sends only the most recent user
// utterance. That degradation dodges provider-side rejections tied to the
// accumulated history. Both attempts failing is a stage llm failure.
func (g *Gemini) ChatFromHistory(ctx context.Context, history []session.Utterance, apiKey string) (string, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		key = g.apiKey
	}
	if key == "" {
		return "", provider.Errorf(provider.StageLLM, "GEMINI_API_KEY missing")
	}

	contents := toGeminiContents(history)

	text, err := g.generate(ctx, contents, key)
	if err == nil && strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text), nil
	}
	if err != nil {
		g.logger.Warn("full-history completion failed, retrying with last user utterance",
			slog.String("error", err.Error()))
	}

	lastUser := "Hello"
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == session.RoleUser {
			lastUser = history[i].Content
			break
		}
	}

	text, err = g.generate(ctx, []geminiContent{{
		Role:  "user",
		Parts: []geminiPart{{Text: lastUser}},
	}}, key)
	if err != nil {
		return "", provider.AsError(provider.StageLLM, err)
	}
	return strings.TrimSpace(text), nil
}

func (g *Gemini) generate(ctx context.Context, contents []geminiContent, key string) (string, error) {
	body := geminiRequest{
		Contents: contents,
		SystemInstruction: &geminiContent{
			Role:  "system",
			Parts: []geminiPart{{Text: personaDirective}},
		},
	}
	payload, _ := json.Marshal(body)

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, g.model)

	ctx, cancel := context.WithTimeout(ctx, provider.DefaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-goog-api-key", key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return "", fmt.Errorf("gemini status %d: %s", resp.StatusCode, provider.Redact(string(b), 300))
	}

	var decoded geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return extractCandidateText(decoded), nil
}

// extractCandidateText pulls plain text out of the nested candidate/part
// structure. Returns "" when no candidate carries text.
func extractCandidateText(resp geminiResponse) string {
	for _, c := range resp.Candidates {
		texts := make([]string, 0, len(c.Content.Parts))
		for _, p := range c.Content.Parts {
			if p.Text != "" {
				texts = append(texts, p.Text)
			}
		}
		if combined := strings.TrimSpace(strings.Join(texts, " ")); combined != "" {
			return combined
		}
	}
	return ""
}

// toGeminiContents maps the conversation log onto the wire format. Gemini
// uses "model" where the log says assistant.
func toGeminiContents(history []session.Utterance) []geminiContent {
	contents := make([]geminiContent, 0, len(history))
	for _, u := range history {
		role := "user"
		if u.Role == session.RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: u.Content}},
		})
	}
	return contents
}
