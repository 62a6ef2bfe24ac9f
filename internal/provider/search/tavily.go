// Package search wraps the Tavily web-search API for prompt enrichment.
// Enrichment is never fatal to a turn; callers swallow errors from here
// and proceed on the raw transcript.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/voicebridge/voicebridge/internal/provider"
)

const defaultTavilyBaseURL = "https://api.tavily.com"

// maxResults is the fixed result cap requested from the provider.
const maxResults = 5

// Tavily is the search client.
type Tavily struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewTavily(apiKey, baseURL string, httpClient *http.Client, logger *slog.Logger) *Tavily {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultTavilyBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: provider.DefaultTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tavily{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Brief asks for an advanced search with a direct-answer preference and
// returns concise context text for the next completion prompt. If the
// provider gives a direct answer it is used verbatim; otherwise the top
// three result snippets are concatenated, truncated per snippet.
func (t *Tavily) Brief(ctx context.Context, query string, apiKey string) (string, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		key = t.apiKey
	}
	if key == "" {
		return "", provider.Errorf(provider.StageSearch, "TAVILY_API_KEY missing")
	}

	t.logger.Info("search request",
		slog.String("query_excerpt", provider.Redact(query, 200)),
		slog.String("search_depth", "advanced"),
		slog.Int("max_results", maxResults))

	body, _ := json.Marshal(map[string]any{
		"query":          query,
		"search_depth":   "advanced",
		"include_answer": true,
		"max_results":    maxResults,
	})

	ctx, cancel := context.WithTimeout(ctx, provider.DefaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return "", provider.Errorf(provider.StageSearch, "create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", provider.Errorf(provider.StageSearch, "request failed: %v", err)
	}
	defer resp.Body.Close()

	t.logger.Info("search response",
		slog.Int("status", resp.StatusCode),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return "", provider.Errorf(provider.StageSearch, "tavily status %d: %s",
			resp.StatusCode, provider.Redact(string(b), 300))
	}

	var decoded tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", provider.Errorf(provider.StageSearch, "decode response: %v", err)
	}

	answer := strings.TrimSpace(decoded.Answer)
	if answer != "" {
		t.logger.Debug("search answer",
			slog.String("answer_excerpt", provider.Redact(answer, 300)))
		return answer, nil
	}

	snippets := make([]string, 0, 3)
	for i, r := range decoded.Results {
		if i >= 3 {
			break
		}
		if c := strings.TrimSpace(r.Content); c != "" {
			snippets = append(snippets, provider.Redact(c, 300))
		}
	}
	if len(snippets) == 0 {
		return "No useful web context found.", nil
	}
	return strings.Join(snippets, "\n\n"), nil
}
