package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/matryer/is"

	"github.com/voicebridge/voicebridge/internal/provider"
	"github.com/voicebridge/voicebridge/internal/session"
)

func candidateBody(text string) string {
	quoted, _ := json.Marshal(text)
	return `{"candidates":[{"content":{"parts":[{"text":` + string(quoted) + `}]}}]}`
}

func TestChatFromHistoryHappyPath(t *testing.T) {
	is := is.New(t)

	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		is.Equal(r.Header.Get("x-goog-api-key"), "k-test") // key travels in the header
		is.NoErr(json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(candidateBody("hi Nobita!")))
	}))
	defer srv.Close()

	g := NewGemini("k-test", srv.URL, "gemini-2.5-flash", srv.Client(), nil)

	history := []session.Utterance{
		{Role: session.RoleUser, Content: "hello"},
		{Role: session.RoleAssistant, Content: "hi"},
		{Role: session.RoleUser, Content: "tell me a story"},
	}
	text, err := g.ChatFromHistory(context.Background(), history, "")
	is.NoErr(err)
	is.Equal(text, "hi Nobita!")

	is.Equal(len(got.Contents), 3)
	is.Equal(got.Contents[0].Role, "user")
	is.Equal(got.Contents[1].Role, "model") // assistant maps to model on the wire
	is.True(got.SystemInstruction != nil)   // persona directive always attached
}

func TestChatFromHistoryRetriesWithLastUser(t *testing.T) {
	is := is.New(t)

	calls := 0
	var second geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, `{"error":"history too long"}`, http.StatusBadRequest)
			return
		}
		json.NewDecoder(r.Body).Decode(&second)
		w.Write([]byte(candidateBody("short answer")))
	}))
	defer srv.Close()

	g := NewGemini("k", srv.URL, "m", srv.Client(), nil)
	history := []session.Utterance{
		{Role: session.RoleUser, Content: "first"},
		{Role: session.RoleAssistant, Content: "reply"},
		{Role: session.RoleUser, Content: "latest question"},
	}

	text, err := g.ChatFromHistory(context.Background(), history, "")
	is.NoErr(err)
	is.Equal(text, "short answer")
	is.Equal(calls, 2)
	is.Equal(len(second.Contents), 1) // retry carries only the last user utterance
	is.Equal(second.Contents[0].Parts[0].Text, "latest question")
}

func TestChatFromHistoryBothAttemptsFail(t *testing.T) {
	is := is.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := NewGemini("k", srv.URL, "m", srv.Client(), nil)
	_, err := g.ChatFromHistory(context.Background(), []session.Utterance{
		{Role: session.RoleUser, Content: "q"},
	}, "")
	is.True(err != nil)
	is.Equal(provider.AsError(provider.StageLLM, err).Stage, provider.StageLLM)
}

func TestChatFromHistoryEmptyPrimaryTriggersRetry(t *testing.T) {
	is := is.New(t)

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Write([]byte(`{"candidates":[]}`)) // 200 with no candidates
			return
		}
		w.Write([]byte(candidateBody("fallback text")))
	}))
	defer srv.Close()

	g := NewGemini("k", srv.URL, "m", srv.Client(), nil)
	text, err := g.ChatFromHistory(context.Background(), nil, "")
	is.NoErr(err)
	is.Equal(text, "fallback text")
	is.Equal(calls, 2)
}

func TestChatFromHistoryMissingKey(t *testing.T) {
	is := is.New(t)

	g := NewGemini("", "http://unused", "m", nil, nil)
	_, err := g.ChatFromHistory(context.Background(), nil, "")
	is.True(err != nil)

	perr, ok := err.(*provider.Error)
	is.True(ok)
	is.Equal(perr.Stage, provider.StageLLM)
}

func TestExtractCandidateTextJoinsParts(t *testing.T) {
	is := is.New(t)

	var resp geminiResponse
	is.NoErr(json.Unmarshal([]byte(`{"candidates":[{"content":{"parts":[{"text":"a"},{"text":""},{"text":"b"}]}}]}`), &resp))
	is.Equal(extractCandidateText(resp), "a b") // empty parts dropped, rest joined

	is.NoErr(json.Unmarshal([]byte(`{"candidates":[{"content":{"parts":[]}},{"content":{"parts":[{"text":"second"}]}}]}`), &resp))
	is.Equal(extractCandidateText(resp), "second") // first non-empty candidate wins
}
