package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/matryer/is"

	"github.com/voicebridge/voicebridge/internal/provider"
)

func TestBriefUsesDirectAnswer(t *testing.T) {
	is := is.New(t)

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		is.Equal(r.URL.Path, "/search")
		is.Equal(r.Header.Get("Authorization"), "Bearer k-test")
		is.NoErr(json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"answer":"The answer is 42.","results":[{"content":"ignored"}]}`))
	}))
	defer srv.Close()

	s := NewTavily("k-test", srv.URL, srv.Client(), nil)
	out, err := s.Brief(context.Background(), "what is the answer", "")
	is.NoErr(err)
	is.Equal(out, "The answer is 42.") // answer wins over snippets

	is.Equal(got["search_depth"], "advanced")
	is.Equal(got["include_answer"], true)
	is.Equal(got["max_results"], float64(maxResults))
}

func TestBriefFallsBackToSnippets(t *testing.T) {
	is := is.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"answer":"","results":[
			{"content":"first snippet"},
			{"content":"second snippet"},
			{"content":"third snippet"},
			{"content":"fourth snippet"}
		]}`))
	}))
	defer srv.Close()

	s := NewTavily("k", srv.URL, srv.Client(), nil)
	out, err := s.Brief(context.Background(), "q", "")
	is.NoErr(err)

	parts := strings.Split(out, "\n\n")
	is.Equal(len(parts), 3) // top three only
	is.Equal(parts[0], "first snippet")
	is.True(!strings.Contains(out, "fourth")) // fourth result dropped
}

func TestBriefEmptyResults(t *testing.T) {
	is := is.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"answer":"","results":[]}`))
	}))
	defer srv.Close()

	s := NewTavily("k", srv.URL, srv.Client(), nil)
	out, err := s.Brief(context.Background(), "q", "")
	is.NoErr(err)
	is.Equal(out, "No useful web context found.")
}

func TestBriefMissingKey(t *testing.T) {
	is := is.New(t)

	s := NewTavily("", "http://unused", nil, nil)
	_, err := s.Brief(context.Background(), "q", "")
	is.True(err != nil)

	perr, ok := err.(*provider.Error)
	is.True(ok)
	is.Equal(perr.Stage, provider.StageSearch)
}

func TestBriefNon200(t *testing.T) {
	is := is.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewTavily("k", srv.URL, srv.Client(), nil)
	_, err := s.Brief(context.Background(), "q", "")
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "401"))
}
