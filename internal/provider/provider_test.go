package provider

import (
	"errors"
	"strings"
	"testing"

	"github.com/matryer/is"
)

func TestErrorString(t *testing.T) {
	is := is.New(t)

	err := Errorf(StageTTS, "voice %s rejected", "en-US-miles")
	is.Equal(err.Error(), "tts: voice en-US-miles rejected") // stage prefixes the cause
	is.Equal(err.Stage, StageTTS)
}

func TestAsErrorPreservesStage(t *testing.T) {
	is := is.New(t)

	orig := Errorf(StageSTT, "empty transcript")
	tagged := AsError(StageAgent, orig)
	is.Equal(tagged.Stage, StageSTT) // an already-tagged error keeps its stage

	plain := AsError(StageLLM, errors.New("boom"))
	is.Equal(plain.Stage, StageLLM)
	is.Equal(plain.Cause, "boom")
}

func TestRedact(t *testing.T) {
	is := is.New(t)

	is.Equal(Redact("  hello  ", 10), "hello") // trimmed, under cap
	is.Equal(Redact("hello", 5), "hello")      // exactly at cap

	long := strings.Repeat("a", 400)
	out := Redact(long, 300)
	is.Equal(len([]rune(out)), 301) // 300 runes plus the ellipsis
	is.True(strings.HasSuffix(out, "…"))
}

func TestRedactMultibyte(t *testing.T) {
	is := is.New(t)

	// Rune-safe truncation must not split a multibyte character.
	out := Redact(strings.Repeat("é", 10), 3)
	is.Equal(out, "ééé…")
}
