// Package provider defines the shared failure shape for the external
// services the pipeline talks to. Every client reports problems as a
// *Error tagged with the pipeline stage that failed, so the orchestrator
// can apply one fallback policy to all of them.
package provider

import (
	"fmt"
	"strings"
	"time"
)

// Stage identifies which pipeline stage an error belongs to. The tag is
// mirrored on every structured error payload sent to callers.
type Stage string

const (
	StageUpload Stage = "upload"
	StageSTT    Stage = "stt"
	StageLLM    Stage = "llm"
	StageTTS    Stage = "tts"
	StageSearch Stage = "search"
	StageAgent  Stage = "agent"
)

// DefaultTimeout bounds every outbound provider call. A call that has not
// finished by then is treated as a failure, never left pending.
const DefaultTimeout = 30 * time.Second

// Error is a stage-tagged provider failure. It never wraps a raw provider
// payload; Cause is a human-readable diagnostic, redacted where needed.
type Error struct {
	Stage Stage  `json:"stage"`
	Cause string `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Cause)
}

// Errorf builds a stage-tagged error from a format string.
func Errorf(stage Stage, format string, args ...any) *Error {
	return &Error{Stage: stage, Cause: fmt.Sprintf(format, args...)}
}

// AsError converts any error into a stage-tagged one, preserving the tag
// if err already carries one.
func AsError(stage Stage, err error) *Error {
	if pe, ok := err.(*Error); ok {
		return pe
	}
	return &Error{Stage: stage, Cause: err.Error()}
}

// Redact trims s and caps it at max runes so user content and provider
// payloads never land in logs whole.
func Redact(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
