// Package stt wraps the speech-to-text providers behind one contract:
// hand over a finite audio clip, get back non-empty transcript text or a
// stage-tagged failure.
package stt

import "context"

// Transcriber converts a stored audio clip into text. apiKey overrides the
// process-wide credential for this call; empty means use the default.
// An empty transcript after trimming is reported as a failure, because
// downstream stages assume non-empty user content.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, apiKey string) (string, error)
}
