package api

import (
	"encoding/json"
	"net/http"

	"github.com/voicebridge/voicebridge/internal/provider"
)

// Response shapes for the HTTP surface. The chat route returns
// agent.TurnResult directly.

type GenerateAudioResponse struct {
	OK       bool            `json:"ok"`
	AudioURL string          `json:"audio_url"`
	Fallback bool            `json:"fallback,omitempty"`
	Warning  *provider.Error `json:"warning,omitempty"`
}

type UploadResponse struct {
	OK          bool    `json:"ok"`
	Filename    string  `json:"filename"`
	ContentType string  `json:"content_type"`
	SizeKB      float64 `json:"size_kb"`
}

type TranscribeResponse struct {
	OK         bool   `json:"ok"`
	Transcript string `json:"transcript"`
}

type stageErrorResponse struct {
	OK    bool           `json:"ok"`
	Stage provider.Stage `json:"stage"`
	Error string         `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeStageError emits the common {ok:false, stage, error} failure shape.
func writeStageError(w http.ResponseWriter, status int, perr *provider.Error) {
	writeJSON(w, status, stageErrorResponse{OK: false, Stage: perr.Stage, Error: perr.Cause})
}
