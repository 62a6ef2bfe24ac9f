package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/voicebridge/voicebridge/internal/agent"
	"github.com/voicebridge/voicebridge/internal/provider"
)

// maxUploadBytes bounds multipart parsing memory.
const maxUploadBytes = 32 << 20

// generateAudio is the single-turn TTS helper. The response shape stays
// stable for the UI: synthesis failure still returns 200 with the fallback
// asset so the client can play something.
func (s *Server) generateAudio(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || strings.TrimSpace(input.Text) == "" {
		writeStageError(w, http.StatusBadRequest, provider.Errorf(provider.StageTTS, "text is required"))
		return
	}

	audioURL, err := s.synthesizer.Synthesize(r.Context(), input.Text, "")
	if err != nil {
		s.logger.Warn("tts failure", slog.String("error", err.Error()))
		writeJSON(w, http.StatusOK, GenerateAudioResponse{
			OK:       true,
			AudioURL: s.fallbackAudioURL,
			Fallback: true,
			Warning:  provider.AsError(provider.StageTTS, err),
		})
		return
	}
	writeJSON(w, http.StatusOK, GenerateAudioResponse{OK: true, AudioURL: audioURL})
}

// uploadAudio persists the clip under the uploads directory and reports
// its bookkeeping.
func (s *Server) uploadAudio(w http.ResponseWriter, r *http.Request) {
	file, header, err := s.formFile(r)
	if err != nil {
		writeStageError(w, http.StatusBadRequest, provider.Errorf(provider.StageUpload, "file is required: %v", err))
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	savePath := filepath.Join(s.uploadDir, name)

	dst, err := os.Create(savePath)
	if err != nil {
		s.logger.Error("upload failed", slog.String("error", err.Error()))
		writeStageError(w, http.StatusInternalServerError, provider.Errorf(provider.StageUpload, "save failed: %v", err))
		return
	}
	defer dst.Close()

	n, err := io.Copy(dst, file)
	if err != nil {
		s.logger.Error("upload failed", slog.String("error", err.Error()))
		writeStageError(w, http.StatusInternalServerError, provider.Errorf(provider.StageUpload, "save failed: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		OK:          true,
		Filename:    name,
		ContentType: header.Header.Get("Content-Type"),
		SizeKB:      float64(n) / 1024,
	})
}

// transcribeFile is the standalone speech-to-text route.
func (s *Server) transcribeFile(w http.ResponseWriter, r *http.Request) {
	file, _, err := s.formFile(r)
	if err != nil {
		writeStageError(w, http.StatusBadRequest, provider.Errorf(provider.StageSTT, "file is required: %v", err))
		return
	}
	defer file.Close()

	tmpPath, err := saveTemp(file)
	if err != nil {
		writeStageError(w, http.StatusInternalServerError, provider.Errorf(provider.StageSTT, "ingest failed: %v", err))
		return
	}
	defer os.Remove(tmpPath)

	text, err := s.transcriber.Transcribe(r.Context(), tmpPath, "")
	if err != nil {
		s.logger.Warn("stt failure", slog.String("error", err.Error()))
		writeStageError(w, http.StatusInternalServerError, provider.AsError(provider.StageSTT, err))
		return
	}
	writeJSON(w, http.StatusOK, TranscribeResponse{OK: true, Transcript: text})
}

// agentChat runs one conversational turn for the path's session id.
func (s *Server) agentChat(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	file, _, err := s.formFile(r)
	if err != nil {
		writeStageError(w, http.StatusBadRequest, provider.Errorf(provider.StageAgent, "file is required: %v", err))
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		writeStageError(w, http.StatusInternalServerError, provider.Errorf(provider.StageAgent, "read upload: %v", err))
		return
	}

	req := agent.TurnRequest{
		SessionID: sessionID,
		Audio:     audio,
		WebSearch: formBool(r, "web_search"),
		Concise:   formBool(r, "concise"),
		Keys: agent.Credentials{
			STT:    r.FormValue("assemblyai_api_key"),
			LLM:    r.FormValue("gemini_api_key"),
			TTS:    r.FormValue("murf_api_key"),
			Search: r.FormValue("tavily_api_key"),
		},
	}

	s.logger.Info("keys_used",
		slog.String("stt", keySource(req.Keys.STT)),
		slog.String("llm", keySource(req.Keys.LLM)),
		slog.String("tts", keySource(req.Keys.TTS)),
		slog.String("search", keySource(req.Keys.Search)))

	result, perr := s.orchestrator.RunTurn(r.Context(), req)
	if perr != nil {
		status := http.StatusInternalServerError
		if perr.Stage == provider.StageSTT {
			status = http.StatusBadGateway
		}
		writeStageError(w, status, perr)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) formFile(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, nil, err
	}
	return r.FormFile("file")
}

func saveTemp(r io.Reader) (string, error) {
	tmp, err := os.CreateTemp("", "voicebridge-*.webm")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func formBool(r *http.Request, field string) bool {
	switch strings.ToLower(r.FormValue(field)) {
	case "true", "1", "on", "yes":
		return true
	}
	return false
}

func keySource(override string) string {
	if strings.TrimSpace(override) != "" {
		return "user"
	}
	return "env"
}
