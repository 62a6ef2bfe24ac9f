package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voicebridge/voicebridge/internal/stream"
)

// endSentinel is the text frame that finishes a transcription stream.
const endSentinel = "__end__"

// captureAckInterval is roughly how many bytes pass between progress acks
// on the raw-capture endpoint.
const captureAckInterval = 256 * 1024

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsEcho is a diagnostic endpoint: every text frame comes straight back.
func (s *Server) wsEcho(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.WriteMessage(websocket.TextMessage, []byte("Connected to /ws. Send any text and it will be echoed back."))
	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt == websocket.TextMessage {
			if err := conn.WriteMessage(websocket.TextMessage, []byte("echo: "+string(msg))); err != nil {
				return
			}
		}
	}
}

// wsTranscribe bridges inbound PCM16 mono 16kHz frames into a realtime
// transcription session. A text frame "__end__" (or disconnect) finishes
// the stream. Turn events come back as JSON frames.
func (s *Server) wsTranscribe(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = "no-session"
	}
	connID := uuid.NewString()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	logger := s.logger.With(slog.String("conn_id", connID), slog.String("session_id", sessionID))
	logger.Info("transcribe stream connected")

	client, err := s.newRealtime(r.Context())
	if err != nil {
		logger.Error("realtime session unavailable", slog.String("error", err.Error()))
		conn.WriteJSON(map[string]string{"type": "ERROR", "error": "realtime session unavailable"})
		return
	}

	bridge := stream.NewBridge(client, s.streamQueueSize, logger)
	bridge.Start()

	// Events arrive on the worker's side; only this goroutine touches the
	// socket for writes, so turn relays never run on the worker context.
	eventsDone := make(chan struct{})
	go func() {
		defer close(eventsDone)
		formatRequested := false
		for ev := range client.Events() {
			switch ev.Kind {
			case stream.EventBegin:
				logger.Info("realtime session began", slog.String("provider_session", ev.SessionID))
			case stream.EventTurn:
				// Partial turns are logged only; the peer sees just the
				// end-of-turn frame.
				logger.Info("turn",
					slog.String("transcript", ev.Transcript),
					slog.Bool("end_of_turn", ev.EndOfTurn))
				if ev.EndOfTurn {
					conn.WriteJSON(map[string]any{
						"type":        "turn",
						"transcript":  ev.Transcript,
						"end_of_turn": true,
					})
				}
				if ev.EndOfTurn && !ev.Formatted && !formatRequested {
					formatRequested = true
					if err := client.SetFormatTurns(true); err != nil {
						logger.Debug("format update failed", slog.String("error", err.Error()))
					}
				}
			case stream.EventTermination:
				logger.Info("realtime session terminated",
					slog.Float64("audio_seconds", ev.AudioDurationSeconds))
			case stream.EventError:
				logger.Warn("realtime stream error", slog.String("error", ev.Err.Error()))
			}
		}
	}()

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			bridge.Finish()
			break
		}
		ended := false
		switch mt {
		case websocket.BinaryMessage:
			// Binary payloads are opaque audio, even when their bytes
			// spell the sentinel.
			if !bridge.Enqueue(msg) {
				logger.Warn("bridge worker gone, dropping stream")
			}
		case websocket.TextMessage:
			if string(msg) == endSentinel {
				bridge.Finish()
				ended = true
			}
		}
		if ended {
			break
		}
	}

	// Socket-side teardown mirrors the worker's: the bridge guarantees the
	// provider sees one termination regardless of which side got here
	// first.
	bridge.Finish()
	bridge.Terminate()
	if !bridge.Wait(500 * time.Millisecond) {
		logger.Warn("bridge worker did not finish in time")
	}
	<-eventsDone
	logger.Info("transcribe stream closed")
}

type captureControl struct {
	Type string `json:"type"`
}

// wsCapture persists a raw audio stream to a file, driven by START/STOP
// control frames interleaved with binary frames. No provider involved, so
// writes happen inline with no worker.
func (s *Server) wsCapture(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = "no-session"
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.WriteJSON(map[string]string{"type": "ACK", "detail": "accepted"})

	filename := filepath.Join(s.uploadDir,
		fmt.Sprintf("stream_%s_%d.webm", sessionID, time.Now().UnixMilli()))

	logger := s.logger.With(slog.String("session_id", sessionID), slog.String("file", filename))

	var f *os.File
	total := 0
	lastAck := 0
	defer func() {
		if f != nil {
			f.Close()
		}
	}()

	openFile := func() bool {
		if f != nil {
			return true
		}
		var err error
		f, err = os.Create(filename)
		if err != nil {
			logger.Error("capture file create failed", slog.String("error", err.Error()))
			conn.WriteJSON(map[string]string{"type": "ERROR", "error": "cannot open capture file"})
			return false
		}
		return true
	}

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}

		switch mt {
		case websocket.TextMessage:
			var ctrl captureControl
			if err := json.Unmarshal(msg, &ctrl); err != nil {
				conn.WriteJSON(map[string]string{"type": "ERROR", "error": "bad JSON"})
				continue
			}
			switch ctrl.Type {
			case "START":
				if !openFile() {
					return
				}
				conn.WriteJSON(map[string]string{"type": "ACK", "detail": "recording"})
			case "STOP":
				if f != nil {
					f.Close()
					f = nil
				}
				conn.WriteJSON(map[string]any{
					"type":     "SAVED",
					"filename": filename,
					"bytes":    total,
				})
				logger.Info("capture saved", slog.Int("bytes", total))
				return
			default:
				conn.WriteJSON(map[string]string{"type": "ACK", "detail": "unknown:" + ctrl.Type})
			}

		case websocket.BinaryMessage:
			// A client that skipped START still gets its audio kept.
			if !openFile() {
				return
			}
			if _, err := f.Write(msg); err != nil {
				logger.Error("capture write failed", slog.String("error", err.Error()))
				conn.WriteJSON(map[string]string{"type": "ERROR", "error": "write failed"})
				return
			}
			total += len(msg)
			if total-lastAck >= captureAckInterval {
				lastAck = total
				conn.WriteJSON(map[string]string{"type": "ACK", "detail": fmt.Sprintf("bytes=%d", total)})
			}
		}
	}
}
