package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultRealtimeURL = "wss://streaming.assemblyai.com/v3/ws"

	// DefaultSampleRate is the PCM16 mono framing the inbound socket
	// promises.
	DefaultSampleRate = 16000
)

// AssemblyAIRealtime drives one AssemblyAI v3 streaming session over a
// websocket. The connection carries binary audio frames up and JSON events
// down; a single read loop decodes events onto the Events channel.
type AssemblyAIRealtime struct {
	apiKey     string
	baseURL    string
	sampleRate int
	logger     *slog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex
	events  chan Event
}

func NewAssemblyAIRealtime(apiKey, baseURL string, sampleRate int, logger *slog.Logger) *AssemblyAIRealtime {
	if baseURL == "" {
		baseURL = defaultRealtimeURL
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AssemblyAIRealtime{
		apiKey:     apiKey,
		baseURL:    baseURL,
		sampleRate: sampleRate,
		logger:     logger,
		events:     make(chan Event, 16),
	}
}

// Connect dials the streaming endpoint and starts the event read loop.
func (c *AssemblyAIRealtime) Connect(ctx context.Context) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid realtime URL: %w", err)
	}
	q := u.Query()
	q.Set("sample_rate", strconv.Itoa(c.sampleRate))
	q.Set("format_turns", "true")
	u.RawQuery = q.Encode()

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	header := http.Header{}
	header.Set("Authorization", c.apiKey)

	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("failed to connect realtime session: %w", err)
	}
	c.conn = conn
	c.logger.Debug("realtime session connected", slog.String("url", u.Host))

	go c.readLoop()
	return nil
}

// Stream feeds audio chunks to the provider until the feed closes or a
// write fails. Only the bridge worker calls this.
func (c *AssemblyAIRealtime) Stream(feed <-chan []byte) error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	for chunk := range feed {
		if len(chunk) == 0 {
			continue
		}
		if err := c.writeMessage(websocket.BinaryMessage, chunk); err != nil {
			return fmt.Errorf("write audio frame: %w", err)
		}
	}
	return nil
}

// Terminate asks the provider to close the session. The read loop drains
// the Termination event before the deadline cuts it off.
func (c *AssemblyAIRealtime) Terminate() error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	msg, _ := json.Marshal(map[string]any{"type": "Terminate"})
	err := c.writeMessage(websocket.TextMessage, msg)
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return err
}

// SetFormatTurns updates session parameters so subsequent turns arrive
// formatted.
func (c *AssemblyAIRealtime) SetFormatTurns(on bool) error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	msg, _ := json.Marshal(map[string]any{
		"type":         "UpdateConfiguration",
		"format_turns": on,
	})
	return c.writeMessage(websocket.TextMessage, msg)
}

func (c *AssemblyAIRealtime) Events() <-chan Event {
	return c.events
}

func (c *AssemblyAIRealtime) writeMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

// realtimeMessage is the superset of server event payloads.
type realtimeMessage struct {
	Type                 string  `json:"type"`
	ID                   string  `json:"id"`
	Transcript           string  `json:"transcript"`
	EndOfTurn            bool    `json:"end_of_turn"`
	TurnIsFormatted      bool    `json:"turn_is_formatted"`
	AudioDurationSeconds float64 `json:"audio_duration_seconds"`
	Error                string  `json:"error"`
}

func (c *AssemblyAIRealtime) readLoop() {
	defer close(c.events)
	defer c.conn.Close()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			c.emit(Event{Kind: EventError, Err: err})
			return
		}

		var msg realtimeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("unparseable realtime event", slog.String("error", err.Error()))
			continue
		}

		switch msg.Type {
		case "Begin":
			c.emit(Event{Kind: EventBegin, SessionID: msg.ID})
		case "Turn":
			c.emit(Event{
				Kind:       EventTurn,
				Transcript: msg.Transcript,
				EndOfTurn:  msg.EndOfTurn,
				Formatted:  msg.TurnIsFormatted,
			})
		case "Termination":
			c.emit(Event{Kind: EventTermination, AudioDurationSeconds: msg.AudioDurationSeconds})
			return
		case "Error":
			c.emit(Event{Kind: EventError, Err: fmt.Errorf("%s", msg.Error)})
		default:
			c.logger.Debug("unknown realtime event", slog.String("type", msg.Type))
		}
	}
}

// emit never blocks the read loop; a slow consumer drops events rather
// than stalling the session.
func (c *AssemblyAIRealtime) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Debug("event dropped, consumer too slow", slog.String("kind", string(ev.Kind)))
	}
}
