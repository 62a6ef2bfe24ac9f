package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matryer/is"

	"github.com/voicebridge/voicebridge/internal/stream"
)

// fakeRealtime collects streamed chunks and reports them back as one turn
// event when the feed ends.
type fakeRealtime struct {
	chunks     [][]byte
	terminates int32
	events     chan stream.Event
}

func newFakeRealtime() *fakeRealtime {
	return &fakeRealtime{events: make(chan stream.Event, 16)}
}

func (f *fakeRealtime) Stream(feed <-chan []byte) error {
	var parts []string
	for chunk := range feed {
		f.chunks = append(f.chunks, chunk)
		parts = append(parts, string(chunk))
	}
	f.events <- stream.Event{
		Kind:       stream.EventTurn,
		Transcript: strings.Join(parts, " "),
		EndOfTurn:  true,
		Formatted:  true,
	}
	close(f.events)
	return nil
}

func (f *fakeRealtime) Terminate() error {
	atomic.AddInt32(&f.terminates, 1)
	return nil
}

func (f *fakeRealtime) Events() <-chan stream.Event { return f.events }

func (f *fakeRealtime) SetFormatTurns(on bool) error { return nil }

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestWSTranscribeRelaysTurns(t *testing.T) {
	is := is.New(t)

	apiSrv, _ := newTestServer(t)
	client := newFakeRealtime()
	apiSrv.newRealtime = func(ctx context.Context) (stream.RealtimeClient, error) {
		return client, nil
	}

	srv := httptest.NewServer(apiSrv.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/transcribe?session_id=s1"), nil)
	is.NoErr(err)
	defer conn.Close()

	is.NoErr(conn.WriteMessage(websocket.BinaryMessage, []byte("hello")))
	is.NoErr(conn.WriteMessage(websocket.BinaryMessage, []byte("world")))
	is.NoErr(conn.WriteMessage(websocket.TextMessage, []byte("__end__")))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	is.NoErr(err)

	var frame struct {
		Type       string `json:"type"`
		Transcript string `json:"transcript"`
		EndOfTurn  bool   `json:"end_of_turn"`
	}
	is.NoErr(json.Unmarshal(msg, &frame))
	is.Equal(frame.Type, "turn")
	is.Equal(frame.Transcript, "hello world") // all frames reached the provider, in order
	is.True(frame.EndOfTurn)

	// Give teardown a moment, then check the termination guarantee.
	time.Sleep(100 * time.Millisecond)
	is.Equal(atomic.LoadInt32(&client.terminates), int32(1)) // exactly one terminate
}

func TestWSTranscribeBinarySentinelBytesAreAudio(t *testing.T) {
	is := is.New(t)

	apiSrv, _ := newTestServer(t)
	client := newFakeRealtime()
	apiSrv.newRealtime = func(ctx context.Context) (stream.RealtimeClient, error) {
		return client, nil
	}

	srv := httptest.NewServer(apiSrv.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/transcribe?session_id=s2"), nil)
	is.NoErr(err)
	defer conn.Close()

	// A binary frame whose bytes spell the sentinel is still audio; only
	// the text frame may end the stream.
	is.NoErr(conn.WriteMessage(websocket.BinaryMessage, []byte("__end__")))
	is.NoErr(conn.WriteMessage(websocket.BinaryMessage, []byte("after")))
	is.NoErr(conn.WriteMessage(websocket.TextMessage, []byte("__end__")))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	is.NoErr(err) // stream stayed open through both binary frames

	var frame struct {
		Type       string `json:"type"`
		Transcript string `json:"transcript"`
	}
	is.NoErr(json.Unmarshal(msg, &frame))
	is.Equal(frame.Type, "turn")
	is.Equal(frame.Transcript, "__end__ after") // both frames reached the provider
}

func TestWSCaptureSavesStream(t *testing.T) {
	is := is.New(t)

	apiSrv, _ := newTestServer(t)
	srv := httptest.NewServer(apiSrv.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/stream?session_id=cap1"), nil)
	is.NoErr(err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var ack map[string]string
	is.NoErr(conn.ReadJSON(&ack))
	is.Equal(ack["type"], "ACK")
	is.Equal(ack["detail"], "accepted")

	is.NoErr(conn.WriteJSON(map[string]string{"type": "START"}))
	is.NoErr(conn.ReadJSON(&ack))
	is.Equal(ack["detail"], "recording")

	is.NoErr(conn.WriteMessage(websocket.BinaryMessage, []byte("aaaa")))
	is.NoErr(conn.WriteMessage(websocket.BinaryMessage, []byte("bbbb")))
	is.NoErr(conn.WriteJSON(map[string]string{"type": "STOP"}))

	var saved struct {
		Type     string `json:"type"`
		Filename string `json:"filename"`
		Bytes    int    `json:"bytes"`
	}
	is.NoErr(conn.ReadJSON(&saved))
	is.Equal(saved.Type, "SAVED")
	is.Equal(saved.Bytes, 8)

	b, err := os.ReadFile(saved.Filename)
	is.NoErr(err)
	is.Equal(string(b), "aaaabbbb") // frames persisted in order
}

func TestWSEcho(t *testing.T) {
	is := is.New(t)

	apiSrv, _ := newTestServer(t)
	srv := httptest.NewServer(apiSrv.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws"), nil)
	is.NoErr(err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, greeting, err := conn.ReadMessage()
	is.NoErr(err)
	is.True(strings.Contains(string(greeting), "Connected"))

	is.NoErr(conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	_, reply, err := conn.ReadMessage()
	is.NoErr(err)
	is.Equal(string(reply), "echo: ping")
}
