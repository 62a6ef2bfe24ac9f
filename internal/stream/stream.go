// Package stream relays binary audio frames from an inbound websocket into
// a realtime transcription session and carries the session's events back
// out. A bounded handoff queue and a dedicated worker isolate the
// provider's blocking ingestion call from the socket handler.
package stream

// EventKind tags a realtime session event.
type EventKind string

const (
	EventBegin       EventKind = "begin"
	EventTurn        EventKind = "turn"
	EventTermination EventKind = "termination"
	EventError       EventKind = "error"
)

// Event is one realtime session callback, delivered on the worker's side
// of the bridge. Anything that must touch socket state is redispatched by
// the socket handler's own loop, never invoked in place.
type Event struct {
	Kind EventKind

	// Begin
	SessionID string

	// Turn
	Transcript string
	EndOfTurn  bool
	Formatted  bool

	// Termination
	AudioDurationSeconds float64

	// Error
	Err error
}

// RealtimeClient is the provider-side half of the bridge. Stream blocks,
// consuming the feed until it closes or the session dies; it must only be
// called from the bridge worker. Terminate asks the provider to end the
// session and is safe to call from any goroutine, but the bridge
// guarantees it reaches the provider only once.
type RealtimeClient interface {
	Stream(feed <-chan []byte) error
	Terminate() error
	Events() <-chan Event
	SetFormatTurns(on bool) error
}
