package stream

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultQueueSize bounds the audio handoff queue. A full queue blocks the
// socket handler, which is the back-pressure we want.
const DefaultQueueSize = 64

// Bridge connects one inbound socket connection to one realtime
// transcription session. The socket side enqueues chunks and finally the
// end-of-stream sentinel (queue close); the worker side owns the blocking
// Stream call and always requests provider termination on exit. Teardown
// can arrive from either side, so the termination request is once-guarded:
// the provider sees exactly one per connection lifecycle.
type Bridge struct {
	client RealtimeClient
	queue  chan []byte
	logger *slog.Logger

	finishOnce sync.Once
	termOnce   sync.Once

	done chan struct{}
	err  error // worker's Stream error; written before done closes
}

func NewBridge(client RealtimeClient, queueSize int, logger *slog.Logger) *Bridge {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		client: client,
		queue:  make(chan []byte, queueSize),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start launches the worker that feeds the provider session. It returns
// immediately.
func (b *Bridge) Start() {
	go func() {
		defer close(b.done)
		defer b.Terminate()

		if err := b.client.Stream(b.queue); err != nil {
			b.err = err
			b.logger.Warn("realtime stream ended with error", slog.String("error", err.Error()))
		}
	}()
}

// Enqueue hands one binary frame to the worker. It blocks when the queue
// is full and gives up once the worker has exited.
func (b *Bridge) Enqueue(chunk []byte) bool {
	select {
	case <-b.done:
		return false
	default:
	}
	select {
	case b.queue <- chunk:
		return true
	case <-b.done:
		return false
	}
}

// Finish signals end-of-stream. Safe to call multiple times; the first
// call closes the queue, which is the sentinel the worker's feed ends on.
func (b *Bridge) Finish() {
	b.finishOnce.Do(func() { close(b.queue) })
}

// Terminate requests provider-session termination. Both the worker's exit
// path and the socket handler's teardown call this; the provider sees it
// once.
func (b *Bridge) Terminate() {
	b.termOnce.Do(func() {
		if err := b.client.Terminate(); err != nil {
			b.logger.Debug("terminate request failed", slog.String("error", err.Error()))
		}
	})
}

// Wait blocks until the worker exits or the timeout lapses. It reports
// whether the worker finished in time.
func (b *Bridge) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-b.done:
		return true
	case <-timer.C:
		return false
	}
}

// Err returns the worker's stream error, if any. Only meaningful after
// Wait reports the worker done.
func (b *Bridge) Err() error {
	return b.err
}
