// Package eventbus maintains the persistent WebSocket subscription to the
// engine's event stream and fans frames out to channel handlers. Delivery is
// at-most-once with no sequence numbers or replay; anything missed during a
// disconnect is recovered by a full state refetch, which the reconnect hook
// triggers.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sethvargo/go-retry"
)

// Channel names used by the engine.
const (
	ChannelBackupProgress   = "backup:progress"
	ChannelUploadProgress   = "upload:progress"
	ChannelUploadError      = "upload:error"
	ChannelDownloadProgress = "download:progress"
	ChannelTrayAction       = "tray:action"
)

// Handler receives the raw payload of one event frame. Handlers run on the
// read loop goroutine, one frame at a time, in arrival order.
type Handler func(payload json.RawMessage)

// frame is the wire shape of one event.
type frame struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

// Adapter dials the engine's event endpoint and keeps the subscription alive,
// reconnecting with capped exponential backoff for as long as it runs.
type Adapter struct {
	url    string
	logger *slog.Logger

	mu        sync.Mutex
	handlers  map[string]map[int]Handler
	nextID    int
	onConnect func()

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an adapter for the event endpoint at url
// (e.g. ws://127.0.0.1:7317/v1/events). It does not connect until Start.
func New(url string, logger *slog.Logger) *Adapter {
	return &Adapter{
		url:      url,
		logger:   logger,
		handlers: make(map[string]map[int]Handler),
	}
}

// OnConnect registers a hook invoked after every successful dial, including
// reconnects. The orchestration layer uses it to refetch state and close the
// gap left by missed events.
func (a *Adapter) OnConnect(fn func()) {
	a.mu.Lock()
	a.onConnect = fn
	a.mu.Unlock()
}

// Subscribe registers a handler for one channel. The returned function
// removes the subscription and is safe to call more than once.
func (a *Adapter) Subscribe(channel string, h Handler) (unsubscribe func()) {
	a.mu.Lock()
	if a.handlers[channel] == nil {
		a.handlers[channel] = make(map[int]Handler)
	}
	id := a.nextID
	a.nextID++
	a.handlers[channel][id] = h
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.handlers[channel], id)
		a.mu.Unlock()
	}
}

// Start begins the connect-and-read loop. No-op if already running.
func (a *Adapter) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.run(runCtx, a.done)
}

// Stop tears down the connection and waits for the loop to exit.
func (a *Adapter) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	done := a.done
	a.cancel = nil
	a.done = nil
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		a.logger.Warn("eventbus: stop timed out")
	}
}

func (a *Adapter) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		conn, err := a.dial(ctx)
		if err != nil {
			// Only a cancelled context stops the dial loop.
			return
		}

		a.mu.Lock()
		hook := a.onConnect
		a.mu.Unlock()
		if hook != nil {
			hook()
		}

		err = a.readLoop(ctx, conn)
		conn.Close(websocket.StatusNormalClosure, "")
		if ctx.Err() != nil {
			return
		}
		a.logger.Warn("event stream dropped, reconnecting", "error", err)
	}
}

// dial connects with endless capped exponential backoff. It returns an error
// only when ctx is cancelled.
func (a *Adapter) dial(ctx context.Context) (*websocket.Conn, error) {
	backoff := retry.WithCappedDuration(30*time.Second, retry.NewExponential(time.Second))

	var conn *websocket.Conn
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		c, _, err := websocket.Dial(dialCtx, a.url, nil)
		if err != nil {
			a.logger.Debug("event stream dial failed", "url", a.url, "error", err)
			return retry.RetryableError(fmt.Errorf("dial %s: %w", a.url, err))
		}
		// Event payloads are small; the default read limit is fine.
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (a *Adapter) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			a.logger.Warn("malformed event frame", "error", err)
			continue
		}
		a.dispatch(f)
	}
}

// dispatch delivers one frame to every handler on its channel, synchronously
// and outside the handler lock.
func (a *Adapter) dispatch(f frame) {
	a.mu.Lock()
	fns := make([]Handler, 0, len(a.handlers[f.Channel]))
	for _, h := range a.handlers[f.Channel] {
		fns = append(fns, h)
	}
	a.mu.Unlock()

	if len(fns) == 0 {
		a.logger.Debug("event on unhandled channel", "channel", f.Channel)
		return
	}
	for _, h := range fns {
		h(f.Payload)
	}
}
