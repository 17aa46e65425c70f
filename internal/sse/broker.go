// Package sse streams session and folder events to the browser.
package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/prose/internal/watch"
)

// EventTreeChanged is published after files under the open folder change.
const EventTreeChanged = "tree.changed"

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// TreeChange is the payload of EventTreeChanged.
type TreeChange struct {
	Root    string         `json:"root"`
	Changes []watch.Change `json:"changes"`
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients, the tree throttle timestamp and the held-back tree change). Public
// methods communicate with this loop through channels, so no mutexes are
// required.
type Broker struct {
	treeMin time.Duration
	logger  *slog.Logger

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	treeCh        chan TreeChange
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits at most one tree.changed per
// treeThrottle.
func NewBroker(treeThrottle time.Duration, logger *slog.Logger) *Broker {
	if treeThrottle <= 0 {
		treeThrottle = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &Broker{
		treeMin:       treeThrottle,
		logger:        logger,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		treeCh:        make(chan TreeChange, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		lastTree time.Time
		held     *TreeChange
		holdT    *time.Timer
		holdCh   <-chan time.Time
	)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			b.logger.Warn("sse: marshal failed",
				slog.String("type", event.Type),
				slog.String("error", err.Error()))
			return
		}
		msg := fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)
		raw := []byte(msg)

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			if holdT != nil {
				holdT.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case tc := <-b.treeCh:
			if held != nil && held.Root == tc.Root {
				held.Changes = append(held.Changes, tc.Changes...)
			} else {
				held = &tc
			}
			wait := b.treeMin - time.Since(lastTree)
			if wait <= 0 {
				lastTree = time.Now()
				broadcast(Event{Type: EventTreeChanged, Data: *held})
				held = nil
				continue
			}
			if holdT == nil {
				holdT = time.NewTimer(wait)
				holdCh = holdT.C
			}

		case <-holdCh:
			holdT, holdCh = nil, nil
			if held != nil {
				lastTree = time.Now()
				broadcast(Event{Type: EventTreeChanged, Data: *held})
				held = nil
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// Notify publishes a session event. It lets a Broker serve as a session
// notifier.
func (b *Broker) Notify(kind string, data any) {
	b.Publish(Event{Type: kind, Data: data})
}

// PublishTreeChange publishes a throttled tree.changed event. Changes that
// arrive inside the throttle window are merged into one trailing event.
func (b *Broker) PublishTreeChange(root string, changes []watch.Change) {
	if b.closed.Load() {
		return
	}
	select {
	case b.treeCh <- TreeChange{Root: root, Changes: changes}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
