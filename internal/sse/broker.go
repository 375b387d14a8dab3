// Package sse streams scene and view events to browser clients over Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/scenesync/internal/models"
)

// Event types published by scenesync.
const (
	TypeSceneCreated       = "scene.created"
	TypeSceneUpdated       = "scene.updated"
	TypeSceneDeleted       = "scene.deleted"
	TypeSceneLoaded        = "scene.loaded"
	TypeSceneLoadFailed    = "scene.load_failed"
	TypePreviewUpdated     = "preview.updated"
	TypeListingInvalidated = "listing.invalidated"
	TypeViewState          = "view.state"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type sceneEventReq struct {
	kind string
	ref  models.DocumentRef
}

// Broker fans events out to connected clients.
//
// One goroutine owns the client set, the listing throttle and the last view
// state. Public methods talk to it over channels.
type Broker struct {
	listingMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	sceneEventCh  chan sceneEventReq
	invalidateCh  chan struct{}
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits listing.invalidated at most once per listingThrottle.
func NewBroker(listingThrottle time.Duration) *Broker {
	if listingThrottle <= 0 {
		listingThrottle = 2 * time.Second
	}

	b := &Broker{
		listingMin:    listingThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		sceneEventCh:  make(chan sceneEventReq, 256),
		invalidateCh:  make(chan struct{}, 64),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func encode(event Event) []byte {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastListing time.Time
	var viewState []byte

	send := func(raw []byte) {
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// slow client, drop
			}
		}
	}
	broadcast := func(event Event) {
		raw := encode(event)
		if raw == nil {
			return
		}
		if event.Type == TypeViewState {
			viewState = raw
		}
		send(raw)
	}
	invalidate := func() {
		now := time.Now()
		if now.Sub(lastListing) >= b.listingMin {
			lastListing = now
			broadcast(Event{Type: TypeListingInvalidated, Data: map[string]string{}})
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}
			if viewState != nil {
				ch <- viewState
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.sceneEventCh:
			data := map[string]string{
				"workspace_id": req.ref.WorkspaceID,
				"document_id":  req.ref.DocumentID,
			}
			switch req.kind {
			case "created":
				broadcast(Event{Type: TypeSceneCreated, Data: data})
			case "updated":
				broadcast(Event{Type: TypeSceneUpdated, Data: data})
			case "deleted":
				broadcast(Event{Type: TypeSceneDeleted, Data: data})
			case "preview":
				broadcast(Event{Type: TypePreviewUpdated, Data: data})
			default:
				continue
			}
			invalidate()

		case <-b.invalidateCh:
			invalidate()

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
// The latest view state, if any, is queued on the channel immediately.
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

// PublishSceneEvent publishes a scene change ("created", "updated", "deleted" or
// "preview") followed by a throttled listing.invalidated.
func (b *Broker) PublishSceneEvent(kind string, ref models.DocumentRef) {
	if b.closed.Load() {
		return
	}
	select {
	case b.sceneEventCh <- sceneEventReq{kind: kind, ref: ref}:
	case <-b.stopped:
	}
}

// InvalidateListings asks clients to refetch scene listings, throttled.
func (b *Broker) InvalidateListings() {
	if b.closed.Load() {
		return
	}
	select {
	case b.invalidateCh <- struct{}{}:
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
