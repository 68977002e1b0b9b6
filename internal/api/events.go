package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/tribunal/internal/events"
)

// eventStream forwards bus events to Server-Sent Events clients. A client may
// pass ?run=<id> to follow a single audit; that stream ends after the audit's
// terminal event.
type eventStream struct {
	bus           *events.EventBus
	heartbeatFreq time.Duration

	mu      sync.Mutex
	clients map[chan struct{}]struct{}
}

func newEventStream(bus *events.EventBus) *eventStream {
	return &eventStream{
		bus:           bus,
		heartbeatFreq: 30 * time.Second,
		clients:       make(map[chan struct{}]struct{}),
	}
}

func (h *eventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	runID := r.URL.Query().Get("run")
	done := make(chan struct{})
	h.mu.Lock()
	h.clients[done] = struct{}{}
	h.mu.Unlock()
	defer h.remove(done)

	eventCh := h.bus.SubscribeRun(runID)
	defer h.bus.Unsubscribe(eventCh)

	h.send(w, flusher, "connected", map[string]string{"run": runID})

	heartbeat := time.NewTicker(h.heartbeatFreq)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			h.send(w, flusher, event.EventType(), event)
			if runID != "" && events.Terminal(event.EventType()) {
				return
			}
		}
	}
}

func (h *eventStream) send(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload)
	flusher.Flush()
}

func (h *eventStream) remove(done chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[done]; ok {
		delete(h.clients, done)
		close(done)
	}
}

// ClientCount returns the number of connected clients.
func (h *eventStream) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown disconnects every client.
func (h *eventStream) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for done := range h.clients {
		close(done)
	}
	h.clients = make(map[chan struct{}]struct{})
}
