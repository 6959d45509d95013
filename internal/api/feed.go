package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coomunity/ayni/internal/domain"
	"github.com/coomunity/ayni/internal/infra/observability"
)

// ─── Live Activity Feed ─────────────────────────────────────────────────────
// Committed economy activity (events, transfers, payouts, milestones) fanned
// out to dashboards over Server-Sent Events.

// feedBuffer is the per-client queue; slower clients lose messages.
const feedBuffer = 32

// FeedHub manages SSE subscribers. It implements domain.ActivityPublisher.
type FeedHub struct {
	mu        sync.RWMutex
	clients   map[chan []byte]struct{}
	heartbeat time.Duration
}

// NewFeedHub creates a new activity broadcast hub.
func NewFeedHub() *FeedHub {
	return &FeedHub{
		clients:   make(map[chan []byte]struct{}),
		heartbeat: 15 * time.Second,
	}
}

// Publish sends an activity to all connected clients without blocking.
func (h *FeedHub) Publish(a domain.Activity) {
	data, err := json.Marshal(a)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- data:
		default:
			observability.FeedDropped.Inc()
		}
	}
}

// Subscribe registers a new client. Returns the channel and an unsubscribe func.
func (h *FeedHub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, feedBuffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	observability.FeedSubscribers.Set(float64(n))

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, ch)
			n := len(h.clients)
			close(ch)
			h.mu.Unlock()
			observability.FeedSubscribers.Set(float64(n))
		})
	}
}

// ClientCount returns the number of connected clients.
func (h *FeedHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleFeedSSE serves the live feed via Server-Sent Events.
// GET /api/feed/live
func (h *FeedHub) HandleFeedSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, unsub := h.Subscribe()
	defer unsub()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case data, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: activity\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
