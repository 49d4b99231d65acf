// Package ws implements a Server-Sent Events (SSE) hub that streams task
// activity to connected clients, each seeing only what they may read.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/GoCodeAlone/tms/access"
	"github.com/GoCodeAlone/tms/auth"
	"github.com/GoCodeAlone/tms/comms"
	"github.com/GoCodeAlone/tms/server/api"
)

// bufferSize is the per-client queue length. Events beyond it are dropped.
const bufferSize = 64

// client represents a single SSE connection.
type client struct {
	principal auth.Principal
	ch        chan []byte
}

// Hub manages SSE client connections and fans bus events out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	logger  *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// NewHub creates a Hub ready to accept connections.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Close ends every open stream. Streams opened afterwards return at once.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Attach subscribes the hub to bus. The returned function detaches it.
func (h *Hub) Attach(bus comms.Bus) (detach func()) {
	return bus.Subscribe("sse-hub", func(_ context.Context, ev *comms.Event) error {
		h.Broadcast(ev)
		return nil
	})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends ev to every client whose principal may read the task.
func (h *Hub) Broadcast(ev *comms.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("hub broadcast marshal", slog.Any("err", err))
		return
	}
	r := ev.Resource()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !access.CanAct(c.principal, r, access.Read) {
			continue
		}
		select {
		case c.ch <- data:
		default:
			// Slow client; drop rather than block the publisher.
		}
	}
}

// ServeSSE handles an SSE connection. The request context must carry the
// authenticated principal.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		api.WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	c := &client{principal: p, ch: make(chan []byte, bufferSize)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("sse client connected", slog.Int64("principal", p.ID))

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		h.logger.Debug("sse client disconnected", slog.Int64("principal", p.ID))
	}()

	fmt.Fprintf(w, "data: {\"type\":\"connected\"}\n\n") //nolint:errcheck
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		case data := <-c.ch:
			// Each SSE "data:" line must not contain newlines
			for _, line := range strings.Split(string(data), "\n") {
				fmt.Fprintf(w, "data: %s\n", line) //nolint:errcheck
			}
			fmt.Fprintln(w) //nolint:errcheck
			flusher.Flush()
		}
	}
}
