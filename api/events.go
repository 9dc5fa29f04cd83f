/*
events.go - Server-sent change stream

PURPOSE:
  Streams store change events to connected clients over SSE so frontends
  can refresh matched state, payments, and chat without polling.

QUERY PARAMS:
  collection   one of: teachers, students, matches, payments, channels
  id           optional record id filter

AVAILABILITY:
  Only stores implementing the Watcher capability serve this endpoint.
  The SQLite store does not; clients get 501 and fall back to polling.

SEE ALSO:
  - market/store.go: Watcher interface and Event type
  - market/store/notify.go: In-memory implementation
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/englishhop/marketplace/market"
)

type eventDTO struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Op         string `json:"op"`
	At         string `json:"at"`
}

// Events streams store changes for one collection as server-sent events.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	watcher, ok := h.Store.(market.Watcher)
	if !ok {
		h.writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "change streaming not supported by this store"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	collection := market.Collection(r.URL.Query().Get("collection"))
	if collection == "" {
		h.badRequest(w, "collection required")
		return
	}
	id := r.URL.Query().Get("id")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Buffered so a slow client cannot block store writers; overflow drops.
	events := make(chan market.Event, 64)
	cancel := watcher.Subscribe(collection, id, func(e market.Event) {
		select {
		case events <- e:
		default:
		}
	})
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			payload, err := json.Marshal(eventDTO{
				Collection: string(e.Collection),
				ID:         e.ID,
				Op:         string(e.Op),
				At:         e.At.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			})
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
