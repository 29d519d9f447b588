package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/infrastructure/pubsub"

	"github.com/go-chi/chi/v5"
)

var sseKeepAlive = 15 * time.Second

// events streams live job events of one connection as server-sent events.
func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := h.Connections.Get(ctx, domain.ShopFromContext(ctx), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, domain.CodeInternal, "streaming unsupported")
		return
	}

	sub := h.Events.Subscribe(ctx, &pubsub.JobEventFilter{ConnectionIDs: []string{conn.ID}})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done:
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.Logger.Warn().Err(err).Str("jobId", event.JobID).Msg("Failed to encode job event")
				continue
			}
			fmt.Fprintf(w, "id: %s-%d\nevent: job\ndata: %s\n\n", event.JobID, event.At.UnixNano(), data)
			flusher.Flush()
		}
	}
}
