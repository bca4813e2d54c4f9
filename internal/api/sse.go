package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// handleSSE streams orchestration events to the client. An optional
// ?types=a,b query narrows the subscription.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	if s.bus == nil {
		s.respondError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}

	var types []string
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
	}
	ch := s.bus.Subscribe(types...)
	defer s.bus.Unsubscribe(ch)

	s.logger.Info("SSE client connected", "remote_addr", r.RemoteAddr)
	s.sendSSEEvent(w, flusher, "connected", map[string]string{"status": "connected"})

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("SSE client disconnected", "remote_addr", r.RemoteAddr)
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			s.sendSSEEvent(w, flusher, event.EventType(), event)
		}
	}
}

func (s *Server) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("marshaling SSE data", "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}

