package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The daemon binds to loopback; the UI is served from the same host.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleJobWebSocket streams a job's progress events to a websocket client.
// The full history is replayed first so late or reconnecting clients see
// every step, then live events follow until the terminal event.
func (s *Server) handleJobWebSocket(w http.ResponseWriter, r *http.Request) {
	job, found := s.jobs.Get(chi.URLParam(r, "jobID"))
	if !found {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "job", job.ID, "error", err)
		return
	}
	defer conn.Close()

	history, live := job.Subscribe()
	for _, event := range history {
		if err := conn.WriteJSON(event); err != nil {
			return
		}
	}
	for event := range live {
		if err := conn.WriteJSON(event); err != nil {
			return
		}
	}

	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
}
