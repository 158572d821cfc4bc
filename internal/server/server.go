// Package server exposes a workflow run's lifecycle event stream over
// HTTP: a REST snapshot endpoint and a WebSocket feed for remote
// observers (dashboards, the CLI's `--remote` flag) that cannot attach an
// in-process events.Listener.
package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/lacquerai/laqcore/pkg/events"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Any origin may open the event feed; it carries no credentials.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server broadcasts one workflow run's events to every connected
// WebSocket client and answers a REST snapshot of events seen so far.
type Server struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]chan events.ExecutionEvent
	recorder *events.Recorder
	router   *mux.Router
}

// New builds a Server; call Sink to obtain the events.Sink to wire into
// engine.Runner.Run.
func New() *Server {
	s := &Server{
		clients:  make(map[*websocket.Conn]chan events.ExecutionEvent),
		recorder: events.NewRecorder(),
	}
	s.router = mux.NewRouter()
	s.router.HandleFunc("/events", s.handleSnapshot).Methods(http.MethodGet)
	s.router.HandleFunc("/events/stream", s.handleStream)
	return s
}

// Handler returns the server's http.Handler for use with http.Server or
// httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Sink returns an events.Sink that records every event for the REST
// snapshot and fans it out to connected WebSocket clients.
func (s *Server) Sink() events.Sink {
	return func(e events.ExecutionEvent) {
		s.recorder.Record(e)
		s.broadcast(e)
	}
}

func (s *Server) broadcast(e events.ExecutionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.clients {
		select {
		case ch <- e:
		default:
			// Slow client; drop rather than block the run.
		}
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.recorder.Events()); err != nil {
		log.Error().Err(err).Msg("encoding event snapshot")
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch := make(chan events.ExecutionEvent, 64)
	s.mu.Lock()
	s.clients[conn] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		close(ch)
	}()

	for _, e := range s.recorder.Events() {
		if err := conn.WriteJSON(e); err != nil {
			return
		}
	}

	for e := range ch {
		if err := conn.WriteJSON(e); err != nil {
			return
		}
	}
}
