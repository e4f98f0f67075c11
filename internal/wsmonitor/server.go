package wsmonitor

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"scadalink/internal/logging"
)

// upgrader accepts connections from any origin: the monitor endpoint is
// meant to sit on an operator-only network segment, not behind a public
// browser's same-origin policy.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server exposes two endpoints over one HTTP listener: /ws/samples streams
// every PollingSample as it is broadcast, and /ws/status streams the
// periodic derived equipment-status snapshot.
type Server struct {
	addr       string
	samples    *Hub
	status     *Hub
	httpServer *http.Server

	mu      sync.Mutex
	running bool
}

// NewServer constructs a monitor HTTP server bound to addr, fanning out
// samples and status through the two given hubs.
func NewServer(addr string, samples, status *Hub) *Server {
	return &Server{addr: addr, samples: samples, status: status}
}

func (s *Server) serveSamples(w http.ResponseWriter, r *http.Request) {
	s.serveHub(s.samples, w, r)
}

func (s *Server) serveStatus(w http.ResponseWriter, r *http.Request) {
	s.serveHub(s.status, w, r)
}

func (s *Server) serveHub(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Debug("WS", "upgrade failed: %v", err)
		return
	}
	id := r.RemoteAddr
	hub.Register(id, conn)
}

// Start begins serving in a background goroutine. It is a no-op if already
// running.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/samples", s.serveSamples)
	mux.HandleFunc("/ws/status", s.serveStatus)

	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("wsmonitor: listen on %s: %w", s.addr, err)
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			logging.Debug("WS", "server stopped: %v", err)
		}
	}()

	s.running = true
	return nil
}

// Stop gracefully shuts the listener down.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(ctx)
	s.running = false
	return err
}
