// Package websocket hosts the ferry command protocol over WebSocket. A
// client opens one connection per logical call, identifies itself through
// URL query parameters, sends a single JSON command, and receives the
// handler's frames in order until the server closes the connection.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ferryd/ferry/internal/backend"
	"github.com/ferryd/ferry/internal/dispatch"
)

// ChatResolver returns the chat-affinity handle for a connection's identity,
// or nil when chat generation should stay ephemeral. The connection's think
// flag is bound into the handle at resolution time.
type ChatResolver func(user, session string, think bool) backend.ChatSession

// Server serves the ferry command protocol.
type Server struct {
	addr       string
	httpServer *http.Server
	upgrader   websocket.Upgrader
	dispatcher *dispatch.Dispatcher
	chats      ChatResolver
	mu         sync.RWMutex
	shutdown   bool
	wg         sync.WaitGroup
	startTime  time.Time
}

// NewServer creates a server on addr ("host:port") dispatching through d.
func NewServer(addr string, d *dispatch.Dispatcher) *Server {
	s := &Server{
		addr:       addr,
		dispatcher: d,
		startTime:  time.Now(),
		upgrader: websocket.Upgrader{
			// Clients are local tools and bots, not browsers.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleWebSocket)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// SetChatResolver registers the chat-affinity resolver. Must be called
// before Start.
func (s *Server) SetChatResolver(fn ChatResolver) {
	s.chats = fn
}

// Start starts the server and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return fmt.Errorf("server is shutting down")
	}
	s.mu.Unlock()

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "WebSocket server error: %v\n", err)
		}
	}()

	// Wait for the listener to come up.
	time.Sleep(100 * time.Millisecond)

	return nil
}

// Stop stops the server and waits for in-flight connections to finish.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// All connections finished
	case <-time.After(5 * time.Second):
		// Timeout waiting for connections
	}

	return nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	return s.addr
}

// Port returns the port number the server is listening on.
// Returns 0 if the port cannot be parsed from the address.
func (s *Server) Port() int {
	_, portStr, err := splitHostPort(s.addr)
	if err != nil {
		return 0
	}
	port := 0
	for _, c := range portStr {
		if c < '0' || c > '9' {
			return 0
		}
		port = port*10 + int(c-'0')
	}
	return port
}

// splitHostPort splits an address into host and port.
// Similar to net.SplitHostPort but doesn't require net import.
func splitHostPort(addr string) (host, port string, err error) {
	lastColon := -1
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			lastColon = i
			break
		}
	}
	if lastColon < 0 {
		return "", "", fmt.Errorf("missing port in address")
	}
	return addr[:lastColon], addr[lastColon+1:], nil
}

// handleHealth reports liveness and uptime over plain HTTP, for monitors
// that don't speak the command protocol.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}

// handleWebSocket validates identity, upgrades, and hands the connection to
// its own goroutine.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Hold the read lock across both the shutdown check and wg.Add to prevent
	// a race where Stop() calls wg.Wait() between our check and our Add.
	s.mu.RLock()
	if s.shutdown {
		s.mu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.RUnlock()

	ident, err := identityFromRequest(r)
	if err != nil {
		s.wg.Done()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.wg.Done()
		fmt.Fprintf(os.Stderr, "WebSocket upgrade error: %v\n", err)
		return
	}

	go s.handleConnection(context.Background(), conn, ident)
}
