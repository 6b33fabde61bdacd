// Package dashboard streams timeline activity to WebSocket clients.
//
// Every notification on the event bus (saves, loads, deletes and conflict
// outcomes) is broadcast as a JSON message. The server also exposes a
// health check and, when given a Prometheus gatherer, a /metrics endpoint.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeSave indicates a document was saved, locally or by
	// another process
	MessageTypeSave MessageType = "save"

	// MessageTypeLoad indicates a document was loaded
	MessageTypeLoad MessageType = "load"

	// MessageTypeDelete indicates a document was deleted
	MessageTypeDelete MessageType = "delete"

	// MessageTypeConflict indicates a conflict was queued, resolved or
	// failed to resolve
	MessageTypeConflict MessageType = "conflict"

	// MessageTypeStatus carries a storage and queue snapshot
	MessageTypeStatus MessageType = "status"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SceneData describes a save, load or delete
type SceneData struct {
	SceneID   string  `json:"scene_id"`
	Origin    string  `json:"origin"`
	ClipCount int     `json:"clip_count,omitempty"`
	Playhead  float64 `json:"playhead,omitempty"`
	SaveCount int     `json:"save_count,omitempty"`
}

// ConflictData describes a conflict outcome
type ConflictData struct {
	ConflictID string `json:"conflict_id"`
	SceneID    string `json:"scene_id"`
	Kind       string `json:"kind"`
	Resolved   bool   `json:"resolved"`
	Error      string `json:"error,omitempty"`
}

// StatusData is a storage and queue snapshot
type StatusData struct {
	Scenes       int     `json:"scenes"`
	UsageBytes   int64   `json:"usage_bytes"`
	UsagePercent float64 `json:"usage_percent"`
	Pending      int     `json:"pending_conflicts"`
}

// StatusFunc produces the snapshot sent to newly connected clients.
type StatusFunc func(ctx context.Context) (*StatusData, error)

// Server fans bus notifications out to WebSocket clients.
type Server struct {
	config   Config
	listener net.Listener
	http     *http.Server

	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}

	outbox chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// Config holds server configuration
type Config struct {
	// Port to listen on (default: 8080, 0 picks a free port)
	Port int

	// AllowedOrigins lists origin host patterns (path.Match syntax) that
	// may connect from another site. Empty allows same-origin clients only.
	AllowedOrigins []string

	// WriteTimeout bounds each write to a client (default: 5s)
	WriteTimeout time.Duration

	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// Status is sent to each client on connect. Optional.
	Status StatusFunc

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		WriteTimeout: 5 * time.Second,
		Logger:       log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
	}
}

// NewServer creates a dashboard server. The caller's config is not
// modified.
func NewServer(config *Config) *Server {
	defaults := DefaultConfig()
	cfg := *defaults
	if config != nil {
		cfg = *config
	}
	if cfg.Logger == nil {
		cfg.Logger = defaults.Logger
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:  cfg,
		clients: make(map[*websocket.Conn]struct{}),
		outbox:  make(chan Message, 100),
		ctx:     ctx,
		cancel:  cancel,
		logger:  cfg.Logger,
	}
}

// Start listens and serves until Stop is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.http = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(2)
	go s.fanOut()
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s", ln.Addr())
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	if s.config.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/", s.handleIndex)
	return mux
}

// Stop disconnects every client and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.cancel()
	s.disconnectAll(websocket.StatusGoingAway, "dashboard shutting down")

	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shut down dashboard: %w", err)
		}
	}
	s.wg.Wait()
	s.logger.Println("Dashboard stopped")
	return nil
}

// Broadcast queues msg for every client. It never blocks; when the queue
// is full the message is dropped.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.outbox <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Printf("Warning: outbox full, dropping %s message", msg.Type)
	}
}

func (s *Server) fanOut() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.outbox:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to encode %s message: %v", msg.Type, err)
				continue
			}
			for _, conn := range s.snapshot() {
				if err := s.send(conn, data); err != nil {
					s.logger.Printf("Dropping client: %v", err)
					s.drop(conn, websocket.StatusPolicyViolation, "write failed")
				}
			}
		}
	}
}

func (s *Server) send(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.config.WriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (s *Server) snapshot() []*websocket.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	return conns
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.config.AllowedOrigins,
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.logger.Printf("Client connected (total: %d)", n)

	if data, err := json.Marshal(s.statusMessage(r.Context())); err == nil {
		if err := s.send(conn, data); err != nil {
			s.drop(conn, websocket.StatusInternalError, "status write failed")
			return
		}
	}

	// Clients never send anything meaningful; reading only detects the
	// disconnect.
	go func() {
		defer s.drop(conn, websocket.StatusNormalClosure, "")
		for {
			if _, _, err := conn.Read(s.ctx); err != nil {
				return
			}
		}
	}()
}

// statusMessage builds the status snapshot. Without a StatusFunc, or when
// it fails, the message carries no data.
func (s *Server) statusMessage(ctx context.Context) Message {
	msg := Message{Type: MessageTypeStatus, Timestamp: time.Now()}
	if s.config.Status == nil {
		return msg
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.WriteTimeout)
	defer cancel()
	status, err := s.config.Status(ctx)
	if err != nil {
		s.logger.Printf("Failed to build status: %v", err)
		return msg
	}
	if data, err := json.Marshal(status); err == nil {
		msg.Data = data
	}
	return msg
}

func (s *Server) drop(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	s.mu.Lock()
	_, ok := s.clients[conn]
	delete(s.clients, conn)
	n := len(s.clients)
	s.mu.Unlock()
	if !ok {
		return
	}
	_ = conn.Close(code, reason)
	s.logger.Printf("Client disconnected (total: %d)", n)
}

func (s *Server) disconnectAll(code websocket.StatusCode, reason string) {
	for _, conn := range s.snapshot() {
		s.drop(conn, code, reason)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

// handleIndex lists the endpoints this server exposes.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	endpoints := map[string]string{
		"websocket": "ws://" + r.Host + "/ws",
		"health":    "/health",
	}
	if s.config.Gatherer != nil {
		endpoints["metrics"] = "/metrics"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"service":   "timeline-dashboard",
		"endpoints": endpoints,
	})
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return fmt.Sprintf(":%d", s.config.Port)
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
