package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clipforge/timeline/internal/metrics"
	"github.com/clipforge/timeline/internal/timeline/events"
	"github.com/clipforge/timeline/internal/timeline/schema"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func startServer(t *testing.T, config *Config) *Server {
	t.Helper()
	config.Port = 0
	config.Logger = quietLogger()
	server := NewServer(config)
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })
	return server
}

func dial(t *testing.T, ctx context.Context, server *Server) (*websocket.Conn, Message) {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn, readMessage(t, ctx, conn)
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Port: 0, Logger: quietLogger()})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if addr := server.GetAddr(); addr == "" || strings.HasSuffix(addr, ":0") {
		t.Fatalf("unexpected address %q", addr)
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWelcomeStatus(t *testing.T) {
	server := startServer(t, &Config{
		Status: func(ctx context.Context) (*StatusData, error) {
			return &StatusData{Scenes: 3, UsageBytes: 2048, Pending: 1}, nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, welcome := dial(t, ctx, server)
	if welcome.Type != MessageTypeStatus {
		t.Fatalf("welcome type = %s, want %s", welcome.Type, MessageTypeStatus)
	}
	var status StatusData
	if err := json.Unmarshal(welcome.Data, &status); err != nil {
		t.Fatalf("Failed to unmarshal status: %v", err)
	}
	if status.Scenes != 3 || status.Pending != 1 {
		t.Errorf("status = %+v", status)
	}
	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}
}

func TestWelcomeWithoutStatusData(t *testing.T) {
	server := startServer(t, &Config{
		Status: func(ctx context.Context) (*StatusData, error) {
			return nil, errors.New("store unavailable")
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, welcome := dial(t, ctx, server)
	if welcome.Type != MessageTypeStatus || len(welcome.Data) != 0 {
		t.Errorf("welcome = %+v, want an empty status", welcome)
	}
}

func TestBusNotificationsReachClients(t *testing.T) {
	server := startServer(t, &Config{})
	bus := events.NewBus(quietLogger())
	handler := NewHandler(server, quietLogger())
	handler.Attach(bus)
	defer handler.Detach(bus)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clients := make([]*websocket.Conn, 2)
	for i := range clients {
		clients[i], _ = dial(t, ctx, server)
	}

	bus.Publish(events.Notification{
		Kind:    events.KindSave,
		SceneID: "scene-1",
		Origin:  events.OriginSurfaceA,
		Save:    &events.SaveInfo{ClipCount: 2, Playhead: 1.5, SaveCount: 4},
	})

	for i, conn := range clients {
		msg := readMessage(t, ctx, conn)
		if msg.Type != MessageTypeSave {
			t.Errorf("client %d: type = %s, want save", i, msg.Type)
		}
		var data SceneData
		json.Unmarshal(msg.Data, &data)
		want := SceneData{SceneID: "scene-1", Origin: "surface-a", ClipCount: 2, Playhead: 1.5, SaveCount: 4}
		if data != want {
			t.Errorf("client %d: data = %+v, want %+v", i, data, want)
		}
	}

	bus.Publish(events.Notification{
		Kind:     events.KindConflict,
		SceneID:  "scene-1",
		Origin:   events.OriginSystem,
		Conflict: &schema.Conflict{ID: "c-1", SceneID: "scene-1", Kind: schema.ConflictTimestamp},
		Err:      errors.New("save rejected"),
	})

	msg := readMessage(t, ctx, clients[0])
	var conflict ConflictData
	json.Unmarshal(msg.Data, &conflict)
	want := ConflictData{ConflictID: "c-1", SceneID: "scene-1", Kind: "timestamp", Error: "save rejected"}
	if msg.Type != MessageTypeConflict || conflict != want {
		t.Errorf("conflict message = %s %+v, want %+v", msg.Type, conflict, want)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.RecordSave("ok")

	server := startServer(t, &Config{Gatherer: reg})
	base := "http://" + server.GetAddr()

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	var health map[string]any
	json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if health["status"] != "ok" {
		t.Errorf("health = %v", health)
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `timeline_saves_total{result="ok"} 1`) {
		t.Errorf("metrics output missing save counter:\n%s", body)
	}
}

func TestMetricsDisabledWithoutGatherer(t *testing.T) {
	server := startServer(t, &Config{})

	resp, err := http.Get("http://" + server.GetAddr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /metrics status = %d, want 404 without a gatherer", resp.StatusCode)
	}
}

func TestIndexListsEndpoints(t *testing.T) {
	server := startServer(t, &Config{Gatherer: prometheus.NewRegistry()})

	resp, err := http.Get("http://" + server.GetAddr() + "/")
	if err != nil {
		t.Fatalf("GET / failed: %v", err)
	}
	defer resp.Body.Close()

	var index struct {
		Service   string            `json:"service"`
		Endpoints map[string]string `json:"endpoints"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&index); err != nil {
		t.Fatalf("Failed to decode index: %v", err)
	}
	if index.Service != "timeline-dashboard" {
		t.Errorf("service = %q", index.Service)
	}
	if index.Endpoints["metrics"] != "/metrics" || !strings.HasSuffix(index.Endpoints["websocket"], "/ws") {
		t.Errorf("endpoints = %v", index.Endpoints)
	}
}

func TestCrossOriginClients(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	opts := &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://editor.example.com"}},
	}

	closed := startServer(t, &Config{})
	if conn, _, err := websocket.Dial(ctx, "ws://"+closed.GetAddr()+"/ws", opts); err == nil {
		conn.Close(websocket.StatusNormalClosure, "")
		t.Error("cross-origin client accepted without AllowedOrigins")
	}

	open := startServer(t, &Config{AllowedOrigins: []string{"*.example.com"}})
	conn, _, err := websocket.Dial(ctx, "ws://"+open.GetAddr()+"/ws", opts)
	if err != nil {
		t.Fatalf("allowed origin rejected: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	if msg := readMessage(t, ctx, conn); msg.Type != MessageTypeStatus {
		t.Errorf("welcome type = %s, want status", msg.Type)
	}
}

func TestNewServerKeepsCallerConfig(t *testing.T) {
	config := &Config{Port: 0}
	NewServer(config)
	if config.Logger != nil || config.WriteTimeout != 0 {
		t.Error("NewServer() modified the caller's config")
	}
}
