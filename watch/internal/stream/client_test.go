package stream_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nusantararadius/notifyhub/pkg/types"
	"github.com/nusantararadius/notifyhub/watch/internal/config"
	"github.com/nusantararadius/notifyhub/watch/internal/stream"
)

// --- helpers ----------------------------------------------------------------

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) handle(env types.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, env.Event)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// fakeServer upgrades every request and hands the conn to serve.
func fakeServer(t *testing.T, serve func(conn *websocket.Conn)) string {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testConfig(url string) *config.Config {
	return &config.Config{
		URL:              url,
		HandshakeTimeout: time.Second,
		Backoff:          config.BackoffConfig{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond},
	}
}

func writeEvent(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	frame, err := types.Encode(event, payload)
	if err != nil {
		t.Errorf("encode: %v", err)
		return
	}
	conn.WriteMessage(websocket.TextMessage, frame) //nolint:errcheck
}

func startClient(t *testing.T, cfg *config.Config, rec *recorder) (*stream.Client, context.CancelFunc, <-chan error) {
	t.Helper()
	c, err := stream.New(cfg, rec.handle)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(cancel)
	return c, cancel, done
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// --- tests ------------------------------------------------------------------

func TestClient_DeliversEventsInOrder(t *testing.T) {
	url := fakeServer(t, func(conn *websocket.Conn) {
		writeEvent(t, conn, types.EventSystemMetrics, types.MetricsSnapshot{ActiveUsers: 1})
		writeEvent(t, conn, types.EventNotification, types.Notification{ID: 1, Type: types.TypeConnection})
		conn.ReadMessage() //nolint:errcheck // hold until the client leaves
	})

	rec := &recorder{}
	_, cancel, done := startClient(t, testConfig(url), rec)

	waitFor(t, "two events", func() bool { return len(rec.snapshot()) == 2 })
	got := rec.snapshot()
	if got[0] != types.EventSystemMetrics || got[1] != types.EventNotification {
		t.Errorf("events: got %v, want [system_metrics notification]", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClient_ReconnectsAfterServerDrop(t *testing.T) {
	url := fakeServer(t, func(conn *websocket.Conn) {
		writeEvent(t, conn, types.EventSystemMetrics, nil)
		// Returning closes the connection.
	})

	rec := &recorder{}
	c, _, _ := startClient(t, testConfig(url), rec)

	waitFor(t, "three sessions", func() bool { return c.Sessions() >= 3 })
	if n := len(rec.snapshot()); n < 2 {
		t.Errorf("events across sessions: got %d, want >= 2", n)
	}
}

func TestClient_RetriesUntilServerAppears(t *testing.T) {
	cfg := testConfig("ws://127.0.0.1:1/socket")
	rec := &recorder{}
	c, cancel, done := startClient(t, cfg, rec)

	time.Sleep(100 * time.Millisecond)
	if c.Sessions() != 0 {
		t.Errorf("sessions: got %d, want 0", c.Sessions())
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel while backing off")
	}
}

func TestClient_SendsRequestMetrics(t *testing.T) {
	got := make(chan string, 4)
	url := fakeServer(t, func(conn *websocket.Conn) {
		for {
			var env types.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			select {
			case got <- env.Event:
			default:
			}
		}
	})

	cfg := testConfig(url)
	cfg.RequestMetricsEvery = 20 * time.Millisecond
	startClient(t, cfg, &recorder{})

	select {
	case ev := <-got:
		if ev != types.EventRequestMetrics {
			t.Errorf("event: got %q, want %q", ev, types.EventRequestMetrics)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no request_metrics received")
	}
}

func TestNew_BadCAFile(t *testing.T) {
	cfg := testConfig("wss://localhost/socket")
	cfg.TLS.CAFile = t.TempDir() + "/missing.pem"
	if _, err := stream.New(cfg, func(types.Envelope) {}); err == nil {
		t.Fatal("expected error for missing CA file, got nil")
	}
}
