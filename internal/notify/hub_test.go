package notify

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// hubServer serves every websocket under the user id given in the path.
func hubServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(strings.TrimPrefix(r.URL.Path, "/"))
		if err != nil {
			http.Error(w, "bad user", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(userID, conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialHub(t *testing.T, srv *httptest.Server, hub *Hub, userID uuid.UUID) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + userID.String()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	waitFor(t, func() bool { return hub.Connections(userID) == 1 })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_PushDeliversToUser(t *testing.T) {
	t.Parallel()

	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := hubServer(t, hub)
	userID := uuid.New()
	conn := dialHub(t, srv, hub, userID)

	if got := hub.Push(userID, []byte(`{"subject":"hi"}`)); got != 1 {
		t.Fatalf("Push delivered to %d connections, want 1", got)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(payload) != `{"subject":"hi"}` {
		t.Fatalf("payload = %s", payload)
	}
	if got := hub.Push(uuid.New(), []byte("x")); got != 0 {
		t.Fatalf("Push to user without connections delivered %d", got)
	}
}

func TestHub_BusyConnectionDoesNotBlockOtherUsers(t *testing.T) {
	t.Parallel()

	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := hubServer(t, hub)
	busyUser, otherUser := uuid.New(), uuid.New()
	dialHub(t, srv, hub, busyUser)
	conn := dialHub(t, srv, hub, otherUser)

	hub.mu.Lock()
	busy := hub.subscribers[busyUser][0]
	hub.mu.Unlock()

	// Hold the busy client's writer as a stalled write would.
	busy.mu.Lock()
	defer busy.mu.Unlock()

	done := make(chan int, 1)
	go func() { done <- hub.Push(otherUser, []byte("ping")) }()

	select {
	case got := <-done:
		if got != 1 {
			t.Fatalf("Push delivered to %d connections, want 1", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Push to another user blocked behind a busy connection")
	}
	if got := hub.Connections(busyUser); got != 1 {
		t.Fatalf("busy user connections = %d, want 1", got)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, payload, err := conn.ReadMessage(); err != nil || string(payload) != "ping" {
		t.Fatalf("read = %q, %v", payload, err)
	}
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	t.Parallel()

	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := hubServer(t, hub)
	userID := uuid.New()
	conn := dialHub(t, srv, hub, userID)

	_ = conn.Close()
	waitFor(t, func() bool { return hub.Connections(userID) == 0 })
}
