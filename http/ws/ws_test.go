package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *LogHub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients=%d want %d", h.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLogHubBroadcastsLines(t *testing.T) {
	h := NewLogHub()
	defer h.Stop()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleLogs))
	defer srv.Close()

	conn := dial(t, srv.URL)
	waitClients(t, h, 1)

	w := h.Writer()
	w.Write([]byte("first line\nsecond "))
	w.Write([]byte("line\n"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, want := range []string{"first line", "second line"} {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(msg) != want {
			t.Errorf("got %q want %q", msg, want)
		}
	}
}

func TestLogHubStopClosesClients(t *testing.T) {
	h := NewLogHub()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleLogs))
	defer srv.Close()

	conn := dial(t, srv.URL)
	waitClients(t, h, 1)
	h.Stop()
	h.Stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the connection to close")
	}

	// writes after stop must not block
	done := make(chan struct{})
	go func() {
		for i := 0; i < 2000; i++ {
			h.Writer().Write([]byte("late\n"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("writer blocked after Stop")
	}
}

func TestHandleMetricsPushesSnapshots(t *testing.T) {
	n := 0
	srv := httptest.NewServer(HandleMetrics(func() any {
		n++
		return map[string]int{"tick": n}
	}, 10*time.Millisecond))
	defer srv.Close()

	conn := dial(t, srv.URL)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var last map[string]int
	for i := 0; i < 2; i++ {
		if err := conn.ReadJSON(&last); err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	if last["tick"] != 2 {
		t.Errorf("tick = %d", last["tick"])
	}
}
