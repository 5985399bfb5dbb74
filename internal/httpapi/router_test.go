package httpapi

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rbelouin/midi-hub/internal/command"
	"github.com/rbelouin/midi-hub/internal/hub"
)

func TestHealthz(t *testing.T) {
	router := NewRouter(hub.New(nil), "")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), "ok") {
		t.Fatalf("unexpected body: %q", rr.Body.String())
	}
}

func TestMetricsExposed(t *testing.T) {
	router := NewRouter(hub.New(nil), "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), "midihub_") {
		t.Fatal("expected midihub metrics in scrape output")
	}
}

func TestServesPlayerPage(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>player</html>"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	router := NewRouter(hub.New(nil), dir)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), "player") {
		t.Fatalf("unexpected body: %q", rr.Body.String())
	}
}

func TestWebsocketRouteUpgrades(t *testing.T) {
	h := hub.New(nil)
	srv := httptest.NewServer(NewRouter(h, ""))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.Broadcast(command.SpotifyPause{})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `"SpotifyPause"` {
		t.Fatalf("unexpected message: %s", data)
	}
}
