package hub

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rbelouin/midi-hub/internal/command"
)

func dialTestHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
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
	return conn
}

func TestBroadcastReachesConnectedPlayer(t *testing.T) {
	h := New(nil)
	conn := dialTestHub(t, h)

	h.Broadcast(command.YoutubePause{})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `"YoutubePause"` {
		t.Fatalf("unexpected message: %s", data)
	}
}

func TestBroadcastPreservesPerConnectionOrder(t *testing.T) {
	h := New(nil)
	conn := dialTestHub(t, h)

	tracks := []string{"t1", "t2", "t3", "t4", "t5"}
	for _, id := range tracks {
		h.Broadcast(command.SpotifyPlay{TrackID: id, AccessToken: "tok"})
	}

	for _, want := range tracks {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		cmd, err := command.Unmarshal(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		play, ok := cmd.(command.SpotifyPlay)
		if !ok || play.TrackID != want {
			t.Fatalf("out of order: got %#v want track %s", cmd, want)
		}
	}
}

func TestMalformedClientMessageKeepsConnection(t *testing.T) {
	received := make(chan command.Command, 1)
	h := New(func(cmd command.Command) { received <- cmd })
	conn := dialTestHub(t, h)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	data, err := command.Marshal(command.SpotifyTokenRequest{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case cmd := <-received:
		if _, ok := cmd.(command.SpotifyTokenRequest); !ok {
			t.Fatalf("unexpected command: %#v", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid command after garbage never dispatched")
	}

	if h.ClientCount() != 1 {
		t.Fatalf("connection should survive garbage, %d clients left", h.ClientCount())
	}
}

func TestBroadcastWithoutClientsDrops(t *testing.T) {
	h := New(nil)
	// Nothing must queue or block when no player is connected.
	done := make(chan struct{})
	go func() {
		h.Broadcast(command.SpotifyPause{})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked with zero clients")
	}
}
