package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rbelouin/midi-hub/internal/command"
	"github.com/rbelouin/midi-hub/internal/hub"
)

func TestClientReceivesBroadcast(t *testing.T) {
	h := hub.New(nil)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.Broadcast(command.SpotifyTokenGrant{AccessToken: "tok"})

	cmd, err := c.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	grant, ok := cmd.(command.SpotifyTokenGrant)
	if !ok || grant.AccessToken != "tok" {
		t.Fatalf("unexpected command: %#v", cmd)
	}
}

func TestClientSendReachesDaemon(t *testing.T) {
	received := make(chan command.Command, 1)
	h := hub.New(func(cmd command.Command) { received <- cmd })
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if err := c.Send(command.SpotifyDeviceBound{DeviceID: "dev-1"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case cmd := <-received:
		bound, ok := cmd.(command.SpotifyDeviceBound)
		if !ok || bound.DeviceID != "dev-1" {
			t.Fatalf("unexpected command: %#v", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command never arrived")
	}
}

func TestClientSkipsMalformedFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte("{garbage"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`"YoutubePause"`))
	}))
	t.Cleanup(srv.Close)

	c, err := Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	cmd, err := c.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if _, ok := cmd.(command.YoutubePause); !ok {
		t.Fatalf("unexpected command: %#v", cmd)
	}
}
