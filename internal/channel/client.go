// Package channel is the player side of the command channel.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rbelouin/midi-hub/internal/command"
)

// Client is one connection to the daemon's hub.
type Client struct {
	conn *websocket.Conn

	mu sync.Mutex // gorilla allows a single concurrent writer
}

// Dial connects to the hub's websocket endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return &Client{conn: conn}, nil
}

// Send encodes and writes one command.
func (c *Client) Send(cmd command.Command) error {
	data, err := command.Marshal(cmd)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Receive blocks until the next well-formed command arrives. Frames that do
// not decode are logged and skipped; only transport failures end the stream.
func (c *Client) Receive() (command.Command, error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		cmd, err := command.Unmarshal(data)
		if err != nil {
			slog.Warn("dropping malformed command", "error", err)
			continue
		}
		return cmd, nil
	}
}

func (c *Client) Close() error {
	return c.conn.Close()
}
