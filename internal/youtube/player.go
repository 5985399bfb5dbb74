package youtube

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/DexterLB/mpvipc"
	"github.com/google/uuid"

	"github.com/rbelouin/midi-hub/internal/playback"
)

// observe_property subscription id for "pause".
const pauseProperty = 1

const defaultConnectTimeout = 10 * time.Second

// PlayerConfig tunes how the video runtime is spawned.
type PlayerConfig struct {
	// Path is the mpv binary, "mpv" when empty.
	Path string
	// Args are extra mpv flags, appended after the defaults.
	Args []string
	// Socket attaches to an already running mpv instead of spawning one.
	// Destroy then stops playback but leaves that mpv alive.
	Socket string
	// ConnectTimeout bounds the wait for the IPC socket.
	ConnectTimeout time.Duration
}

// NewPlayerFactory returns a runtime factory for the video adapter. A
// spawned player owns one mpv process; an attached player shares the
// configured socket.
func NewPlayerFactory(cfg PlayerConfig) playback.VideoPlayerFactory {
	return func(videoID string, events playback.VideoPlayerEvents) (playback.VideoPlayer, error) {
		return newPlayer(cfg, videoID, events)
	}
}

// Player drives one mpv instance over its JSON IPC socket. It implements
// playback.VideoPlayer. Videos are handed to mpv as ytdl:// URLs, so
// resolving the actual streams is yt-dlp's business.
type Player struct {
	events  playback.VideoPlayerEvents
	initial string
	owned   bool
	cmd     *exec.Cmd

	mu     sync.Mutex
	conn   *mpvipc.Connection
	loaded bool
	closed bool
}

func newPlayer(cfg PlayerConfig, videoID string, events playback.VideoPlayerEvents) (*Player, error) {
	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = defaultConnectTimeout
	}
	p := &Player{events: events, initial: videoID}

	socket := cfg.Socket
	if socket == "" {
		socket = filepath.Join(os.TempDir(), fmt.Sprintf("midihub-mpv-%s.sock", uuid.NewString()[:8]))
		path := cfg.Path
		if path == "" {
			path = "mpv"
		}
		args := append([]string{"--no-terminal", "--idle=yes", "--input-ipc-server=" + socket}, cfg.Args...)
		cmd := exec.Command(path, args...)
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("starting mpv: %w", err)
		}
		p.cmd = cmd
		p.owned = true
		go func() {
			if err := cmd.Wait(); err != nil {
				slog.Warn("mpv exited", "error", err)
			}
		}()
	}

	go p.connect(socket, timeout)
	return p, nil
}

// connect polls the IPC socket until mpv opens it, then subscribes to the
// pause property and reports readiness.
func (p *Player) connect(socket string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	var conn *mpvipc.Connection
	for {
		if p.isClosed() {
			return
		}
		conn = mpvipc.NewConnection(socket)
		err := conn.Open()
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			slog.Error("mpv IPC socket never came up", "socket", socket, "error", err)
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		conn.Close()
		return
	}
	p.conn = conn
	p.mu.Unlock()

	if _, err := conn.Call("observe_property", pauseProperty, "pause"); err != nil {
		slog.Warn("cannot observe mpv pause property", "error", err)
	}

	events, stop := conn.NewEventListener()
	go func() {
		conn.WaitUntilClosed()
		stop <- struct{}{}
	}()
	go p.pump(events)

	slog.Info("mpv connected", "socket", socket)
	if p.events.Ready != nil {
		p.events.Ready()
	}
}

// pump maps mpv events onto runtime state changes. mpv reports the current
// value of an observed property right after subscribing; only flips to
// paused matter here, so the initial false is skipped naturally.
func (p *Player) pump(events chan *mpvipc.Event) {
	for event := range events {
		switch {
		case event.Name == "end-file" && event.Reason == "eof":
			p.stateChange(playback.VideoEnded)
		case event.Name == "property-change" && event.ID == pauseProperty:
			if paused, ok := event.Data.(bool); ok && paused {
				p.stateChange(playback.VideoPaused)
			}
		}
	}
}

func (p *Player) stateChange(state playback.VideoPlayerState) {
	if p.events.StateChange != nil {
		p.events.StateChange(state)
	}
}

// Play starts the item the player was primed with, or resumes after a
// pause.
func (p *Player) Play() error {
	conn, err := p.connection()
	if err != nil {
		return err
	}
	p.mu.Lock()
	first := !p.loaded
	p.loaded = true
	p.mu.Unlock()

	if first {
		return p.load(conn, p.initial)
	}
	return conn.Set("pause", false)
}

// Load replaces the current item and plays it.
func (p *Player) Load(videoID string) error {
	conn, err := p.connection()
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.loaded = true
	p.mu.Unlock()
	return p.load(conn, videoID)
}

func (p *Player) load(conn *mpvipc.Connection, videoID string) error {
	if _, err := conn.Call("loadfile", "ytdl://"+videoID, "replace"); err != nil {
		return fmt.Errorf("loading %s: %w", videoID, err)
	}
	// A pause taken on the previous item survives loadfile.
	if err := conn.Set("pause", false); err != nil {
		return fmt.Errorf("unpausing: %w", err)
	}
	return nil
}

func (p *Player) Pause() error {
	conn, err := p.connection()
	if err != nil {
		return err
	}
	return conn.Set("pause", true)
}

// Destroy quits an owned mpv, or just stops playback when attached to an
// external one. Safe to call at any point, any number of times.
func (p *Player) Destroy() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()

	if conn == nil {
		if p.owned && p.cmd != nil && p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		return nil
	}
	if p.owned {
		_, _ = conn.Call("quit")
	} else {
		_, _ = conn.Call("stop")
	}
	_ = conn.Close()
	return nil
}

func (p *Player) connection() (*mpvipc.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New("mpv player destroyed")
	}
	if p.conn == nil {
		return nil, playback.ErrNotReady
	}
	return p.conn, nil
}

func (p *Player) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
