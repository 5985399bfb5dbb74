package playback

import (
	"fmt"
	"log/slog"
	"sync"
)

// VideoAdapter bridges the coordinator's video capability onto a spawned
// video runtime. The runtime reports every pause, including ones the
// adapter requested itself; commanded pauses are counted so that only
// pauses taken on the player directly bubble up as user stops.
type VideoAdapter struct {
	factory VideoPlayerFactory
	events  VideoEvents

	mu          sync.Mutex
	player      VideoPlayer
	ready       bool
	started     bool
	closed      bool
	expectPause int
}

// NewVideoAdapter wires a video adapter to the given runtime factory. The
// runtime itself is only spawned on the first Play.
func NewVideoAdapter(factory VideoPlayerFactory, events VideoEvents) *VideoAdapter {
	return &VideoAdapter{factory: factory, events: events}
}

// Play starts the given video. The first call spawns the runtime primed
// with the item and playback begins once the runtime reports ready; plays
// arriving in between are dropped with ErrNotReady.
func (a *VideoAdapter) Play(videoID string) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrNotReady
	}
	if a.player == nil {
		a.mu.Unlock()
		player, err := a.factory(videoID, VideoPlayerEvents{Ready: a.onReady, StateChange: a.onStateChange})
		if err != nil {
			return fmt.Errorf("spawning video player: %w", err)
		}
		a.mu.Lock()
		if a.closed {
			a.mu.Unlock()
			player.Destroy()
			return ErrNotReady
		}
		a.player = player
		a.mu.Unlock()
		// Ready may already have fired while the slot was empty.
		a.startInitial()
		return nil
	}
	player := a.player
	ready := a.ready
	a.mu.Unlock()

	if !ready {
		return ErrNotReady
	}
	return player.Load(videoID)
}

func (a *VideoAdapter) Pause() error {
	a.mu.Lock()
	player := a.player
	if player == nil || !a.ready || a.closed {
		a.mu.Unlock()
		return ErrNotReady
	}
	a.expectPause++
	a.mu.Unlock()

	if err := player.Pause(); err != nil {
		a.mu.Lock()
		if a.expectPause > 0 {
			a.expectPause--
		}
		a.mu.Unlock()
		return err
	}
	return nil
}

// Close destroys the runtime. Idempotent.
func (a *VideoAdapter) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	player := a.player
	a.player = nil
	a.mu.Unlock()

	if player == nil {
		return
	}
	if err := player.Destroy(); err != nil {
		slog.Warn("video player teardown failed", "error", err)
	}
}

func (a *VideoAdapter) onReady() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.ready = true
	a.mu.Unlock()
	slog.Info("video player ready")
	a.startInitial()
}

// startInitial plays the item the runtime was primed with, exactly once,
// whichever of ready and player-stored happens last.
func (a *VideoAdapter) startInitial() {
	a.mu.Lock()
	if a.closed || a.started || !a.ready || a.player == nil {
		a.mu.Unlock()
		return
	}
	a.started = true
	player := a.player
	a.mu.Unlock()

	if err := player.Play(); err != nil {
		slog.Error("video play failed", "error", err)
	}
}

func (a *VideoAdapter) onStateChange(state VideoPlayerState) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	switch state {
	case VideoEnded:
		a.expectPause = 0
		a.mu.Unlock()
		if a.events.Ended != nil {
			a.events.Ended()
		}
	case VideoPaused:
		expected := a.expectPause > 0
		if expected {
			a.expectPause--
		}
		a.mu.Unlock()
		if expected {
			slog.Debug("video pause confirmed")
			return
		}
		if a.events.Paused != nil {
			a.events.Paused()
		}
	default:
		a.mu.Unlock()
	}
}
