// Package playback coordinates the audio and video backends of a player
// process. The Coordinator owns the session state machine and hands the
// actual playback work to backend adapters: a Spotify Connect adapter for
// audio and an mpv-backed adapter for video.
package playback

import (
	"context"
	"errors"

	"github.com/rbelouin/midi-hub/internal/command"
)

// ErrNotReady is returned by adapter operations invoked before the backend
// runtime finished initializing. Callers drop the request and log it; they
// must not retry or queue.
var ErrNotReady = errors.New("playback: backend not ready")

// State is the coordinator's view of which backend currently owns playback.
type State int

const (
	StateIdle State = iota
	StateAudioActive
	StateVideoActive
)

func (s State) String() string {
	switch s {
	case StateAudioActive:
		return "audio-active"
	case StateVideoActive:
		return "video-active"
	default:
		return "idle"
	}
}

// Session carries the mutable per-connection playback state. It is owned by
// the Coordinator and only ever touched under its lock.
type Session struct {
	State    State
	Token    string // most recent Spotify access token
	DeviceID string // bound Spotify Connect device, "" until the handshake completes
}

// TrackInfo describes the externally observed audio playback state.
type TrackInfo struct {
	Title   string
	Artists string
	Playing bool
}

// Audio is the capability surface the coordinator needs from an audio
// backend. Close releases the adapter's background work; it never fails.
type Audio interface {
	Play(ctx context.Context, trackID, deviceID, token string) error
	Pause(ctx context.Context, token string) error
	Close()
}

// Video is the capability surface the coordinator needs from a video
// backend.
type Video interface {
	Play(videoID string) error
	Pause() error
	Close()
}

// AudioEvents are the callbacks an audio adapter fires from its background
// goroutines. Handlers must be safe to call from any goroutine.
type AudioEvents struct {
	// DeviceReady reports the Connect device id once the binding poll
	// finds the configured device.
	DeviceReady func(deviceID string)
	// BindingFailed reports that the binding timeout elapsed. The adapter
	// keeps polling afterwards, so DeviceReady may still follow.
	BindingFailed func(err error)
	// StateChanged reports externally observed playback changes.
	StateChanged func(info TrackInfo)
}

// VideoEvents are the callbacks a video adapter fires when playback stops
// for reasons the coordinator did not command.
type VideoEvents struct {
	Ended  func()
	Paused func()
}

// TokenFunc returns the session's current Spotify access token. Adapters
// call it from their polling goroutines instead of caching a token that the
// daemon may rotate underneath them.
type TokenFunc func() string

// AudioFactory builds an audio adapter wired to the given callbacks.
type AudioFactory func(events AudioEvents, token TokenFunc) Audio

// VideoFactory builds a video adapter wired to the given callbacks.
type VideoFactory func(events VideoEvents) Video

// Sender pushes commands back to the daemon over the command channel.
type Sender interface {
	Send(cmd command.Command) error
}

// VideoPlayerState classifies state changes reported by the underlying
// video runtime.
type VideoPlayerState int

const (
	VideoEnded VideoPlayerState = iota
	VideoPaused
)

// VideoPlayerEvents are the callbacks the video runtime fires. Ready is
// fired once, when the runtime accepts commands; StateChange reports
// end-of-media and pauses, including pauses the adapter itself requested.
type VideoPlayerEvents struct {
	Ready       func()
	StateChange func(state VideoPlayerState)
}

// VideoPlayer is the underlying video runtime driven by the VideoAdapter.
// In production it is an mpv process controlled over its JSON IPC socket.
type VideoPlayer interface {
	// Play starts playback of the item the player was created with.
	Play() error
	// Load replaces the current item and starts playing it.
	Load(videoID string) error
	Pause() error
	// Destroy stops playback and releases the runtime. It is safe to call
	// at any point of the player's life cycle.
	Destroy() error
}

// VideoPlayerFactory spawns a video runtime primed with an initial item.
type VideoPlayerFactory func(videoID string, events VideoPlayerEvents) (VideoPlayer, error)
