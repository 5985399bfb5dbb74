package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/rbelouin/midi-hub/internal/command"
)

type pendingPlay struct {
	trackID string
}

// Coordinator owns one channel connection's playback session. It decodes
// daemon commands into backend calls, keeps the two backends mutually
// exclusive and reports bindings and stops back upstream.
//
// The session lock is only ever held across state transitions, never across
// adapter or network calls: handlers decide what to do under the lock, then
// execute after releasing it.
type Coordinator struct {
	ctx          context.Context
	sender       Sender
	audioFactory AudioFactory
	videoFactory VideoFactory

	mu      sync.Mutex
	session Session
	audio   Audio
	video   Video
	pending *pendingPlay
	closed  bool
}

// NewCoordinator builds a coordinator for one channel connection. The
// context bounds every outbound call made on behalf of the session,
// including deferred plays resolved from adapter callbacks.
func NewCoordinator(ctx context.Context, sender Sender, audio AudioFactory, video VideoFactory) *Coordinator {
	return &Coordinator{
		ctx:          ctx,
		sender:       sender,
		audioFactory: audio,
		videoFactory: video,
	}
}

// Handle applies one daemon command to the session. The channel read loop
// calls it sequentially.
func (c *Coordinator) Handle(cmd command.Command) {
	switch cmd := cmd.(type) {
	case command.SpotifyTokenGrant:
		c.handleTokenGrant(cmd)
	case command.SpotifyPlay:
		c.handleSpotifyPlay(cmd)
	case command.SpotifyPause:
		c.handleSpotifyPause()
	case command.YoutubePlay:
		c.handleYoutubePlay(cmd)
	case command.YoutubePause:
		c.handleYoutubePause()
	case command.SpotifyTokenRequest:
		// Another client asking the daemon for a token.
	case command.SpotifyDeviceBound:
		// Binding report from a player, only the daemon cares.
	default:
		slog.Warn("unhandled command", "command", cmd.Tag())
	}
}

// Close tears down both adapters. The coordinator must not be used after.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	audio, video := c.audio, c.video
	c.audio, c.video = nil, nil
	c.pending = nil
	c.session.State = StateIdle
	c.mu.Unlock()

	if audio != nil {
		audio.Close()
	}
	if video != nil {
		video.Close()
	}
}

// handleTokenGrant records the token and constructs the audio adapter on
// the first grant. Constructing starts the adapter's device binding; a play
// deferred before the grant resolves here if the binding already completed.
func (c *Coordinator) handleTokenGrant(cmd command.SpotifyTokenGrant) {
	c.mu.Lock()
	c.session.Token = cmd.AccessToken
	need := c.audio == nil && !c.closed
	c.mu.Unlock()

	slog.Info("spotify token received")
	if !need {
		return
	}

	// Built outside the lock: the factory spawns goroutines that may fire
	// callbacks straight away, and those callbacks take the lock.
	adapter := c.audioFactory(AudioEvents{
		DeviceReady:   c.onDeviceReady,
		BindingFailed: c.onBindingFailed,
		StateChanged:  c.onAudioState,
	}, c.sessionToken)

	c.mu.Lock()
	if c.audio != nil || c.closed {
		c.mu.Unlock()
		adapter.Close()
		return
	}
	c.audio = adapter
	var trackID, deviceID, token string
	var resume bool
	if c.pending != nil && c.session.DeviceID != "" {
		trackID = c.pending.trackID
		deviceID = c.session.DeviceID
		token = c.session.Token
		c.pending = nil
		resume = true
	}
	c.mu.Unlock()

	if resume {
		slog.Info("resuming deferred play", "track", trackID)
		c.playAudio(adapter, trackID, deviceID, token)
	}
}

func (c *Coordinator) handleSpotifyPlay(cmd command.SpotifyPlay) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if cmd.AccessToken != "" {
		c.session.Token = cmd.AccessToken
	}
	video := c.video
	c.video = nil
	c.session.State = StateAudioActive
	audio := c.audio
	deviceID := c.session.DeviceID
	token := c.session.Token
	deferred := deviceID == ""
	if deferred {
		// Newest request wins; an older deferred play is superseded.
		c.pending = &pendingPlay{trackID: cmd.TrackID}
	}
	c.mu.Unlock()

	if video != nil {
		slog.Info("tearing down video for audio playback")
		video.Close()
	}
	if deferred {
		slog.Info("no spotify device bound yet, deferring play", "track", cmd.TrackID)
		return
	}
	if audio == nil {
		// A device id is only ever recorded by the adapter, so this only
		// happens on a session torn down mid-command.
		return
	}
	c.playAudio(audio, cmd.TrackID, deviceID, token)
}

func (c *Coordinator) handleSpotifyPause() {
	c.mu.Lock()
	audio := c.audio
	token := c.session.Token
	c.mu.Unlock()

	if audio == nil {
		slog.Debug("audio pause ignored, no adapter")
		return
	}
	err := audio.Pause(c.ctx, token)
	switch {
	case errors.Is(err, ErrNotReady):
		slog.Warn("audio backend not ready, dropping pause")
	case err != nil:
		slog.Error("audio pause failed", "error", err)
	}
}

func (c *Coordinator) handleYoutubePlay(cmd command.YoutubePlay) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	var audio Audio
	var token string
	if c.session.State == StateAudioActive && c.audio != nil {
		audio = c.audio
		token = c.session.Token
	}
	c.session.State = StateVideoActive
	video := c.video
	c.mu.Unlock()

	// Audio is paused, not torn down: switching back must not redo the
	// device binding handshake.
	if audio != nil {
		slog.Info("pausing audio for video playback")
		if err := audio.Pause(c.ctx, token); err != nil && !errors.Is(err, ErrNotReady) {
			slog.Error("audio pause failed", "error", err)
		}
	}

	if video == nil {
		created := c.videoFactory(VideoEvents{Ended: c.onVideoEnded, Paused: c.onVideoPaused})
		c.mu.Lock()
		switch {
		case c.closed:
			c.mu.Unlock()
			created.Close()
			return
		case c.video != nil:
			video = c.video
			c.mu.Unlock()
			created.Close()
		default:
			c.video = created
			video = created
			c.mu.Unlock()
		}
	}

	err := video.Play(cmd.VideoID)
	switch {
	case errors.Is(err, ErrNotReady):
		slog.Warn("video backend not ready, dropping play", "video", cmd.VideoID)
	case err != nil:
		slog.Error("video play failed", "video", cmd.VideoID, "error", err)
	}
}

func (c *Coordinator) handleYoutubePause() {
	c.mu.Lock()
	video := c.video
	c.mu.Unlock()

	if video == nil {
		slog.Debug("video pause ignored, no adapter")
		return
	}
	err := video.Pause()
	switch {
	case errors.Is(err, ErrNotReady):
		slog.Warn("video backend not ready, dropping pause")
	case err != nil:
		slog.Error("video pause failed", "error", err)
	}
}

// onDeviceReady records the bound device, reports it upstream and resolves
// a deferred play. The adapter fires it at most once per binding.
func (c *Coordinator) onDeviceReady(deviceID string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.session.DeviceID = deviceID
	audio := c.audio
	var trackID, token string
	var resume bool
	if c.pending != nil && audio != nil {
		trackID = c.pending.trackID
		token = c.session.Token
		c.pending = nil
		resume = true
	}
	c.mu.Unlock()

	slog.Info("spotify device bound", "device", deviceID)
	if err := c.sender.Send(command.SpotifyDeviceBound{DeviceID: deviceID}); err != nil {
		slog.Warn("cannot report device binding upstream", "error", err)
	}
	if resume {
		slog.Info("resuming deferred play", "track", trackID)
		c.playAudio(audio, trackID, deviceID, token)
	}
}

// onBindingFailed drops the deferred play, if any. The session stays alive:
// the adapter keeps polling and a late binding still resolves.
func (c *Coordinator) onBindingFailed(err error) {
	c.mu.Lock()
	var dropped string
	if c.pending != nil {
		dropped = c.pending.trackID
		c.pending = nil
	}
	c.mu.Unlock()

	if dropped != "" {
		slog.Error("spotify device binding timed out, dropping deferred play", "track", dropped, "error", err)
		return
	}
	slog.Error("spotify device binding timed out", "error", err)
}

func (c *Coordinator) onAudioState(info TrackInfo) {
	slog.Info("audio playback state", "title", info.Title, "artists", info.Artists, "playing", info.Playing)
}

// videoStopped handles both stop reasons the runtime reports. The adapter
// slot is cleared under the lock, so a burst of events from the runtime
// still produces exactly one upstream report and one teardown.
func (c *Coordinator) videoStopped(reason string) {
	c.mu.Lock()
	video := c.video
	c.video = nil
	if video != nil && c.session.State == StateVideoActive {
		c.session.State = StateIdle
	}
	c.mu.Unlock()

	if video == nil {
		return
	}
	slog.Info("video playback stopped", "reason", reason)
	if err := c.sender.Send(command.YoutubePause{}); err != nil {
		slog.Warn("cannot report video stop upstream", "error", err)
	}
	video.Close()
}

func (c *Coordinator) onVideoEnded()  { c.videoStopped("ended") }
func (c *Coordinator) onVideoPaused() { c.videoStopped("paused") }

func (c *Coordinator) playAudio(audio Audio, trackID, deviceID, token string) {
	err := audio.Play(c.ctx, trackID, deviceID, token)
	switch {
	case errors.Is(err, ErrNotReady):
		slog.Warn("audio backend not ready, dropping play", "track", trackID)
	case err != nil:
		slog.Error("audio play failed", "track", trackID, "error", err)
	}
}

func (c *Coordinator) sessionToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Token
}

func (c *Coordinator) snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}
