package playback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rbelouin/midi-hub/internal/spotify"
)

// Defaults for the Connect adapter's polling loops.
const (
	DefaultBindingTimeout = 30 * time.Second
	DefaultBindingPoll    = 2 * time.Second
	DefaultStatePoll      = 5 * time.Second
)

// ConnectAPI is the slice of the Spotify Web API the adapter needs.
// *spotify.Client implements it.
type ConnectAPI interface {
	Devices(ctx context.Context, token string) ([]spotify.Device, error)
	Play(ctx context.Context, token, deviceID string, uris []string) error
	Pause(ctx context.Context, token string) error
	PlaybackState(ctx context.Context, token string) (*spotify.PlaybackState, error)
}

// ConnectConfig tunes the Connect adapter's polling. Zero values fall back
// to the package defaults.
type ConnectConfig struct {
	// DeviceName is the Connect device to bind. Empty binds the first
	// device the Web API reports.
	DeviceName string
	// BindingTimeout bounds how long the binding may stay unresolved
	// before a failure is reported. Polling continues afterwards.
	BindingTimeout time.Duration
	BindingPoll    time.Duration
	StatePoll      time.Duration
}

// ConnectAdapter drives playback on a Spotify Connect device through the
// Web API. Construction starts two pollers: one binds the configured device
// and one watches the externally visible playback state. The ready latch
// flips on the first successful Web API answer; play and pause before that
// fail with ErrNotReady.
type ConnectAdapter struct {
	api    ConnectAPI
	cfg    ConnectConfig
	events AudioEvents
	token  TokenFunc

	ready  atomic.Bool
	cancel context.CancelFunc
}

// NewConnectAdapter starts the adapter's pollers. Close stops them.
func NewConnectAdapter(ctx context.Context, api ConnectAPI, cfg ConnectConfig, events AudioEvents, token TokenFunc) *ConnectAdapter {
	if cfg.BindingTimeout == 0 {
		cfg.BindingTimeout = DefaultBindingTimeout
	}
	if cfg.BindingPoll == 0 {
		cfg.BindingPoll = DefaultBindingPoll
	}
	if cfg.StatePoll == 0 {
		cfg.StatePoll = DefaultStatePoll
	}
	actx, cancel := context.WithCancel(ctx)
	a := &ConnectAdapter{api: api, cfg: cfg, events: events, token: token, cancel: cancel}
	go a.bind(actx)
	go a.watchState(actx)
	return a
}

// Play starts the given track on the bound device. The track id may be a
// bare id or a full spotify: URI.
func (a *ConnectAdapter) Play(ctx context.Context, trackID, deviceID, token string) error {
	if !a.ready.Load() {
		return ErrNotReady
	}
	return a.api.Play(ctx, token, deviceID, []string{spotify.TrackURI(trackID)})
}

func (a *ConnectAdapter) Pause(ctx context.Context, token string) error {
	if !a.ready.Load() {
		return ErrNotReady
	}
	return a.api.Pause(ctx, token)
}

// Close stops the pollers. Idempotent.
func (a *ConnectAdapter) Close() {
	a.cancel()
}

// bind polls the device list until the configured device shows up. The
// first answer from the Web API, device or not, flips the ready latch. A
// binding timeout is reported once but does not stop the poll, so a device
// booted late still binds.
func (a *ConnectAdapter) bind(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.BindingPoll)
	defer ticker.Stop()
	deadline := time.Now().Add(a.cfg.BindingTimeout)
	reported := false
	for {
		devices, err := a.api.Devices(ctx, a.token())
		if err != nil {
			slog.Debug("spotify devices poll failed", "error", err)
		} else {
			if a.ready.CompareAndSwap(false, true) {
				slog.Info("spotify backend ready")
			}
			if dev, ok := a.matchDevice(devices); ok {
				if a.events.DeviceReady != nil {
					a.events.DeviceReady(dev.ID)
				}
				return
			}
		}
		if !reported && time.Now().After(deadline) {
			reported = true
			if a.events.BindingFailed != nil {
				a.events.BindingFailed(a.bindingErr())
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *ConnectAdapter) matchDevice(devices []spotify.Device) (spotify.Device, bool) {
	for _, dev := range devices {
		if a.cfg.DeviceName == "" || strings.EqualFold(dev.Name, a.cfg.DeviceName) {
			return dev, true
		}
	}
	return spotify.Device{}, false
}

func (a *ConnectAdapter) bindingErr() error {
	if a.cfg.DeviceName == "" {
		return fmt.Errorf("no connect device seen within %s", a.cfg.BindingTimeout)
	}
	return fmt.Errorf("device %q not seen within %s", a.cfg.DeviceName, a.cfg.BindingTimeout)
}

// watchState polls the externally visible playback state and reports
// changes. Connect playback can be driven from any logged-in device, so the
// poll is how a pause made on a phone shows up here.
func (a *ConnectAdapter) watchState(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.StatePoll)
	defer ticker.Stop()
	var last TrackInfo
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !a.ready.Load() {
			continue
		}
		state, err := a.api.PlaybackState(ctx, a.token())
		if err != nil {
			slog.Debug("spotify state poll failed", "error", err)
			continue
		}
		info := trackInfo(state)
		if info == last {
			continue
		}
		last = info
		if a.events.StateChanged != nil {
			a.events.StateChanged(info)
		}
	}
}

func trackInfo(state *spotify.PlaybackState) TrackInfo {
	if state == nil {
		return TrackInfo{}
	}
	info := TrackInfo{Playing: state.IsPlaying}
	if state.Item != nil {
		info.Title = state.Item.Name
		info.Artists = strings.Join(state.Item.ArtistNames(), ", ")
	}
	return info
}
