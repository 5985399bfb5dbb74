package mididev

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rbelouin/midi-hub/internal/command"
	"github.com/rbelouin/midi-hub/internal/mididrv"
)

const (
	statusMask   = 0xF0
	statusNoteOn = 0x90

	// Notes below this select the active catalog instead of playing.
	selectorNotes = 12
)

const (
	sourceAudio = iota
	sourceVideo
)

// DefaultActionDelay is the minimum spacing between two commands from the
// same catalog. Pad hardware bounces; a second press inside the window is
// noise, not intent.
const DefaultActionDelay = 5 * time.Second

// Translator maps note-on events to playback commands. Notes 0-11 switch the
// active catalog (0 = audio, 1 = video); higher notes index into it, offset
// by 12. Pressing the pad of the item already playing pauses it instead.
type Translator struct {
	delay time.Duration
	now   func() time.Time

	mu      sync.Mutex
	active  int
	sources [2]*source
}

type source struct {
	name       string
	items      []string
	token      string
	playing    int
	lastAction time.Time
}

func NewTranslator(delay time.Duration) *Translator {
	if delay <= 0 {
		delay = DefaultActionDelay
	}
	t := &Translator{delay: delay, now: time.Now}
	t.sources[sourceAudio] = &source{name: "spotify", playing: -1}
	t.sources[sourceVideo] = &source{name: "youtube", playing: -1}
	return t
}

// SetAudioCatalog replaces the track list pads index into.
func (t *Translator) SetAudioCatalog(trackIDs []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sources[sourceAudio].items = trackIDs
}

// SetVideoCatalog replaces the video list pads index into.
func (t *Translator) SetVideoCatalog(videoIDs []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sources[sourceVideo].items = videoIDs
}

// SetAccessToken stores the token attached to outgoing play commands. The
// poll loop must never wait on a token refresh, so the daemon pushes fresh
// tokens here instead of the translator fetching them.
func (t *Translator) SetAccessToken(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sources[sourceAudio].token = token
}

// ObserveUpstream keeps the toggle state in sync with what the player
// reports back over the channel.
func (t *Translator) ObserveUpstream(cmd command.Command) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch cmd.(type) {
	case command.YoutubePause:
		t.sources[sourceVideo].playing = -1
	}
}

func (t *Translator) Translate(ev mididrv.Event) (command.Command, bool) {
	if ev.Status&statusMask != statusNoteOn || ev.Data2 <= 0 {
		return nil, false
	}
	note := int(ev.Data1)

	t.mu.Lock()
	defer t.mu.Unlock()

	if note < selectorNotes {
		if note < len(t.sources) {
			t.active = note
			slog.Debug("catalog selected", "name", t.sources[note].name)
		}
		return nil, false
	}

	src := t.sources[t.active]
	idx := note - selectorNotes
	if idx >= len(src.items) {
		return nil, false
	}

	now := t.now()
	if now.Sub(src.lastAction) < t.delay {
		slog.Debug("pad press suppressed", "name", src.name, "index", idx)
		return nil, false
	}

	if src.playing == idx {
		src.playing = -1
		src.lastAction = now
		if t.active == sourceVideo {
			return command.YoutubePause{}, true
		}
		return command.SpotifyPause{}, true
	}

	if t.active == sourceVideo {
		src.playing = idx
		src.lastAction = now
		return command.YoutubePlay{VideoID: src.items[idx]}, true
	}

	if src.token == "" {
		slog.Warn("no access token yet, dropping pad press", "index", idx)
		return nil, false
	}
	src.playing = idx
	src.lastAction = now
	return command.SpotifyPlay{TrackID: src.items[idx], AccessToken: src.token}, true
}
