// Package command defines the messages exchanged between the MIDI daemon
// and playback clients, and their JSON wire encoding.
package command

import (
	"encoding/json"
	"fmt"
)

// Command is the closed set of messages carried over the command channel.
// Payload-free commands encode as a bare JSON string ("SpotifyPause");
// commands with a payload encode as a single-key object keyed by the tag.
type Command interface {
	Tag() string
}

type SpotifyPlay struct {
	TrackID     string `json:"track_id"`
	AccessToken string `json:"access_token"`
}

type SpotifyPause struct{}

type SpotifyTokenRequest struct{}

type SpotifyTokenGrant struct {
	AccessToken string `json:"access_token"`
}

type SpotifyDeviceBound struct {
	DeviceID string `json:"device_id"`
}

type YoutubePlay struct {
	VideoID string `json:"video_id"`
}

type YoutubePause struct{}

func (SpotifyPlay) Tag() string         { return "SpotifyPlay" }
func (SpotifyPause) Tag() string        { return "SpotifyPause" }
func (SpotifyTokenRequest) Tag() string { return "SpotifyTokenRequest" }
func (SpotifyTokenGrant) Tag() string   { return "SpotifyTokenGrant" }
func (SpotifyDeviceBound) Tag() string  { return "SpotifyDeviceBound" }
func (YoutubePlay) Tag() string         { return "YoutubePlay" }
func (YoutubePause) Tag() string        { return "YoutubePause" }

// Marshal encodes a command to its wire form.
func Marshal(c Command) ([]byte, error) {
	switch c.(type) {
	case SpotifyPause, SpotifyTokenRequest, YoutubePause:
		return json.Marshal(c.Tag())
	case SpotifyPlay, SpotifyTokenGrant, SpotifyDeviceBound, YoutubePlay:
		return json.Marshal(map[string]Command{c.Tag(): c})
	default:
		return nil, fmt.Errorf("unknown command type %T", c)
	}
}

// Unmarshal decodes a wire message into a command. It accepts the bare-tag
// string form for payload-free commands and the single-key object form for
// the rest; everything else is an error the caller is expected to log and
// drop.
func Unmarshal(data []byte) (Command, error) {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		return fromTag(tag, nil)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("command is neither a tag string nor an object: %w", err)
	}
	if len(obj) != 1 {
		return nil, fmt.Errorf("command object must have exactly one key, got %d", len(obj))
	}
	for tag, payload := range obj {
		return fromTag(tag, payload)
	}
	return nil, fmt.Errorf("empty command object")
}

func fromTag(tag string, payload json.RawMessage) (Command, error) {
	switch tag {
	case "SpotifyPause":
		if err := ensureNoPayload(tag, payload); err != nil {
			return nil, err
		}
		return SpotifyPause{}, nil
	case "SpotifyTokenRequest":
		if err := ensureNoPayload(tag, payload); err != nil {
			return nil, err
		}
		return SpotifyTokenRequest{}, nil
	case "YoutubePause":
		if err := ensureNoPayload(tag, payload); err != nil {
			return nil, err
		}
		return YoutubePause{}, nil
	case "SpotifyPlay":
		var c SpotifyPlay
		if err := decodePayload(tag, payload, &c); err != nil {
			return nil, err
		}
		return c, nil
	case "SpotifyTokenGrant":
		var c SpotifyTokenGrant
		if err := decodePayload(tag, payload, &c); err != nil {
			return nil, err
		}
		return c, nil
	case "SpotifyDeviceBound":
		var c SpotifyDeviceBound
		if err := decodePayload(tag, payload, &c); err != nil {
			return nil, err
		}
		return c, nil
	case "YoutubePlay":
		var c YoutubePlay
		if err := decodePayload(tag, payload, &c); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown command tag %q", tag)
	}
}

func decodePayload(tag string, payload json.RawMessage, dst any) error {
	if payload == nil {
		return fmt.Errorf("command %s requires a payload", tag)
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("invalid %s payload: %w", tag, err)
	}
	return nil
}

func ensureNoPayload(tag string, payload json.RawMessage) error {
	if payload == nil || string(payload) == "null" {
		return nil
	}
	return fmt.Errorf("command %s does not take a payload", tag)
}
