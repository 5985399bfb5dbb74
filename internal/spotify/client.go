// Package spotify talks to the Spotify Web API and the Spotify accounts
// service. The daemon uses it to build track catalogs and mint access
// tokens; players use it to drive playback on a Connect device.
package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.spotify.com/v1"

// ErrUnauthorized is returned when the Web API rejects the access token.
var ErrUnauthorized = errors.New("spotify: unauthorized")

// Client is a thin Spotify Web API client. Access tokens are passed per
// call because the daemon rotates them underneath long-lived players.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New() *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Device is a Spotify Connect endpoint visible to the account.
type Device struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"is_active"`
}

// Track is one playlist entry.
type Track struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// PlaybackState is the account's current playback as the Web API reports
// it. Item is nil when nothing is loaded.
type PlaybackState struct {
	IsPlaying bool          `json:"is_playing"`
	Item      *PlaybackItem `json:"item"`
}

type PlaybackItem struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	URI     string   `json:"uri"`
	Artists []Artist `json:"artists"`
}

type Artist struct {
	Name string `json:"name"`
}

func (i *PlaybackItem) ArtistNames() []string {
	names := make([]string, 0, len(i.Artists))
	for _, a := range i.Artists {
		names = append(names, a.Name)
	}
	return names
}

// Devices lists the account's Connect devices.
func (c *Client) Devices(ctx context.Context, token string) ([]Device, error) {
	var payload struct {
		Devices []Device `json:"devices"`
	}
	if err := c.get(ctx, token, "/me/player/devices", &payload); err != nil {
		return nil, err
	}
	return payload.Devices, nil
}

// Play starts playback of the given URIs on the given device. An empty
// device id targets whatever device is currently active.
func (c *Client) Play(ctx context.Context, token, deviceID string, uris []string) error {
	path := "/me/player/play"
	if deviceID != "" {
		path += "?device_id=" + url.QueryEscape(deviceID)
	}
	body := struct {
		URIs []string `json:"uris"`
	}{URIs: uris}
	return c.put(ctx, token, path, body)
}

// Pause pauses the account's playback wherever it is running.
func (c *Client) Pause(ctx context.Context, token string) error {
	return c.put(ctx, token, "/me/player/pause", nil)
}

// PlaybackState fetches the current playback. It returns nil when the Web
// API answers 204, meaning no device is playing anything.
func (c *Client) PlaybackState(ctx context.Context, token string) (*PlaybackState, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/me/player", token, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting playback state: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var state PlaybackState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("decoding playback state: %w", err)
	}
	return &state, nil
}

// PlaylistTracks fetches one page of the given playlist, which is plenty
// for a catalog indexed by pad number.
func (c *Client) PlaylistTracks(ctx context.Context, token, playlistID string) ([]Track, error) {
	var payload struct {
		Items []struct {
			Track Track `json:"track"`
		} `json:"items"`
	}
	path := "/playlists/" + url.PathEscape(playlistID) + "/tracks"
	if err := c.get(ctx, token, path, &payload); err != nil {
		return nil, err
	}
	tracks := make([]Track, 0, len(payload.Items))
	for _, item := range payload.Items {
		tracks = append(tracks, item.Track)
	}
	return tracks, nil
}

// TrackURI normalizes a track reference to a spotify: URI. Catalog entries
// already carry full URIs; bare ids get the track prefix.
func TrackURI(id string) string {
	if strings.HasPrefix(id, "spotify:") {
		return id
	}
	return "spotify:track:" + id
}

func (c *Client) get(ctx context.Context, token, path string, dst any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func (c *Client) put(ctx context.Context, token, path string, body any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", path, err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := c.newRequest(ctx, http.MethodPut, path, token, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s %s: %w", resp.Request.Method, resp.Request.URL.Path, ErrUnauthorized)
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s %s returned %d: %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, strings.TrimSpace(string(detail)))
}
