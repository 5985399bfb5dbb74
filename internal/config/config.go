// Package config loads the midi-hub configuration: built-in defaults,
// then the TOML config file, then environment overrides, each layer on top
// of the previous one.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration unmarshals from TOML strings like "10ms" or "5s".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	// Addr is the daemon's HTTP listen address.
	Addr string `toml:"addr"`
	// Driver picks the MIDI driver: "portmidi" or "memory".
	Driver string `toml:"driver"`
	// Mode picks what the bridge does with events: "echo" or "translate".
	Mode string `toml:"mode"`
	// PollInterval is the MIDI input poll cadence.
	PollInterval Duration `toml:"poll_interval"`
	// ActionDelay suppresses repeat pad presses inside the window.
	ActionDelay Duration `toml:"action_delay"`
	// PublicDir serves a static control page when set.
	PublicDir string `toml:"public_dir"`
	// CatalogRefresh is a cron spec for re-reading the playlists.
	CatalogRefresh string `toml:"catalog_refresh"`

	Spotify Spotify `toml:"spotify"`
	YouTube YouTube `toml:"youtube"`
	Player  Player  `toml:"player"`
}

type Spotify struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RefreshToken string `toml:"refresh_token"`
	Playlist     string `toml:"playlist"`
	// DeviceName is the Connect device players bind; empty binds the
	// first device seen.
	DeviceName string `toml:"device_name"`
}

type YouTube struct {
	APIKey   string `toml:"api_key"`
	Playlist string `toml:"playlist"`
}

// Player configures the midihub-player binary.
type Player struct {
	HubURL         string   `toml:"hub_url"`
	Reconnect      bool     `toml:"reconnect"`
	BindingTimeout Duration `toml:"binding_timeout"`
	StatePoll      Duration `toml:"state_poll"`
	MPVPath        string   `toml:"mpv_path"`
	MPVArgs        []string `toml:"mpv_args"`
	// MPVSocket attaches to an already running mpv instead of spawning
	// one per video session.
	MPVSocket string `toml:"mpv_socket"`
}

// Load reads the configuration. A missing config file is fine, the
// defaults run an echo-mode hub out of the box; a malformed one is an
// error.
func Load() (*Config, error) {
	cfg := defaults()

	path := configPath()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Info("no config file, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	slog.Info("config loaded",
		"addr", cfg.Addr,
		"driver", cfg.Driver,
		"mode", cfg.Mode,
		"spotify", cfg.Spotify.Playlist != "",
		"youtube", cfg.YouTube.Playlist != "")
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Addr:           ":54321",
		Driver:         "portmidi",
		Mode:           "echo",
		PollInterval:   Duration(10 * time.Millisecond),
		ActionDelay:    Duration(5 * time.Second),
		CatalogRefresh: "@every 30m",
		Player: Player{
			HubURL:         "ws://127.0.0.1:54321/ws",
			Reconnect:      true,
			BindingTimeout: Duration(30 * time.Second),
			StatePoll:      Duration(5 * time.Second),
		},
	}
}

// configPath resolves $XDG_CONFIG_HOME/midi-hub/config.toml, falling back
// to ~/.config/midi-hub/config.toml.
func configPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "midi-hub", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".config", "midi-hub", "config.toml")
}

func applyEnv(cfg *Config) {
	cfg.Addr = getEnv("MIDIHUB_ADDR", cfg.Addr)
	cfg.Driver = getEnv("MIDIHUB_DRIVER", cfg.Driver)
	cfg.Mode = getEnv("MIDIHUB_MODE", cfg.Mode)
	cfg.PublicDir = getEnv("MIDIHUB_PUBLIC_DIR", cfg.PublicDir)
	cfg.Player.HubURL = getEnv("MIDIHUB_HUB_URL", cfg.Player.HubURL)
	cfg.Spotify.ClientID = getEnv("SPOTIFY_CLIENT_ID", cfg.Spotify.ClientID)
	cfg.Spotify.ClientSecret = getEnv("SPOTIFY_CLIENT_SECRET", cfg.Spotify.ClientSecret)
	cfg.Spotify.RefreshToken = getEnv("SPOTIFY_REFRESH_TOKEN", cfg.Spotify.RefreshToken)
	cfg.Spotify.Playlist = getEnv("SPOTIFY_PLAYLIST", cfg.Spotify.Playlist)
	cfg.Spotify.DeviceName = getEnv("SPOTIFY_DEVICE_NAME", cfg.Spotify.DeviceName)
	cfg.YouTube.APIKey = getEnv("YOUTUBE_API_KEY", cfg.YouTube.APIKey)
	cfg.YouTube.Playlist = getEnv("YOUTUBE_PLAYLIST", cfg.YouTube.Playlist)
}

func getEnv(key, def string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return def
}
