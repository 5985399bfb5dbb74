// Command midihub runs the device daemon: it opens every MIDI port on the
// host, bridges their events, and serves the command channel that players
// connect to. The login subcommand runs the Spotify authorization flow and
// prints the refresh token to put in the config.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/oauth2"

	"github.com/rbelouin/midi-hub/internal/command"
	"github.com/rbelouin/midi-hub/internal/config"
	"github.com/rbelouin/midi-hub/internal/httpapi"
	"github.com/rbelouin/midi-hub/internal/hub"
	"github.com/rbelouin/midi-hub/internal/mididev"
	"github.com/rbelouin/midi-hub/internal/mididrv"
	"github.com/rbelouin/midi-hub/internal/spotify"
	"github.com/rbelouin/midi-hub/internal/youtube"
)

func main() {
	cmd := "run"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "run":
		run()
	case "login":
		login()
	default:
		fmt.Fprintf(os.Stderr, "usage: %s [run|login]\n", os.Args[0])
		os.Exit(2)
	}
}

func run() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("cannot load config", "error", err)
		os.Exit(1)
	}
	mode, err := mididev.ParseMode(cfg.Mode)
	if err != nil {
		slog.Error("cannot run bridge", "error", err)
		os.Exit(1)
	}

	drv, err := openDriver(cfg.Driver)
	if err != nil {
		slog.Error("cannot initialize midi driver", "driver", cfg.Driver, "error", err)
		os.Exit(1)
	}
	defer drv.Terminate()

	registry := mididev.NewRegistry(drv, mididev.DefaultBatchSize)
	inputs, outputs := registry.OpenAll()
	slog.Info("midi ports open", "inputs", inputs, "outputs", outputs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := &daemon{cfg: cfg, translator: mididev.NewTranslator(cfg.ActionDelay.Std())}
	d.hub = hub.New(d.handleUpstream)

	if cfg.Spotify.RefreshToken != "" {
		tokens, err := spotify.Credentials{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RefreshToken: cfg.Spotify.RefreshToken,
		}.TokenSource(ctx)
		if err != nil {
			slog.Error("cannot build spotify token source", "error", err)
			os.Exit(1)
		}
		d.tokens = tokens
		d.spotify = spotify.New()
	}
	if cfg.YouTube.APIKey != "" {
		d.youtube = youtube.NewClient(cfg.YouTube.APIKey)
	}

	go d.refreshCatalogs(ctx)
	if cfg.CatalogRefresh != "" && (d.spotify != nil || d.youtube != nil) {
		scheduler := cron.New()
		if _, err := scheduler.AddFunc(cfg.CatalogRefresh, func() { d.refreshCatalogs(ctx) }); err != nil {
			slog.Error("invalid catalog refresh schedule", "spec", cfg.CatalogRefresh, "error", err)
			os.Exit(1)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewRouter(d.hub, cfg.PublicDir)}
	go func() {
		slog.Info("midihub listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	var stop atomic.Bool
	bridge := &mididev.Bridge{
		Registry:   registry,
		Mode:       mode,
		Interval:   cfg.PollInterval.Std(),
		Translator: d.translator,
		Sink:       d.hub,
	}
	bridgeDone := make(chan struct{})
	go func() {
		bridge.Run(&stop)
		close(bridgeDone)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutting down", "signal", sig.String())

	// Stop the bridge first so no command fires into a closing hub, then
	// release the MIDI ports.
	stop.Store(true)
	<-bridgeDone
	registry.CloseAll()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	slog.Info("midihub stopped")
}

func openDriver(name string) (mididrv.Driver, error) {
	switch name {
	case "memory":
		return mididrv.NewMemory(), nil
	case "portmidi":
		return mididrv.NewPortmidi()
	default:
		return nil, fmt.Errorf("unknown midi driver %q", name)
	}
}

// daemon holds the state shared between the hub, the bridge and the
// catalog scheduler.
type daemon struct {
	cfg        *config.Config
	hub        *hub.Hub
	translator *mididev.Translator
	tokens     oauth2.TokenSource
	spotify    *spotify.Client
	youtube    *youtube.Client
}

// handleUpstream runs for every command a player pushes over the channel.
func (d *daemon) handleUpstream(cmd command.Command) {
	switch cmd := cmd.(type) {
	case command.SpotifyTokenRequest:
		// Token minting hits the accounts service; keep it off the read
		// pump.
		go d.grantToken()
	case command.SpotifyDeviceBound:
		slog.Info("player bound to spotify device", "device", cmd.DeviceID)
	case command.YoutubePause:
		d.translator.ObserveUpstream(cmd)
	default:
		slog.Debug("unhandled upstream command", "command", cmd.Tag())
	}
}

// grantToken broadcasts a fresh access token; the translator gets a copy so
// translated plays carry it.
func (d *daemon) grantToken() {
	if d.tokens == nil {
		slog.Warn("token requested but spotify is not configured")
		return
	}
	token, err := d.tokens.Token()
	if err != nil {
		slog.Error("cannot mint access token", "error", err)
		return
	}
	d.translator.SetAccessToken(token.AccessToken)
	d.hub.Broadcast(command.SpotifyTokenGrant{AccessToken: token.AccessToken})
}

func (d *daemon) refreshCatalogs(ctx context.Context) {
	if d.spotify != nil && d.cfg.Spotify.Playlist != "" {
		d.refreshSpotifyCatalog(ctx)
	}
	if d.youtube != nil && d.cfg.YouTube.Playlist != "" {
		d.refreshYoutubeCatalog(ctx)
	}
}

func (d *daemon) refreshSpotifyCatalog(ctx context.Context) {
	token, err := d.tokens.Token()
	if err != nil {
		slog.Error("cannot mint access token for catalog refresh", "error", err)
		return
	}
	tracks, err := d.spotify.PlaylistTracks(ctx, token.AccessToken, d.cfg.Spotify.Playlist)
	if err != nil {
		slog.Error("cannot fetch spotify catalog", "playlist", d.cfg.Spotify.Playlist, "error", err)
		return
	}
	uris := make([]string, len(tracks))
	for i, track := range tracks {
		uris[i] = track.URI
	}
	d.translator.SetAudioCatalog(uris)
	d.translator.SetAccessToken(token.AccessToken)
	slog.Info("spotify catalog refreshed", "playlist", d.cfg.Spotify.Playlist, "tracks", len(uris))
}

func (d *daemon) refreshYoutubeCatalog(ctx context.Context) {
	items, err := d.youtube.PlaylistItems(ctx, d.cfg.YouTube.Playlist)
	if err != nil {
		slog.Error("cannot fetch youtube catalog", "playlist", d.cfg.YouTube.Playlist, "error", err)
		return
	}
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.VideoID
	}
	d.translator.SetVideoCatalog(ids)
	slog.Info("youtube catalog refreshed", "playlist", d.cfg.YouTube.Playlist, "videos", len(ids))
}

func login() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("cannot load config", "error", err)
		os.Exit(1)
	}
	if cfg.Spotify.ClientID == "" || cfg.Spotify.ClientSecret == "" {
		slog.Error("spotify client_id and client_secret must be configured before logging in")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	refresh, err := spotify.Login(ctx, spotify.Credentials{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
	})
	if err != nil {
		slog.Error("login failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Add this to the [spotify] section of your config:\n\n  refresh_token = %q\n", refresh)
}
