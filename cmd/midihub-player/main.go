// Command midihub-player is the headless playback client: it connects to a
// midihub daemon, requests a Spotify token and executes the play and pause
// commands the daemon translates from pad presses.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rbelouin/midi-hub/internal/channel"
	"github.com/rbelouin/midi-hub/internal/command"
	"github.com/rbelouin/midi-hub/internal/config"
	"github.com/rbelouin/midi-hub/internal/playback"
	"github.com/rbelouin/midi-hub/internal/spotify"
	"github.com/rbelouin/midi-hub/internal/youtube"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("cannot load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	api := spotify.New()

	backoff := initialBackoff
	for {
		cli, err := channel.Dial(ctx, cfg.Player.HubURL)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("cannot reach hub", "url", cfg.Player.HubURL, "error", err)
			if !cfg.Player.Reconnect {
				os.Exit(1)
			}
			if !wait(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = initialBackoff

		err = runSession(ctx, cfg, api, cli)
		if ctx.Err() != nil {
			slog.Info("midihub-player stopped")
			return
		}
		slog.Warn("hub connection lost", "error", err)
		if !cfg.Player.Reconnect {
			os.Exit(1)
		}
		if !wait(ctx, backoff) {
			return
		}
	}
}

// runSession drives one hub connection until it drops. Adapters built during
// the session are scoped to it: a reconnect starts from a clean slate.
func runSession(ctx context.Context, cfg *config.Config, api *spotify.Client, cli *channel.Client) error {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Receive blocks on the socket, not on the context; closing the client
	// is what unblocks it when the session winds down.
	go func() {
		<-sctx.Done()
		cli.Close()
	}()

	audioFactory := func(events playback.AudioEvents, token playback.TokenFunc) playback.Audio {
		return playback.NewConnectAdapter(sctx, api, playback.ConnectConfig{
			DeviceName:     cfg.Spotify.DeviceName,
			BindingTimeout: cfg.Player.BindingTimeout.Std(),
			StatePoll:      cfg.Player.StatePoll.Std(),
		}, events, token)
	}
	videoFactory := func(events playback.VideoEvents) playback.Video {
		factory := youtube.NewPlayerFactory(youtube.PlayerConfig{
			Path:   cfg.Player.MPVPath,
			Args:   cfg.Player.MPVArgs,
			Socket: cfg.Player.MPVSocket,
		})
		return playback.NewVideoAdapter(factory, events)
	}

	coord := playback.NewCoordinator(sctx, cli, audioFactory, videoFactory)
	defer coord.Close()

	if err := cli.Send(command.SpotifyTokenRequest{}); err != nil {
		return fmt.Errorf("requesting token: %w", err)
	}
	slog.Info("connected to hub", "url", cfg.Player.HubURL)

	for {
		cmd, err := cli.Receive()
		if err != nil {
			return err
		}
		coord.Handle(cmd)
	}
}

func wait(ctx context.Context, d time.Duration) bool {
	slog.Info("reconnecting", "in", d)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
