package mididev

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rbelouin/midi-hub/internal/command"
	"github.com/rbelouin/midi-hub/internal/mididrv"
	"github.com/rbelouin/midi-hub/internal/observability"
)

const (
	DefaultPollInterval = 10 * time.Millisecond
	DefaultBatchSize    = 1024
)

type Mode string

const (
	ModeEcho      Mode = "echo"
	ModeTranslate Mode = "translate"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeEcho, ModeTranslate:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown bridge mode %q", s)
	}
}

// CommandSink receives translated commands. Send must not block; the poll
// loop calls it inline.
type CommandSink interface {
	Send(cmd command.Command)
}

// EventTranslator turns one MIDI event into a command, or reports that the
// event carries no meaning.
type EventTranslator interface {
	Translate(ev mididrv.Event) (command.Command, bool)
}

// Bridge drains every open input on a fixed cadence and either echoes the
// batches to all outputs or translates them into commands. The zero value
// of Interval and Batch select the defaults.
type Bridge struct {
	Registry   *Registry
	Mode       Mode
	Interval   time.Duration
	Batch      int
	Translator EventTranslator
	Sink       CommandSink
}

// Run polls until the stop flag is set. The flag is only checked between
// ticks, so a tick in progress always completes. One final drain clears
// whatever arrived since the previous tick: echo mode still forwards it,
// translate mode reads and discards, since no command may run once the
// flag has been observed.
func (b *Bridge) Run(stop *atomic.Bool) {
	interval := b.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	batch := b.Batch
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for !stop.Load() {
		<-ticker.C
		b.drain(batch, false)
	}
	b.drain(batch, true)
}

func (b *Bridge) drain(batch int, final bool) {
	outputs := b.Registry.Outputs()
	for _, in := range b.Registry.Inputs() {
		events, err := in.Stream.Read(batch)
		if err != nil {
			observability.ReadErrors.Inc()
			slog.Error("device read failed", "name", in.Port.Name, "error", err)
			continue
		}
		if len(events) == 0 {
			continue
		}
		if b.Mode == ModeTranslate {
			if final {
				slog.Debug("discarding events read after stop", "name", in.Port.Name, "count", len(events))
				continue
			}
			b.translate(events)
		} else {
			b.echo(events, outputs)
		}
	}
}

func (b *Bridge) echo(events []mididrv.Event, outputs []Output) {
	for _, out := range outputs {
		if err := out.Stream.Write(events); err != nil {
			slog.Error("device write failed", "name", out.Port.Name, "error", err)
			continue
		}
		observability.EventsForwarded.Add(float64(len(events)))
	}
}

func (b *Bridge) translate(events []mididrv.Event) {
	for _, ev := range events {
		cmd, ok := b.Translator.Translate(ev)
		if !ok {
			continue
		}
		observability.CommandsTranslated.Inc()
		slog.Debug("translated pad press", "command", cmd.Tag())
		b.Sink.Send(cmd)
	}
}
