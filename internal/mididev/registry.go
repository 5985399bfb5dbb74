// Package mididev owns the device side of the hub: port enumeration and
// lifecycle, the polling bridge that drains inputs, and the translator that
// turns pad presses into playback commands.
package mididev

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rbelouin/midi-hub/internal/mididrv"
)

// ErrDeviceUnavailable marks ports that cannot be opened, read, or written.
// It is never fatal; callers log and keep going with the remaining ports.
var ErrDeviceUnavailable = errors.New("mididev: device unavailable")

type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// Port is one enumerated MIDI endpoint. A device capable of both directions
// appears twice, once per direction, under the same index.
type Port struct {
	Index     int
	Name      string
	Direction Direction
}

// Input pairs an opened input stream with the port it came from so read
// failures can be attributed in logs.
type Input struct {
	Port   Port
	Stream mididrv.InputStream
}

type Output struct {
	Port   Port
	Stream mididrv.OutputStream
}

// Registry samples the driver's device table once and tracks every stream it
// opens so they can all be released on shutdown.
type Registry struct {
	drv        mididrv.Driver
	bufferSize int64

	mu      sync.Mutex
	ports   []Port
	inputs  map[int]mididrv.InputStream
	outputs map[int]mididrv.OutputStream
	closed  bool
}

// NewRegistry enumerates the driver's ports. The device set is a snapshot;
// devices plugged in later are picked up on the next daemon start.
func NewRegistry(drv mididrv.Driver, bufferSize int64) *Registry {
	r := &Registry{
		drv:        drv,
		bufferSize: bufferSize,
		inputs:     map[int]mididrv.InputStream{},
		outputs:    map[int]mididrv.OutputStream{},
	}
	for i := 0; i < drv.CountDevices(); i++ {
		info, err := drv.DeviceInfo(i)
		if err != nil {
			slog.Warn("skipping device", "index", i, "error", err)
			continue
		}
		if info.Input {
			r.ports = append(r.ports, Port{Index: i, Name: info.Name, Direction: DirectionInput})
		}
		if info.Output {
			r.ports = append(r.ports, Port{Index: i, Name: info.Name, Direction: DirectionOutput})
		}
	}
	return r
}

// Ports returns the enumeration snapshot.
func (r *Registry) Ports() []Port {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Port, len(r.ports))
	copy(out, r.ports)
	return out
}

// Open opens the port's stream. Opening an already-open port is a no-op; the
// existing stream stays valid.
func (r *Registry) Open(p Port) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("%w: registry closed", ErrDeviceUnavailable)
	}

	switch p.Direction {
	case DirectionInput:
		if _, ok := r.inputs[p.Index]; ok {
			return nil
		}
		s, err := r.drv.OpenInput(p.Index, r.bufferSize)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrDeviceUnavailable, p.Name, err)
		}
		r.inputs[p.Index] = s
		slog.Info("found input", "name", p.Name, "index", p.Index)
	case DirectionOutput:
		if _, ok := r.outputs[p.Index]; ok {
			return nil
		}
		s, err := r.drv.OpenOutput(p.Index, r.bufferSize, 0)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrDeviceUnavailable, p.Name, err)
		}
		r.outputs[p.Index] = s
		slog.Info("found output", "name", p.Name, "index", p.Index)
	default:
		return fmt.Errorf("%w: unknown direction %q", ErrDeviceUnavailable, p.Direction)
	}
	return nil
}

// OpenAll opens every enumerated port, logging and skipping the ones that
// fail. It returns how many inputs and outputs ended up open.
func (r *Registry) OpenAll() (inputs, outputs int) {
	for _, p := range r.Ports() {
		if err := r.Open(p); err != nil {
			slog.Error("cannot open port", "name", p.Name, "direction", p.Direction, "error", err)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inputs), len(r.outputs)
}

// Inputs returns the open input streams with their ports.
func (r *Registry) Inputs() []Input {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Input
	for _, p := range r.ports {
		if p.Direction != DirectionInput {
			continue
		}
		if s, ok := r.inputs[p.Index]; ok {
			out = append(out, Input{Port: p, Stream: s})
		}
	}
	return out
}

// Outputs returns the open output streams with their ports.
func (r *Registry) Outputs() []Output {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Output
	for _, p := range r.ports {
		if p.Direction != DirectionOutput {
			continue
		}
		if s, ok := r.outputs[p.Index]; ok {
			out = append(out, Output{Port: p, Stream: s})
		}
	}
	return out
}

// CloseAll releases every open stream exactly once. Close errors are logged
// and do not stop the remaining streams from being released. Calling it
// again is a no-op.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true

	for idx, s := range r.inputs {
		if err := s.Close(); err != nil {
			slog.Warn("closing input failed", "index", idx, "error", err)
		}
	}
	for idx, s := range r.outputs {
		if err := s.Close(); err != nil {
			slog.Warn("closing output failed", "index", idx, "error", err)
		}
	}
	r.inputs = map[int]mididrv.InputStream{}
	r.outputs = map[int]mididrv.OutputStream{}
}
