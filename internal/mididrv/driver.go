// Package mididrv abstracts the native MIDI layer behind a small driver
// interface so the registry and bridge can run against real hardware
// (portmidi) or an in-process port table.
package mididrv

import "errors"

var (
	ErrUnknownPort  = errors.New("mididrv: unknown port index")
	ErrStreamClosed = errors.New("mididrv: stream is closed")
)

// Event is a single MIDI message. Status carries the full status byte
// (message kind in the high nibble, channel in the low one).
type Event struct {
	Timestamp int64
	Status    int64
	Data1     int64
	Data2     int64
}

// PortInfo describes one entry of the driver's device table.
type PortInfo struct {
	Name   string
	Input  bool
	Output bool
}

type InputStream interface {
	// Read returns at most max buffered events. A read error leaves the
	// stream open; callers decide whether to keep polling.
	Read(max int) ([]Event, error)
	Close() error
}

type OutputStream interface {
	Write(events []Event) error
	Close() error
}

// Driver mirrors the portmidi surface the daemon needs. Implementations
// must tolerate Close being called on already-closed streams.
type Driver interface {
	CountDevices() int
	DeviceInfo(index int) (PortInfo, error)
	OpenInput(index int, bufferSize int64) (InputStream, error)
	OpenOutput(index int, bufferSize int64, latency int64) (OutputStream, error)
	Terminate() error
}
