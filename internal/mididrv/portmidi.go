package mididrv

import (
	"fmt"

	"github.com/rakyll/portmidi"
)

// Portmidi drives real hardware through libportmidi.
type Portmidi struct{}

// NewPortmidi initializes the native library. Failure here is not
// recoverable; the caller is expected to exit.
func NewPortmidi() (*Portmidi, error) {
	if err := portmidi.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portmidi: %w", err)
	}
	return &Portmidi{}, nil
}

func (*Portmidi) CountDevices() int { return portmidi.CountDevices() }

func (*Portmidi) DeviceInfo(index int) (PortInfo, error) {
	info := portmidi.Info(portmidi.DeviceID(index))
	if info == nil {
		return PortInfo{}, fmt.Errorf("%w: %d", ErrUnknownPort, index)
	}
	return PortInfo{
		Name:   info.Name,
		Input:  info.IsInputAvailable,
		Output: info.IsOutputAvailable,
	}, nil
}

func (*Portmidi) OpenInput(index int, bufferSize int64) (InputStream, error) {
	s, err := portmidi.NewInputStream(portmidi.DeviceID(index), bufferSize)
	if err != nil {
		return nil, fmt.Errorf("opening input %d: %w", index, err)
	}
	return &pmStream{s: s}, nil
}

func (*Portmidi) OpenOutput(index int, bufferSize int64, latency int64) (OutputStream, error) {
	s, err := portmidi.NewOutputStream(portmidi.DeviceID(index), bufferSize, latency)
	if err != nil {
		return nil, fmt.Errorf("opening output %d: %w", index, err)
	}
	return &pmStream{s: s}, nil
}

func (*Portmidi) Terminate() error { return portmidi.Terminate() }

type pmStream struct {
	s      *portmidi.Stream
	closed bool
}

func (p *pmStream) Read(max int) ([]Event, error) {
	if p.closed {
		return nil, ErrStreamClosed
	}
	raw, err := p.s.Read(max)
	if err != nil {
		return nil, err
	}
	events := make([]Event, len(raw))
	for i, ev := range raw {
		events[i] = Event{
			Timestamp: int64(ev.Timestamp),
			Status:    ev.Status,
			Data1:     ev.Data1,
			Data2:     ev.Data2,
		}
	}
	return events, nil
}

func (p *pmStream) Write(events []Event) error {
	if p.closed {
		return ErrStreamClosed
	}
	raw := make([]portmidi.Event, len(events))
	for i, ev := range events {
		raw[i] = portmidi.Event{
			Timestamp: portmidi.Timestamp(ev.Timestamp),
			Status:    ev.Status,
			Data1:     ev.Data1,
			Data2:     ev.Data2,
		}
	}
	return p.s.Write(raw)
}

func (p *pmStream) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return p.s.Close()
}
