package mididrv

import (
	"fmt"
	"sync"
)

// Memory is a driver with an in-process port table. It backs the package
// tests and lets the daemon run on machines without a native MIDI stack.
type Memory struct {
	mu    sync.Mutex
	ports []*memoryPort
}

type memoryPort struct {
	info     PortInfo
	pending  []Event
	written  []Event
	readErr  error
	closeErr error
}

func NewMemory() *Memory { return &Memory{} }

// AddPort appends a port to the table and returns its index.
func (m *Memory) AddPort(name string, input, output bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ports = append(m.ports, &memoryPort{info: PortInfo{Name: name, Input: input, Output: output}})
	return len(m.ports) - 1
}

// Feed queues events to be returned by subsequent reads on the port.
func (m *Memory) Feed(index int, events ...Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ports[index].pending = append(m.ports[index].pending, events...)
}

// Written returns a copy of everything written to the port so far.
func (m *Memory) Written(index int) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.ports[index].written))
	copy(out, m.ports[index].written)
	return out
}

// FailNextRead makes the port's next read return err, once.
func (m *Memory) FailNextRead(index int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ports[index].readErr = err
}

// FailClose makes stream closes on the port return err.
func (m *Memory) FailClose(index int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ports[index].closeErr = err
}

func (m *Memory) CountDevices() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ports)
}

func (m *Memory) DeviceInfo(index int) (PortInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.ports) {
		return PortInfo{}, fmt.Errorf("%w: %d", ErrUnknownPort, index)
	}
	return m.ports[index].info, nil
}

func (m *Memory) OpenInput(index int, _ int64) (InputStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.ports) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPort, index)
	}
	if !m.ports[index].info.Input {
		return nil, fmt.Errorf("port %d is not an input", index)
	}
	return &memStream{m: m, index: index}, nil
}

func (m *Memory) OpenOutput(index int, _, _ int64) (OutputStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.ports) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPort, index)
	}
	if !m.ports[index].info.Output {
		return nil, fmt.Errorf("port %d is not an output", index)
	}
	return &memStream{m: m, index: index}, nil
}

func (m *Memory) Terminate() error { return nil }

type memStream struct {
	m      *Memory
	index  int
	closed bool
}

func (s *memStream) Read(max int) ([]Event, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.closed {
		return nil, ErrStreamClosed
	}
	p := s.m.ports[s.index]
	if p.readErr != nil {
		err := p.readErr
		p.readErr = nil
		return nil, err
	}
	n := min(max, len(p.pending))
	out := make([]Event, n)
	copy(out, p.pending[:n])
	p.pending = p.pending[n:]
	return out, nil
}

func (s *memStream) Write(events []Event) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	p := s.m.ports[s.index]
	p.written = append(p.written, events...)
	return nil
}

func (s *memStream) Close() error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.m.ports[s.index].closeErr
}
