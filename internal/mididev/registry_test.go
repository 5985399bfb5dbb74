package mididev

import (
	"errors"
	"testing"

	"github.com/rbelouin/midi-hub/internal/mididrv"
)

func TestRegistryEnumeratesBothDirections(t *testing.T) {
	drv := mididrv.NewMemory()
	drv.AddPort("Launchpad Pro", true, true)
	drv.AddPort("Keystation", true, false)

	reg := NewRegistry(drv, 1024)
	ports := reg.Ports()

	if len(ports) != 3 {
		t.Fatalf("unexpected port count: got %d want %d", len(ports), 3)
	}
	if ports[0].Direction != DirectionInput || ports[1].Direction != DirectionOutput {
		t.Fatalf("dual port not split by direction: %+v", ports[:2])
	}
	if ports[0].Index != ports[1].Index {
		t.Fatalf("dual port entries should share an index: %+v", ports[:2])
	}
	if ports[2].Name != "Keystation" || ports[2].Direction != DirectionInput {
		t.Fatalf("unexpected third port: %+v", ports[2])
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	drv := mididrv.NewMemory()
	drv.AddPort("pad", true, false)

	reg := NewRegistry(drv, 1024)
	p := reg.Ports()[0]

	if err := reg.Open(p); err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := reg.Open(p); err != nil {
		t.Fatalf("second open: %v", err)
	}
	if got := len(reg.Inputs()); got != 1 {
		t.Fatalf("unexpected input count: got %d want %d", got, 1)
	}
}

type failingOpenDriver struct {
	*mididrv.Memory
	failIndex int
}

func (d *failingOpenDriver) OpenInput(index int, bufferSize int64) (mididrv.InputStream, error) {
	if index == d.failIndex {
		return nil, errors.New("host error")
	}
	return d.Memory.OpenInput(index, bufferSize)
}

func TestOpenAllSkipsFailingPorts(t *testing.T) {
	mem := mididrv.NewMemory()
	mem.AddPort("broken", true, false)
	mem.AddPort("pad", true, true)
	drv := &failingOpenDriver{Memory: mem, failIndex: 0}

	reg := NewRegistry(drv, 1024)
	inputs, outputs := reg.OpenAll()

	if inputs != 1 || outputs != 1 {
		t.Fatalf("unexpected open counts: got %d/%d want 1/1", inputs, outputs)
	}
}

func TestOpenFailureIsDeviceUnavailable(t *testing.T) {
	mem := mididrv.NewMemory()
	mem.AddPort("broken", true, false)
	drv := &failingOpenDriver{Memory: mem, failIndex: 0}

	reg := NewRegistry(drv, 1024)
	err := reg.Open(reg.Ports()[0])
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
}

func TestCloseAllReleasesEverythingOnce(t *testing.T) {
	drv := mididrv.NewMemory()
	a := drv.AddPort("a", true, false)
	drv.AddPort("b", false, true)
	drv.FailClose(a, errors.New("already invalid"))

	reg := NewRegistry(drv, 1024)
	reg.OpenAll()
	inputs := reg.Inputs()
	outputs := reg.Outputs()

	reg.CloseAll()

	// The failing close must not have stopped the other stream's release.
	if _, err := inputs[0].Stream.Read(1); !errors.Is(err, mididrv.ErrStreamClosed) {
		t.Fatalf("input not closed: %v", err)
	}
	if err := outputs[0].Stream.Write(nil); !errors.Is(err, mididrv.ErrStreamClosed) {
		t.Fatalf("output not closed: %v", err)
	}

	// Second call is a no-op.
	reg.CloseAll()

	if err := reg.Open(Port{Index: a, Name: "a", Direction: DirectionInput}); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("open after close should fail: %v", err)
	}
}
