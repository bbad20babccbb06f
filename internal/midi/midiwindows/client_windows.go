//go:build windows
// +build windows

package midiwindows

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/leandrodaf/midiscan/internal/decoder"
	"github.com/leandrodaf/midiscan/sdk/contracts"
	"go.uber.org/multierr"
	"golang.org/x/sys/windows"
)

// Type definitions for MIDI handles
type HMIDIIN windows.Handle

// Constants for callback flags
const (
	CALLBACK_FUNCTION = 0x00030000 // Indicates that the callback is a function
	MIDI_IO_STATUS    = 0x00000020 // MIDI input/output status
)

// Constants for MIDI message types
const (
	MIM_OPEN      = 0x3C1 // MIDI device opened
	MIM_CLOSE     = 0x3C2 // MIDI device closed
	MIM_DATA      = 0x3C3 // MIDI data received
	MIM_ERROR     = 0x3C5 // MIDI error
	MIM_LONGERROR = 0x3C6 // Long MIDI error
	MIM_MOREDATA  = 0x3CC // More MIDI data available
)

// Error definitions for winmm failures.
var (
	ErrInvalidMIDIDevice   = errors.New("invalid MIDI device")
	ErrMIDIConnectionError = errors.New("error opening MIDI device")
	ErrStartCapture        = errors.New("error starting MIDI input")
)

// Struct representing MIDI device capabilities
type midiInCaps struct {
	wMid           uint16
	wPid           uint16
	vDriverVersion uint32
	szPname        [32]uint16
	dwSupport      uint32
}

// Load the winmm.dll library and required functions
var (
	winmm                = windows.NewLazySystemDLL("winmm.dll")
	procMidiInGetNumDevs = winmm.NewProc("midiInGetNumDevs")
	procMidiInGetDevCaps = winmm.NewProc("midiInGetDevCapsW")
	procMidiInOpen       = winmm.NewProc("midiInOpen")
	procMidiInStart      = winmm.NewProc("midiInStart")
	procMidiInStop       = winmm.NewProc("midiInStop")
	procMidiInReset      = winmm.NewProc("midiInReset")
	procMidiInClose      = winmm.NewProc("midiInClose")
)

// windows.NewCallback slots are never released, so one callback serves every
// port and dispatches on the instance value registered at open time.
var (
	callbackOnce sync.Once
	callbackPtr  uintptr
	ports        sync.Map // uintptr -> *inputPort
	nextInstance atomic.Uintptr
)

func sharedCallback() uintptr {
	callbackOnce.Do(func() {
		callbackPtr = windows.NewCallback(midiInCallback)
	})
	return callbackPtr
}

// Transport discovers and opens winmm input devices.
type Transport struct {
	logger contracts.Logger
}

// NewTransport creates a MIDI transport for Windows
func NewTransport(options *contracts.ClientOptions) (contracts.Transport, error) {
	options.Logger.Info("MIDI transport created for Windows")
	return &Transport{logger: options.Logger}, nil
}

type deviceEntry struct {
	index uint32
	ref   contracts.DeviceRef
}

// devices lists winmm input devices. IDs embed the device index, which winmm
// keeps stable until a device is plugged or unplugged.
func (t *Transport) devices() []deviceEntry {
	r0, _, _ := procMidiInGetNumDevs.Call()
	numDevices := uint32(r0)

	out := make([]deviceEntry, 0, numDevices)
	for i := uint32(0); i < numDevices; i++ {
		var caps midiInCaps
		r1, _, _ := procMidiInGetDevCaps.Call(
			uintptr(i),
			uintptr(unsafe.Pointer(&caps)),
			unsafe.Sizeof(caps),
		)
		if r1 != 0 {
			t.logger.Warn("Failed to get information for MIDI device", t.logger.Field().Int("index", int(i)))
			continue
		}
		name := windows.UTF16ToString(caps.szPname[:])
		out = append(out, deviceEntry{
			index: i,
			ref: contracts.DeviceRef{
				ID:           fmt.Sprintf("winmm:%d:%s", i, name),
				Name:         name,
				Manufacturer: fmt.Sprintf("MID: %d PID: %d", caps.wMid, caps.wPid),
			},
		})
	}
	return out
}

// Watch reports every input device followed by EnumerationCompleted.
func (t *Transport) Watch(ctx context.Context) (<-chan contracts.DiscoveryEvent, error) {
	entries := t.devices()

	events := make(chan contracts.DiscoveryEvent)
	go func() {
		defer close(events)
		for _, e := range entries {
			select {
			case events <- contracts.DiscoveryEvent{Type: contracts.DeviceAdded, Device: e.ref}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case events <- contracts.DiscoveryEvent{Type: contracts.EnumerationCompleted}:
		case <-ctx.Done():
		}
	}()
	return events, nil
}

// Open opens the device named by deviceID. Input does not flow until Subscribe.
func (t *Transport) Open(ctx context.Context, deviceID string) (contracts.InputPort, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entry *deviceEntry
	for _, e := range t.devices() {
		if e.ref.ID == deviceID {
			e := e
			entry = &e
			break
		}
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMIDIDevice, deviceID)
	}

	port := &inputPort{id: deviceID, logger: t.logger, instance: nextInstance.Add(1)}
	ports.Store(port.instance, port)

	fdwOpen := CALLBACK_FUNCTION | MIDI_IO_STATUS
	r1, _, err := procMidiInOpen.Call(
		uintptr(unsafe.Pointer(&port.handle)),
		uintptr(entry.index),
		sharedCallback(),
		port.instance,
		uintptr(fdwOpen),
	)
	if r1 != 0 {
		ports.Delete(port.instance)
		return nil, fmt.Errorf("%w: %s: %v", ErrMIDIConnectionError, deviceID, err)
	}

	if err := ctx.Err(); err != nil {
		_ = port.Close()
		return nil, err
	}
	return port, nil
}

// Close releases nothing; winmm has no client object.
func (t *Transport) Close() error {
	return nil
}

// inputPort is one opened winmm input device.
type inputPort struct {
	id       string
	logger   contracts.Logger
	instance uintptr
	handle   HMIDIIN
	handler  atomic.Value // Holds func(contracts.RawMessage).

	mu      sync.Mutex
	started bool
	closed  bool
}

func (p *inputPort) DeviceID() string { return p.id }

// Subscribe installs fn and starts input.
func (p *inputPort) Subscribe(fn func(contracts.RawMessage)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.handler.Store(fn)
	if p.started {
		return nil
	}
	r1, _, err := procMidiInStart.Call(uintptr(p.handle))
	if r1 != 0 {
		return fmt.Errorf("%w: %v", ErrStartCapture, err)
	}
	p.started = true
	return nil
}

// Close stops input and closes the device handle.
func (p *inputPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.handler.Store(func(contracts.RawMessage) {})

	var errs error
	if p.started {
		if r1, _, err := procMidiInStop.Call(uintptr(p.handle)); r1 != 0 {
			errs = multierr.Append(errs, fmt.Errorf("midiInStop: %v", err))
		}
	}
	_, _, _ = procMidiInReset.Call(uintptr(p.handle))
	if r1, _, err := procMidiInClose.Call(uintptr(p.handle)); r1 != 0 {
		errs = multierr.Append(errs, fmt.Errorf("midiInClose: %v", err))
	}
	ports.Delete(p.instance)
	p.handle = 0
	return errs
}

// midiInCallback processes incoming MIDI messages for every open port.
func midiInCallback(hMidiIn uintptr, wMsg uint32, dwInstance uintptr, dwParam1 uintptr, dwParam2 uintptr) uintptr {
	v, ok := ports.Load(dwInstance)
	if !ok {
		return 0
	}
	p := v.(*inputPort)

	switch wMsg {
	case MIM_OPEN:
		p.logger.Debug("MIDI device opened", p.logger.Field().String("device", p.id))
	case MIM_CLOSE:
		p.logger.Debug("MIDI device closed", p.logger.Field().String("device", p.id))
	case MIM_DATA:
		status := byte(dwParam1 & 0xFF)
		data1 := byte((dwParam1 >> 8) & 0xFF)
		data2 := byte((dwParam1 >> 16) & 0xFF)

		fn, _ := p.handler.Load().(func(contracts.RawMessage))
		if fn == nil {
			return 0
		}
		fn(decoder.Classify([]byte{status, data1, data2}, uint64(time.Now().UTC().UnixNano())))
	case MIM_ERROR, MIM_LONGERROR:
		p.logger.Error("MIDI error", p.logger.Field().String("device", p.id), p.logger.Field().Int("msg", int(wMsg)))
	case MIM_MOREDATA:
		p.logger.Debug("Received MIM_MOREDATA message; ignored")
	default:
		p.logger.Warn("Unknown MIDI message", p.logger.Field().Int("msg", int(wMsg)))
	}

	return 0
}
