package midi

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/leandrodaf/midiscan/internal/midi/midiclient"
	"github.com/leandrodaf/midiscan/internal/midi/mididarwin"
	"github.com/leandrodaf/midiscan/internal/midi/midirtmidi"
	"github.com/leandrodaf/midiscan/internal/midi/midiwindows"
	"github.com/leandrodaf/midiscan/sdk/contracts"
)

// ErrUnsupportedOS is returned when the operating system is not supported by the MIDI client.
var ErrUnsupportedOS = errors.New("unsupported operating system")

// transportInitializers maps OS names to corresponding MIDI transport initializers.
var transportInitializers = map[string]func(*contracts.ClientOptions) (contracts.Transport, error){
	"darwin":  mididarwin.NewTransport,  // macOS (CoreMIDI) transport initializer.
	"windows": midiwindows.NewTransport, // Windows (winmm) transport initializer.
	"linux":   midirtmidi.NewTransport,  // Linux (RtMidi over ALSA) transport initializer.
}

// NewTransport initializes the MIDI transport for the current operating system.
// It supports macOS (Darwin), Windows and Linux, returning ErrUnsupportedOS otherwise.
func NewTransport(opts *contracts.ClientOptions) (contracts.Transport, error) {
	return newTransportFor(runtime.GOOS, opts)
}

func newTransportFor(goos string, opts *contracts.ClientOptions) (contracts.Transport, error) {
	if initializer, exists := transportInitializers[goos]; exists {
		return initializer(opts)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedOS, goos)
}

// NewClient initializes a MIDI client on opts.Transport, or on the platform
// transport when none is set.
//
// opts *contracts.ClientOptions: Configuration options for the MIDI client.
//
// Returns:
//   - contracts.ClientMIDI: An instance of the MIDI client.
//   - error: An error if the operating system is unsupported or if initialization fails.
func NewClient(opts *contracts.ClientOptions) (contracts.ClientMIDI, error) {
	transport := opts.Transport
	if transport == nil {
		var err error
		if transport, err = NewTransport(opts); err != nil {
			return nil, err
		}
	}
	return midiclient.New(transport, opts), nil
}
