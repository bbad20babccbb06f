//go:build !windows
// +build !windows

package midiwindows

import (
	"context"
	"errors"

	"github.com/leandrodaf/midiscan/sdk/contracts"
)

var errUnavailable = errors.New("winmm MIDI is not available on this platform")

type dummyTransport struct {
	logger contracts.Logger
}

// NewTransport initializes a dummy transport for non-Windows systems.
func NewTransport(options *contracts.ClientOptions) (contracts.Transport, error) {
	options.Logger.Info("Using dummy winmm transport for non-Windows system")
	return &dummyTransport{logger: options.Logger}, nil
}

// Watch logs a warning and reports that winmm is unavailable.
func (d *dummyTransport) Watch(context.Context) (<-chan contracts.DiscoveryEvent, error) {
	d.logger.Warn("Watch called on dummy winmm transport")
	return nil, errUnavailable
}

// Open logs a warning and reports that winmm is unavailable.
func (d *dummyTransport) Open(context.Context, string) (contracts.InputPort, error) {
	d.logger.Warn("Open called on dummy winmm transport")
	return nil, errUnavailable
}

// Close is a no-op.
func (d *dummyTransport) Close() error {
	return nil
}
