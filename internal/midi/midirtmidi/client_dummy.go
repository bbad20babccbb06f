//go:build !linux || !cgo
// +build !linux !cgo

// Package midirtmidi provides a transport over RtMidi (ALSA on Linux).
package midirtmidi

import (
	"context"
	"errors"

	"github.com/leandrodaf/midiscan/sdk/contracts"
)

var errUnavailable = errors.New("RtMidi transport requires linux with cgo enabled")

type dummyTransport struct {
	logger contracts.Logger
}

// NewTransport returns a transport that fails every operation when RtMidi is not compiled in.
func NewTransport(options *contracts.ClientOptions) (contracts.Transport, error) {
	options.Logger.Info("Using dummy RtMidi transport")
	return &dummyTransport{logger: options.Logger}, nil
}

func (d *dummyTransport) Watch(context.Context) (<-chan contracts.DiscoveryEvent, error) {
	d.logger.Warn("Watch called on dummy RtMidi transport")
	return nil, errUnavailable
}

func (d *dummyTransport) Open(context.Context, string) (contracts.InputPort, error) {
	d.logger.Warn("Open called on dummy RtMidi transport")
	return nil, errUnavailable
}

func (d *dummyTransport) Close() error {
	return nil
}
