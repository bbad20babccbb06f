//go:build !darwin
// +build !darwin

package mididarwin

import (
	"context"
	"errors"

	"github.com/leandrodaf/midiscan/sdk/contracts"
)

var errUnavailable = errors.New("CoreMIDI is not available on this platform")

type dummyTransport struct {
	logger contracts.Logger
}

// NewTransport returns a transport that fails every operation on non-macOS systems.
func NewTransport(options *contracts.ClientOptions) (contracts.Transport, error) {
	options.Logger.Info("Using dummy CoreMIDI transport for non-macOS system")
	return &dummyTransport{logger: options.Logger}, nil
}

func (d *dummyTransport) Watch(context.Context) (<-chan contracts.DiscoveryEvent, error) {
	d.logger.Warn("Watch called on dummy CoreMIDI transport")
	return nil, errUnavailable
}

func (d *dummyTransport) Open(context.Context, string) (contracts.InputPort, error) {
	d.logger.Warn("Open called on dummy CoreMIDI transport")
	return nil, errUnavailable
}

func (d *dummyTransport) Close() error {
	return nil
}
