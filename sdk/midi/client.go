// Package midi is the entry point for building a midiscan client.
package midi

import (
	"github.com/leandrodaf/midiscan/sdk/contracts"
)

// NewMIDIClient applies opts over the defaults and returns a client on the
// platform transport, or on the transport given with contracts.WithTransport.
//
// The returned client has not discovered or connected anything yet; call
// ListDevices and then ConnectAll.
func NewMIDIClient(opts ...contracts.Option) (contracts.ClientMIDI, error) {
	options, err := applyDefaultOptions(opts...)
	if err != nil {
		return nil, err
	}
	return NewClient(&options)
}
