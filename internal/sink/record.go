package sink

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/leandrodaf/midiscan/internal/config"
	"github.com/leandrodaf/midiscan/sdk/contracts"
)

// Record is the wire form of one decoded event. CBOR uses integer keys.
type Record struct {
	DeviceID   string `json:"device_id" cbor:"1,keyasint"`
	Kind       string `json:"kind" cbor:"2,keyasint"`
	Timestamp  uint64 `json:"timestamp" cbor:"3,keyasint"`
	Note       *byte  `json:"note,omitempty" cbor:"4,keyasint,omitempty"`
	Velocity   *byte  `json:"velocity,omitempty" cbor:"5,keyasint,omitempty"`
	Controller *byte  `json:"controller,omitempty" cbor:"6,keyasint,omitempty"`
	Value      *byte  `json:"value,omitempty" cbor:"7,keyasint,omitempty"`
}

// NewRecord flattens ev into a Record.
func NewRecord(deviceID string, ev contracts.DecodedEvent, timestamp uint64) Record {
	rec := Record{DeviceID: deviceID, Kind: ev.Kind().String(), Timestamp: timestamp}
	switch e := ev.(type) {
	case contracts.NoteOn:
		rec.Note, rec.Velocity = &e.Note, &e.Velocity
	case contracts.ControlChange:
		rec.Controller, rec.Value = &e.Controller, &e.Value
	}
	return rec
}

var recordEncMode cbor.EncMode

func init() {
	var err error
	encOpts := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
	}
	recordEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create record CBOR encoder mode: %v", err))
	}
}

// Encode serialises rec as JSON or CBOR.
func Encode(format string, rec Record) ([]byte, error) {
	switch format {
	case config.FormatJSON, "":
		return json.Marshal(rec)
	case config.FormatCBOR:
		return recordEncMode.Marshal(rec)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}
