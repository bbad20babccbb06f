// Package decoder turns raw MIDI messages into decoded events.
package decoder

import "github.com/leandrodaf/midiscan/sdk/contracts"

const (
	statusMask          = 0xF0
	statusNoteOn        = 0x90
	statusControlChange = 0xB0
	statusSystem        = 0xF0

	minChannelMessageLen = 3
)

// KindOf classifies a status byte. System messages and anything that is not
// Note On or Control Change map to KindOther. A Note On with zero velocity is
// still a Note On.
func KindOf(status byte) contracts.MessageKind {
	if status >= statusSystem {
		return contracts.KindOther
	}
	switch status & statusMask {
	case statusNoteOn:
		return contracts.KindNoteOn
	case statusControlChange:
		return contracts.KindControlChange
	default:
		return contracts.KindOther
	}
}

// Classify builds a RawMessage from the bytes a transport received.
func Classify(data []byte, timestamp uint64) contracts.RawMessage {
	kind := contracts.KindOther
	if len(data) > 0 {
		kind = KindOf(data[0])
	}
	return contracts.RawMessage{Kind: kind, Data: data, Timestamp: timestamp}
}

// Decode maps a tagged payload to an event. The payload includes the status
// byte, so data bytes start at index 1. The second return value is false when
// the message is ignored: unknown kinds and payloads too short for their kind
// are dropped without error.
func Decode(kind contracts.MessageKind, payload []byte) (contracts.DecodedEvent, bool) {
	if len(payload) < minChannelMessageLen {
		return nil, false
	}

	switch kind {
	case contracts.KindNoteOn:
		return contracts.NoteOn{Note: payload[1], Velocity: payload[2]}, true
	case contracts.KindControlChange:
		return contracts.ControlChange{Controller: payload[1], Value: payload[2]}, true
	default:
		return nil, false
	}
}
