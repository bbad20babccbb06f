package contracts

import "context"

// MessageKind classifies a raw MIDI message.
type MessageKind byte

const (
	// KindOther is any message this module does not decode.
	KindOther MessageKind = iota
	// KindNoteOn is a Note On channel message (status 0x9n).
	KindNoteOn
	// KindControlChange is a Control Change channel message (status 0xBn).
	KindControlChange
)

// String returns a human-readable kind name.
func (k MessageKind) String() string {
	switch k {
	case KindNoteOn:
		return "note_on"
	case KindControlChange:
		return "control_change"
	default:
		return "other"
	}
}

// ParseMessageKind maps "note_on" or "control_change" to its MessageKind.
func ParseMessageKind(name string) (MessageKind, bool) {
	switch name {
	case "note_on":
		return KindNoteOn, true
	case "control_change":
		return KindControlChange, true
	}
	return KindOther, false
}

// RawMessage is a message as delivered by a transport.
type RawMessage struct {
	Kind      MessageKind // Classified from the status byte.
	Data      []byte      // Full message including the status byte.
	Timestamp uint64      // Arrival time in nanoseconds since the Unix epoch.
}

// DecodedEvent is either a NoteOn or a ControlChange.
type DecodedEvent interface {
	Kind() MessageKind
	isDecodedEvent()
}

// NoteOn is a key or pad press.
type NoteOn struct {
	Note     byte // MIDI note number (0-127).
	Velocity byte // Strike intensity (0-127).
}

// Kind implements DecodedEvent.
func (NoteOn) Kind() MessageKind { return KindNoteOn }

func (NoteOn) isDecodedEvent() {}

// ControlChange is a fader, knob or pedal movement.
type ControlChange struct {
	Controller byte // Controller number.
	Value      byte // Controller value (0-127).
}

// Kind implements DecodedEvent.
func (ControlChange) Kind() MessageKind { return KindControlChange }

func (ControlChange) isDecodedEvent() {}

// EventHandler receives decoded events together with the device they came from.
// It runs on the transport's delivery goroutine and should return quickly.
type EventHandler func(deviceID string, event DecodedEvent)

// MIDI is a decoded event as delivered on a capture channel.
type MIDI struct {
	DeviceID  string       // Device the event came from.
	Timestamp uint64       // Arrival time in nanoseconds since the Unix epoch.
	Event     DecodedEvent // NoteOn or ControlChange.
}

// ClientMIDI defines an interface for MIDI client operations.
type ClientMIDI interface {
	Stop() error                                               // Disconnects every device and releases the backend.
	ListDevices(ctx context.Context) ([]DeviceRef, error)      // Runs one discovery pass until enumeration completes.
	Connect(ctx context.Context, deviceID string) error        // Connects one device under the retry policy.
	ConnectAll(ctx context.Context, devices []DeviceRef) error // Connects devices one at a time.
	DisconnectAll() error                                      // Unsubscribes every live connection.
	Connected() []string                                       // Lists connected device IDs.
	StartCapture(eventChannel chan MIDI)                       // Sends decoded events to the specified channel.
}
