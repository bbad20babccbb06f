package contracts

import "context"

// DeviceRef identifies a discovered MIDI input device.
// ID is stable for the lifetime of a discovery session and is the uniqueness key.
type DeviceRef struct {
	ID           string // Stable device identifier.
	Name         string // Display name.
	Manufacturer string // Device manufacturer, when the platform reports one.
}

// DiscoveryEventType distinguishes the events emitted by a Watcher.
type DiscoveryEventType int

const (
	// DeviceAdded reports a device seen by the platform enumerator.
	DeviceAdded DiscoveryEventType = iota
	// EnumerationCompleted reports that the initial enumeration pass finished.
	EnumerationCompleted
)

// DiscoveryEvent is a single notification from a Watcher.
type DiscoveryEvent struct {
	Type   DiscoveryEventType
	Device DeviceRef // Set for DeviceAdded.
}

// Watcher enumerates input devices on the platform.
//
// Watch returns a channel of events. The implementation sends any number of
// DeviceAdded events (duplicates are allowed) followed by one EnumerationCompleted
// event, and closes the channel when ctx is cancelled or it has nothing more to report.
type Watcher interface {
	Watch(ctx context.Context) (<-chan DiscoveryEvent, error)
}

// InputPort is an opened input channel to one device.
type InputPort interface {
	// DeviceID returns the identifier the port was opened with.
	DeviceID() string
	// Subscribe starts delivering incoming messages to fn, in arrival order.
	Subscribe(fn func(RawMessage)) error
	// Close unsubscribes and releases the port. Safe to call more than once.
	Close() error
}

// Opener opens input ports.
//
// Open may take an unbounded amount of time. Cancelling ctx is a best-effort
// request to abandon the operation; an implementation may still return a port
// after ctx is done and the caller is then responsible for closing it.
// ctx covers the open operation only; a returned port outlives it.
type Opener interface {
	Open(ctx context.Context, deviceID string) (InputPort, error)
}

// Transport is a platform MIDI backend.
type Transport interface {
	Watcher
	Opener
	Close() error // Releases the backend client.
}
