package contracts

import "time"

// MIDIEventFilter allows users to specify which decoded message kinds to capture.
type MIDIEventFilter struct {
	Kinds []MessageKind // List of message kinds to let through.
}

// Allows reports whether kind passes the filter. A nil filter allows everything.
func (f *MIDIEventFilter) Allows(kind MessageKind) bool {
	if f == nil {
		return true
	}
	for _, k := range f.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// CoreMIDIConfig holds configuration for the platform MIDI client.
type CoreMIDIConfig struct {
	ClientName string // Name the backend registers the client under.
}

// ConnectPolicy bounds how long and how often a device open is tried.
type ConnectPolicy struct {
	AttemptTimeout time.Duration // Time allowed for a single open before it is cancelled.
	MaxAttempts    int           // Total attempts per device before giving up.
}

// ClientOptions defines the configuration options for the MIDI client.
type ClientOptions struct {
	Logger          Logger           // Logger for logging events and errors.
	LogLevel        LogLevel         // Level of logging to use.
	LogFilePath     string           // File path for logging if file logging is enabled.
	MIDIEventFilter *MIDIEventFilter // Optional filter for decoded events.
	CoreMIDIConfig  *CoreMIDIConfig  // Configuration specific to the platform backend.
	ConnectPolicy   ConnectPolicy    // Timeout and retry bounds for connection attempts.
	EventHandler    EventHandler     // Optional callback receiving every decoded event.
	Transport       Transport        // Overrides the platform transport.
}

// Option is a function that modifies ClientOptions.
type Option func(*ClientOptions)

// WithLogger sets the logger for the MIDI client.
func WithLogger(l Logger) Option {
	return func(opts *ClientOptions) {
		opts.Logger = l
	}
}

// WithLogLevel sets the logging level for the MIDI client.
func WithLogLevel(level LogLevel) Option {
	return func(opts *ClientOptions) {
		opts.LogLevel = level
	}
}

// WithLogFile directs log output to the given file.
func WithLogFile(path string) Option {
	return func(opts *ClientOptions) {
		opts.LogFilePath = path
	}
}

// WithMIDIEventFilter sets the event filter for the MIDI client.
func WithMIDIEventFilter(filter MIDIEventFilter) Option {
	return func(opts *ClientOptions) {
		opts.MIDIEventFilter = &filter
	}
}

// WithCoreMIDIConfig sets the backend configuration for the MIDI client.
func WithCoreMIDIConfig(config CoreMIDIConfig) Option {
	return func(opts *ClientOptions) {
		opts.CoreMIDIConfig = &config
	}
}

// WithAttemptTimeout sets how long a single device open may take.
func WithAttemptTimeout(d time.Duration) Option {
	return func(opts *ClientOptions) {
		opts.ConnectPolicy.AttemptTimeout = d
	}
}

// WithMaxAttempts sets how many times a device open is tried before giving up.
func WithMaxAttempts(n int) Option {
	return func(opts *ClientOptions) {
		opts.ConnectPolicy.MaxAttempts = n
	}
}

// WithEventHandler registers a callback for decoded events.
func WithEventHandler(h EventHandler) Option {
	return func(opts *ClientOptions) {
		opts.EventHandler = h
	}
}

// WithTransport replaces the platform transport, mostly useful in tests.
func WithTransport(t Transport) Option {
	return func(opts *ClientOptions) {
		opts.Transport = t
	}
}
