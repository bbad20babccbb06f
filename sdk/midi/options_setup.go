package midi

import (
	"errors"
	"fmt"

	"github.com/leandrodaf/midiscan/internal/connection"
	"github.com/leandrodaf/midiscan/internal/logger"
	"github.com/leandrodaf/midiscan/sdk/contracts"
)

// ErrInvalidOption is returned when an option value cannot be used.
var ErrInvalidOption = errors.New("invalid client option")

// applyDefaultOptions sets default values for ClientOptions if not explicitly provided.
//
// opts ...contracts.Option: A variadic list of option functions that can modify ClientOptions.
//
// Returns:
//   - contracts.ClientOptions: A structure containing the finalized client options with defaults applied.
//   - error: An error if an option holds an unusable value.
func applyDefaultOptions(opts ...contracts.Option) (contracts.ClientOptions, error) {
	options := &contracts.ClientOptions{}
	for _, opt := range opts {
		opt(options)
	}

	if options.ConnectPolicy.AttemptTimeout < 0 {
		return contracts.ClientOptions{}, fmt.Errorf("%w: attempt timeout %s", ErrInvalidOption, options.ConnectPolicy.AttemptTimeout)
	}
	if options.ConnectPolicy.MaxAttempts < 0 {
		return contracts.ClientOptions{}, fmt.Errorf("%w: max attempts %d", ErrInvalidOption, options.ConnectPolicy.MaxAttempts)
	}

	// Set defaults if options are not provided
	if options.Logger == nil {
		options.Logger = logger.NewZapLogger()
	}
	if options.LogLevel == 0 {
		options.LogLevel = contracts.InfoLevel
	}
	if options.CoreMIDIConfig == nil {
		options.CoreMIDIConfig = &contracts.CoreMIDIConfig{ClientName: "GO MIDI Client"}
	}
	if options.ConnectPolicy.AttemptTimeout == 0 {
		options.ConnectPolicy.AttemptTimeout = connection.DefaultAttemptTimeout
	}
	if options.ConnectPolicy.MaxAttempts == 0 {
		options.ConnectPolicy.MaxAttempts = connection.DefaultMaxAttempts
	}

	options.Logger.SetLevel(options.LogLevel)
	if options.LogFilePath != "" {
		options.Logger.SetDestination(contracts.FileLog, options.LogFilePath)
	}
	return *options, nil
}
