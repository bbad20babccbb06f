// Package config loads the midiscan daemon configuration.
//
// Values are resolved in order:
//   - built-in defaults
//   - the YAML file, when a path is given
//   - MIDISCAN_* environment variables
//
// The result is validated before it is returned. Broker credentials are best
// supplied through MIDISCAN_MQTT_USERNAME and MIDISCAN_MQTT_PASSWORD.
//
// Usage:
//
//	cfg, err := config.Load(os.Getenv("MIDISCAN_CONFIG"))
//	if err != nil {
//	    return err
//	}
//	timeout := cfg.AttemptTimeout()
package config
