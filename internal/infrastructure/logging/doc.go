// Package logging provides structured logging for the bridge.
//
// It wraps log/slog with the configured format (json or text), level
// filtering and the default service/version attributes:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.With("component", "bus").Info("session online", "port", cfg.Serial.Port)
//
// Never log secrets such as the MQTT password or the InfluxDB token.
package logging
