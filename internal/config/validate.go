package config

import "fmt"

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

// validateLogLevel ensures the log level is one slog understands
func validateLogLevel(level string) error {
	if !validLogLevels[level] {
		return fmt.Errorf("unsupported log level '%s': supported levels are debug, info, warn, error", level)
	}
	return nil
}

// validateLogFormat ensures the log format is text or json
func validateLogFormat(format string) error {
	if !validLogFormats[format] {
		return fmt.Errorf("unsupported log format '%s': supported formats are text, json", format)
	}
	return nil
}
