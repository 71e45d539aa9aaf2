package logger

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

type Logger interface {
	Debug(component, message string, fields map[string]interface{})
	Info(component, message string, fields map[string]interface{})
	Warning(component, message string, fields map[string]interface{})
	Error(component string, err error, fields map[string]interface{})
}

// ParseLevel maps a config level name onto a zerolog level.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "disabled", "off":
		return zerolog.Disabled, nil
	}
	return zerolog.NoLevel, fmt.Errorf("unknown log level %q", level)
}

type NoOpLogger struct{}

func NewNoOp() *NoOpLogger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) Debug(component, message string, fields map[string]interface{})   {}
func (n *NoOpLogger) Info(component, message string, fields map[string]interface{})    {}
func (n *NoOpLogger) Warning(component, message string, fields map[string]interface{}) {}
func (n *NoOpLogger) Error(component string, err error, fields map[string]interface{}) {}
