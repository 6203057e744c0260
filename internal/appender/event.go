// Package appender publishes application log events to a broker exchange.
// The destination exchange is declared lazily on the first emit and redeclared
// on the next emit after a failed attempt.
package appender

import "time"

// Level is the severity of a log event.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is one log record. Properties is the snapshot of contextual
// diagnostic key/value pairs taken at emission time; each entry becomes a
// message header.
type Event struct {
	Logger     string
	Level      Level
	Message    string
	Err        string
	Time       time.Time
	Properties map[string]string
}
