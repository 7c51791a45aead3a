package ports

import "time"

// Logger defines the interface for structured logging.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	With(args ...interface{}) Logger
}

// Clock abstracts "now" so scheduling decisions are deterministic in tests.
// Every time read inside the engine goes through this interface.
type Clock interface {
	Now() time.Time
}

// DaemonStatus describes the running daemon.
type DaemonStatus struct {
	Running   bool   `json:"running"`
	StartedAt string `json:"started_at"`
	Uptime    string `json:"uptime"`
}
