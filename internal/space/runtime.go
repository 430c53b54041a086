package space

import (
	"os"
	"time"

	"github.com/google/uuid"
)

// Logger provides structured logging for the persistence layer.
// The args follow slog conventions: alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger is a Logger that discards all output. Use in tests.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

// Clock abstracts time retrieval so business logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique ID generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }

// TokenSource provides the current bearer credential for the remote service.
// Implementations must return the live value on every call: the client can
// move between anonymous and authenticated use mid-session, and backend
// selection is derived from this, never cached.
type TokenSource interface {
	// Token returns the credential and whether one is currently held.
	Token() (string, bool)
}

// EnvTokenSource reads the credential from an environment variable on every
// call.
type EnvTokenSource string

func (e EnvTokenSource) Token() (string, bool) {
	v := os.Getenv(string(e))
	return v, v != ""
}

// StaticTokenSource holds a fixed credential. An empty value means
// unauthenticated.
type StaticTokenSource string

func (s StaticTokenSource) Token() (string, bool) {
	return string(s), s != ""
}
