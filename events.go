package tmppostgres

import (
	"os"

	"github.com/rs/zerolog"
)

// EventKind marks a lifecycle phase transition.
type EventKind int

const (
	EventAllocatePort EventKind = iota
	EventInitDB
	EventWriteConfig
	EventStartServer
	EventWaitForReady
	EventCreateDB
	EventFinished
	EventStopServer
	EventReleaseResources
)

var eventNames = map[EventKind]string{
	EventAllocatePort:     "allocate-port",
	EventInitDB:           "init-db",
	EventWriteConfig:      "write-config",
	EventStartServer:      "start-server",
	EventWaitForReady:     "wait-for-ready",
	EventCreateDB:         "create-db",
	EventFinished:         "finished",
	EventStopServer:       "stop-server",
	EventReleaseResources: "release-resources",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is emitted to the configured Logger at each phase transition.
// It is informational only.
type Event struct {
	Kind       EventKind
	InstanceID string
	DataDir    string
	Port       int
	// PID is set once the server process exists.
	PID int
}

// Logger receives lifecycle events in the order they happen.
type Logger func(Event)

// ZerologLogger adapts a zerolog logger to a Logger. Events are logged at
// debug level.
func ZerologLogger(l zerolog.Logger) Logger {
	return func(e Event) {
		ev := l.Debug().
			Str("event", e.Kind.String()).
			Str("instance", e.InstanceID)
		if e.DataDir != "" {
			ev = ev.Str("data_dir", e.DataDir)
		}
		if e.Port != 0 {
			ev = ev.Int("port", e.Port)
		}
		if e.PID != 0 {
			ev = ev.Int("pid", e.PID)
		}
		ev.Msg("tmppostgres lifecycle")
	}
}

// internalLog is used for best-effort cleanup warnings that are never
// surfaced as errors. TMPPG_DEBUG turns it on.
var internalLog = newInternalLogger()

func newInternalLogger() zerolog.Logger {
	if os.Getenv("TMPPG_DEBUG") == "" {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(zerolog.DebugLevel).
		With().Timestamp().Logger()
}

// defaultLogger is used when no layer sets Logger.
func defaultLogger() Logger {
	return ZerologLogger(internalLog)
}
