package infra

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger aliases zerolog.Logger so the rest of the codebase can depend on the
// logging contract without importing the third-party module directly.
type Logger = zerolog.Logger

// NewLogger builds the service logger. Development and CLI environments get
// a console writer at debug level; everything else emits JSON at info so log
// shippers can index poll and storage events.
func NewLogger(appEnv string) zerolog.Logger {
	console := isConsoleEnv(appEnv)

	level := zerolog.InfoLevel
	if console {
		level = zerolog.DebugLevel
	}

	var out io.Writer = os.Stdout
	if console {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", "gptveo").
		Logger()
}

func isConsoleEnv(appEnv string) bool {
	switch strings.ToLower(strings.TrimSpace(appEnv)) {
	case "development", "dev", "local", "cli":
		return true
	}
	return false
}
