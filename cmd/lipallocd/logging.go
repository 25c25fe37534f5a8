package main

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// shutdownTimeout bounds how long the control server's Shutdown is given to
// drain in-flight control-plane requests on SIGINT/SIGTERM.
const shutdownTimeout = 5 * time.Second

// consoleOrJSON returns a pretty console writer for interactive use, or
// plain stdout for JSON logs suitable for a log collector, following
// pkg/atlas/server.go's configureLogging split.
func consoleOrJSON(pretty bool) io.Writer {
	if pretty {
		return zerolog.ConsoleWriter{Out: os.Stdout}
	}
	return os.Stdout
}
