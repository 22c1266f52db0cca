package debug

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// Component identifies a subsystem for log filtering.
type Component string

const (
	ComponentSDHost    Component = "sdhost"
	ComponentDMAC      Component = "dmac"
	ComponentEventLoop Component = "eventloop"
	ComponentSim       Component = "sim"
	ComponentTool      Component = "tool"
)

var (
	logLevel = new(slog.LevelVar)

	logMtx sync.RWMutex
	logOut io.Writer = os.Stderr
	logger *slog.Logger
)

func init() {
	logLevel.Set(slog.LevelWarn)
	logger = slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: logLevel}))
}

// SetLogLevel sets the minimum level of all component loggers, including the
// ones already handed out.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}

// SetLogOutput redirects logging to w. Loggers returned by Logger before the
// call keep writing to the previous output.
func SetLogOutput(w io.Writer) {
	logMtx.Lock()
	defer logMtx.Unlock()
	logOut = w
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

// Logger returns a logger that tags every record with the component.
func Logger(c Component) *slog.Logger {
	logMtx.RLock()
	defer logMtx.RUnlock()
	return logger.With("component", string(c))
}
