package debug_test

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/clktmr/sam3x/debug"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	debug.SetLogOutput(&buf)
	log := debug.Logger(debug.ComponentSDHost)

	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug record logged at default level: %q", buf.String())
	}

	debug.SetLogLevel(slog.LevelDebug)
	defer debug.SetLogLevel(slog.LevelWarn)
	log.Debug("shown", "state", "busy")
	out := buf.String()
	for _, want := range []string{"component=sdhost", "msg=shown", "state=busy"} {
		if !strings.Contains(out, want) {
			t.Errorf("%q misses %q", out, want)
		}
	}
}
