package narrator

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// DebugWriter dumps prompts and model responses to a directory so a bad
// turn can be replayed offline. Write failures are logged and swallowed;
// debugging must never interfere with a running turn.
type DebugWriter struct {
	dir string
}

func NewDebugWriter(dir string) *DebugWriter {
	return &DebugWriter{dir: dir}
}

func (d *DebugWriter) Write(kind, stage, group string, turnNumber int, content string) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		slog.Warn("creating debug directory", "dir", d.dir, "error", err)
		return
	}

	name := fmt.Sprintf("%s_turn%03d_%s_%s_%s.txt", group, turnNumber, kind, stage, uuid.NewString()[:8])
	path := filepath.Join(d.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		slog.Warn("writing debug artifact", "path", path, "error", err)
	}
}
