package streamer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// logWriter appends every OutputRecord for one session to a file on
// disk, so output survives past the in-memory ring buffer's capacity
// (spec.md §4.5: "durable per-session log").
type logWriter struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// newLogWriter opens an append-only log for a session, named
// <session-id>-<YYYY-MM-DD>.log per spec.md §4.5.
func newLogWriter(dir, sessionID string) (*logWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "streamer: create log directory")
	}
	name := sessionID + "-" + time.Now().UTC().Format("2006-01-02") + ".log"
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "streamer: open session log")
	}
	return &logWriter{f: f, path: path}, nil
}

// writeMarker appends a start/end lifecycle line. It is shaped like
// every other log line (`[<ISO-8601>] [STDOUT] ...`) so the whole file
// satisfies P8's single line format, and it names sessionID so the
// first/last lines identify the session per spec.md §4.5.
func (w *logWriter) writeMarker(sessionID, label string) {
	w.append(fmt.Sprintf("[%s] [STDOUT] session %s %s\n", time.Now().UTC().Format(time.RFC3339Nano), sessionID, label))
}

// writeRecord appends one line as `[<ISO timestamp>] [<STDOUT|STDERR>] <payload>`.
func (w *logWriter) writeRecord(rec OutputRecord) {
	w.append(fmt.Sprintf("[%s] [%s] %s\n", rec.Timestamp.UTC().Format(time.RFC3339Nano), strings.ToUpper(string(rec.Stream)), rec.Line))
}

func (w *logWriter) append(s string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return
	}
	_, _ = w.f.WriteString(s)
}

func (w *logWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}
