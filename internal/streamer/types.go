// Package streamer retains and republishes subprocess output: a bounded
// in-memory ring per session, a durable append-only log file per
// session, and live pub/sub for attached readers (SPEC_FULL §4.5).
package streamer

import "time"

// Stream identifies which subprocess pipe an OutputRecord came from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
	// StreamMeta is a tag for lifecycle records rather than subprocess
	// bytes. The Streamer never publishes records with it: its own
	// start/end markers go only to the durable log, tagged STDOUT.
	StreamMeta Stream = "meta"
)

// OutputRecord is one line of subprocess output, tagged with the
// session it belongs to.
type OutputRecord struct {
	SessionID string
	Stream    Stream
	Line      string
	Timestamp time.Time
	// Index is the process-wide monotonic index stamped by Publish: a
	// single global counter shared by every session, strictly
	// increasing across the whole Streamer (spec.md §3, §9).
	Index int64
}
