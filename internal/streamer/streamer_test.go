package streamer

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStreamer(t *testing.T) *Streamer {
	t.Helper()
	dir := t.TempDir()
	return New(dir, 5)
}

// TestRingBufferEviction covers P7: the ring buffer retains only the
// most recent `capacity` records.
func TestRingBufferEviction(t *testing.T) {
	s := newTestStreamer(t)
	require.NoError(t, s.EnsureSession("sess1"))

	for i := 0; i < 10; i++ {
		s.Publish(OutputRecord{SessionID: "sess1", Stream: StreamStdout, Line: fmt.Sprintf("line-%d", i), Timestamp: time.Now()})
	}

	recs, err := s.SessionOutput("sess1", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 5)
	assert.Equal(t, "line-5", recs[0].Line)
	assert.Equal(t, "line-9", recs[4].Line)
}

var logLinePattern = regexp.MustCompile(`^\[[^\]]+\] \[(STDOUT|STDERR)\] .*$`)

// TestDurableLogFormatAndMarkers covers P8: every line in the durable
// log matches `[<ISO-8601>] [(STDOUT|STDERR)] <text>`, the first and
// last lines are start/end markers naming the session, and lines
// evicted from the ring buffer are still present on disk.
func TestDurableLogFormatAndMarkers(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, 3)
	require.NoError(t, s.EnsureSession("sess1"))

	for i := 0; i < 8; i++ {
		s.Publish(OutputRecord{SessionID: "sess1", Stream: StreamStdout, Line: fmt.Sprintf("line-%d", i), Timestamp: time.Now()})
	}
	s.CloseSession("sess1")

	matches, err := filepath.Glob(dir + "/sess1-*.log")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "line-0")
	assert.Contains(t, content, "line-7")

	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	require.NotEmpty(t, lines)
	for _, line := range lines {
		assert.Regexp(t, logLinePattern, line)
	}
	assert.Contains(t, lines[0], "sess1")
	assert.Contains(t, lines[len(lines)-1], "sess1")
}

// TestLiveSubscriptionFanOut: an attached subscriber observes records
// published after it subscribes.
func TestLiveSubscriptionFanOut(t *testing.T) {
	s := newTestStreamer(t)
	require.NoError(t, s.EnsureSession("sess1"))

	ch, unsubscribe, err := s.Subscribe("sess1")
	require.NoError(t, err)
	defer unsubscribe()

	s.Publish(OutputRecord{SessionID: "sess1", Stream: StreamStdout, Line: "hello", Timestamp: time.Now()})

	select {
	case rec := <-ch:
		assert.Equal(t, "hello", rec.Line)
	case <-time.After(time.Second):
		t.Fatal("subscriber never received published record")
	}
}

// TestOutputOrderIsMonotonic covers P6: a subscriber's received
// monotonic_index values are strictly increasing and contiguous from
// the subscription instant.
func TestOutputOrderIsMonotonic(t *testing.T) {
	s := newTestStreamer(t)
	require.NoError(t, s.EnsureSession("sess1"))

	ch, unsubscribe, err := s.Subscribe("sess1")
	require.NoError(t, err)
	defer unsubscribe()

	for i := 0; i < 5; i++ {
		s.Publish(OutputRecord{SessionID: "sess1", Stream: StreamStdout, Line: fmt.Sprintf("line-%d", i), Timestamp: time.Now()})
	}

	var last int64 = -1
	for i := 0; i < 5; i++ {
		select {
		case rec := <-ch:
			if last >= 0 {
				assert.Equal(t, last+1, rec.Index)
			}
			last = rec.Index
		case <-time.After(time.Second):
			t.Fatal("subscriber never received published record")
		}
	}
}

func TestSearchFindsSubstring(t *testing.T) {
	s := newTestStreamer(t)
	require.NoError(t, s.EnsureSession("sess1"))
	s.Publish(OutputRecord{SessionID: "sess1", Stream: StreamStdout, Line: "Building module foo", Timestamp: time.Now()})
	s.Publish(OutputRecord{SessionID: "sess1", Stream: StreamStdout, Line: "Done", Timestamp: time.Now()})

	matches, err := s.Search("sess1", "building")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Building module foo", matches[0].Line)
}

func TestUnknownSessionErrors(t *testing.T) {
	s := newTestStreamer(t)
	_, err := s.SessionOutput("nope", 0)
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestMultiSessionOutputSkipsUnknown(t *testing.T) {
	s := newTestStreamer(t)
	require.NoError(t, s.EnsureSession("sess1"))
	s.Publish(OutputRecord{SessionID: "sess1", Stream: StreamStdout, Line: "hi", Timestamp: time.Now()})

	out := s.MultiSessionOutput([]string{"sess1", "ghost"}, 0)
	assert.Len(t, out, 1)
	assert.Contains(t, out, "sess1")
}
