package streamer

import (
	"sort"
	"strings"
	"time"
)

// OutputFilter narrows SessionOutputFiltered/MultiSessionOutputFiltered results by
// stream and recency, mirroring the query contract in spec.md §4.5.
type OutputFilter struct {
	Stream   Stream // zero value matches every stream
	Since    time.Time
	MaxLines int
}

// SessionOutputFiltered returns records for one session matching
// filter, trimmed to the last filter.MaxLines.
func (s *Streamer) SessionOutputFiltered(sessionID string, filter OutputFilter) ([]OutputRecord, error) {
	st := s.sessionFor(sessionID)
	if st == nil {
		return nil, ErrUnknownSession
	}
	matched := applyFilter(st.buffer.Snapshot(), filter)
	return trimToMaxLines(matched, filter.MaxLines), nil
}

// MultiSessionOutputFiltered merges filtered output across several
// sessions, sorted by the global monotonic index ascending (spec.md
// §9: "the multi-session query relies on global ordering") and
// trimmed to filter.MaxLines overall.
func (s *Streamer) MultiSessionOutputFiltered(sessionIDs []string, filter OutputFilter) []OutputRecord {
	var merged []OutputRecord
	for _, id := range sessionIDs {
		st := s.sessionFor(id)
		if st == nil {
			continue
		}
		merged = append(merged, applyFilter(st.buffer.Snapshot(), filter)...)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Index < merged[j].Index })
	return trimToMaxLines(merged, filter.MaxLines)
}

// SearchOptions bounds a Search call's result size and requests
// surrounding context lines around each hit.
type SearchOptions struct {
	MaxResults int
	Context    int
}

// SearchWithContext case-insensitively matches keyword against each
// record's line and, when opts.Context > 0, also includes that many
// records immediately before and after each hit, deduplicated by
// monotonic index and capped at opts.MaxResults hits.
func (s *Streamer) SearchWithContext(sessionID, keyword string, opts SearchOptions) ([]OutputRecord, error) {
	st := s.sessionFor(sessionID)
	if st == nil {
		return nil, ErrUnknownSession
	}
	snap := st.buffer.Snapshot()
	needle := strings.ToLower(keyword)

	var hitIdx []int
	for i, rec := range snap {
		if strings.Contains(strings.ToLower(rec.Line), needle) {
			hitIdx = append(hitIdx, i)
			if opts.MaxResults > 0 && len(hitIdx) >= opts.MaxResults {
				break
			}
		}
	}

	if opts.Context <= 0 {
		out := make([]OutputRecord, len(hitIdx))
		for i, idx := range hitIdx {
			out[i] = snap[idx]
		}
		return out, nil
	}

	seen := make(map[int64]bool)
	var ordered []int
	for _, idx := range hitIdx {
		lo, hi := idx-opts.Context, idx+opts.Context
		if lo < 0 {
			lo = 0
		}
		if hi >= len(snap) {
			hi = len(snap) - 1
		}
		for j := lo; j <= hi; j++ {
			if !seen[snap[j].Index] {
				seen[snap[j].Index] = true
				ordered = append(ordered, j)
			}
		}
	}
	sort.Slice(ordered, func(i, k int) bool { return snap[ordered[i]].Index < snap[ordered[k]].Index })
	out := make([]OutputRecord, len(ordered))
	for i, idx := range ordered {
		out[i] = snap[idx]
	}
	return out, nil
}

func applyFilter(recs []OutputRecord, filter OutputFilter) []OutputRecord {
	out := recs[:0:0]
	for _, rec := range recs {
		if filter.Stream != "" && rec.Stream != filter.Stream {
			continue
		}
		if !filter.Since.IsZero() && rec.Timestamp.Before(filter.Since) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func trimToMaxLines(recs []OutputRecord, max int) []OutputRecord {
	if max <= 0 || len(recs) <= max {
		return recs
	}
	return recs[len(recs)-max:]
}
