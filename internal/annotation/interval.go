package annotation

import (
	"math"
	"sort"
)

// Interval is a closed [Start, End] span in milliseconds.
type Interval struct {
	Start int64
	End   int64
}

// Duration returns End - Start.
func (iv Interval) Duration() int64 { return iv.End - iv.Start }

// Intersect returns the overlap of two intervals and whether its length is
// non-negative.
func (iv Interval) Intersect(other Interval) (Interval, bool) {
	out := Interval{Start: max(iv.Start, other.Start), End: min(iv.End, other.End)}
	return out, out.End >= out.Start
}

// SecondsToMillis converts filter seconds to the report tick domain.
func SecondsToMillis(s float64) int64 {
	return int64(math.Round(s * 1000))
}

// IntervalKeys names the annotation keys of an interval detector. Either
// End or Duration (or both) closes an interval.
type IntervalKeys struct {
	Start    string
	End      string
	Duration string
}

// IntervalTracker pairs start and end annotations per stream. Filters emit
// the closing key only once they have confirmed the end of the interval, so
// a start is held open until its closing entry arrives.
type IntervalTracker struct {
	keys IntervalKeys
	open map[int]float64
}

// NewIntervalTracker creates a tracker for the given keys.
func NewIntervalTracker(keys IntervalKeys) *IntervalTracker {
	return &IntervalTracker{keys: keys, open: make(map[int]float64)}
}

// Closed is an interval completed by an entry.
type Closed struct {
	StreamID int
	Interval Interval
}

// Observe feeds one entry. It returns the interval the entry closes, if any.
// An entry carrying both a closing and a start key closes first.
func (t *IntervalTracker) Observe(e Entry) (Closed, bool) {
	id, ok := e.StreamID()
	if !ok {
		return Closed{}, false
	}

	var closed Closed
	var didClose bool
	if start, open := t.open[id]; open {
		end, hasEnd := e.Float(t.keys.End)
		if !hasEnd {
			if d, hasDuration := e.Float(t.keys.Duration); hasDuration {
				end, hasEnd = start+d, true
			}
		}
		if hasEnd {
			delete(t.open, id)
			closed = Closed{StreamID: id, Interval: Interval{Start: SecondsToMillis(start), End: SecondsToMillis(end)}}
			didClose = true
		}
	}

	if start, ok := e.Float(t.keys.Start); ok {
		t.open[id] = start
	}
	return closed, didClose
}

// Flush closes every interval still open at endMillis of its stream, as
// reported by end. Streams with no known end are dropped.
func (t *IntervalTracker) Flush(end func(streamID int) (int64, bool)) []Closed {
	var out []Closed
	for id, start := range t.open {
		if e, ok := end(id); ok {
			startMs := SecondsToMillis(start)
			if e >= startMs {
				out = append(out, Closed{StreamID: id, Interval: Interval{Start: startMs, End: e}})
			}
		}
	}
	t.open = make(map[int]float64)
	sort.Slice(out, func(i, j int) bool { return out[i].StreamID < out[j].StreamID })
	return out
}
