// Package annotation turns executed analysis graphs into a lazy sequence of
// per-frame annotation entries and provides the shared interpretation
// primitives detectors build on.
package annotation

import (
	"strconv"
)

// Synthetic keys added to every entry.
const (
	KeyStreamID = "stream_id"
	KeyFrame    = "frame"
	KeyPTS      = "pts"
	KeyPTSTime  = "pts_time"
)

// Entry is one annotated frame: a flat key to value mapping. Entries of a
// Sequence arrive in processing order.
type Entry map[string]string

// StreamID returns the file stream index the entry belongs to.
func (e Entry) StreamID() (int, bool) {
	v, ok := e[KeyStreamID]
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Float parses the value of key as a float.
func (e Entry) Float(key string) (float64, bool) {
	v, ok := e[key]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Int parses the value of key as an integer.
func (e Entry) Int(key string) (int64, bool) {
	v, ok := e[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// PTSTime returns the presentation time of the frame in seconds.
func (e Entry) PTSTime() (float64, bool) {
	return e.Float(KeyPTSTime)
}

// Has reports whether key is present.
func (e Entry) Has(key string) bool {
	_, ok := e[key]
	return ok
}
