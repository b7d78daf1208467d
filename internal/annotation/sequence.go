package annotation

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/five82/deepprobe/internal/errors"
	"github.com/five82/deepprobe/internal/graph"
)

// Source executes an Order and exposes its annotations.
type Source interface {
	// Process runs the Order. Failure to open an input or to link the graph
	// is an execution error carrying the engine's message.
	Process(ctx context.Context, order *graph.Order) (*Sequence, error)
}

// Sequence is a lazy, finite, single-pass stream of entries. It is not
// restartable: running an Order again requires a fresh Process call.
type Sequence struct {
	next   func() (Entry, error)
	close  func() error
	done   bool
	closed bool
}

// NewSequence builds a Sequence from a producer and a release function.
// next returns io.EOF after the last entry. close may be nil.
func NewSequence(next func() (Entry, error), close func() error) *Sequence {
	return &Sequence{next: next, close: close}
}

// FromEntries returns a Sequence over a fixed list of entries.
func FromEntries(entries []Entry) *Sequence {
	i := 0
	return NewSequence(func() (Entry, error) {
		if i >= len(entries) {
			return nil, io.EOF
		}
		e := entries[i]
		i++
		return e, nil
	}, nil)
}

// Next returns the next entry, io.EOF at the end, or a decode error for a
// malformed record after which reading may continue.
func (s *Sequence) Next() (Entry, error) {
	if s.done || s.closed {
		return nil, io.EOF
	}
	e, err := s.next()
	if err == io.EOF {
		s.done = true
	}
	return e, err
}

// Close releases the resources behind the sequence. It is safe to call more
// than once.
func (s *Sequence) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.close != nil {
		return s.close()
	}
	return nil
}

// Each calls fn for every entry of seq and returns how many entries were
// seen. Decode errors are logged and skipped; any other error stops the scan.
func Each(seq *Sequence, logger *zap.Logger, fn func(Entry)) (int, error) {
	count := 0
	for {
		e, err := seq.Next()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			if errors.IsKind(err, errors.KindDecode) {
				logger.Warn("skipping malformed annotation", zap.Error(err))
				continue
			}
			return count, err
		}
		count++
		fn(e)
	}
}
