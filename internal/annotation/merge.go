package annotation

import (
	"container/heap"
	"io"

	"github.com/five82/deepprobe/internal/errors"
)

// EntryReader is anything yielding entries until io.EOF.
type EntryReader interface {
	Next() (Entry, error)
}

// Merge interleaves several readers into one stream ordered by pts_time.
// Entries of one reader keep their relative order, and ties between readers
// go to the reader listed first. Entries without a usable pts_time inherit
// the last time seen on their reader.
func Merge(readers ...EntryReader) func() (Entry, error) {
	m := &merger{readers: readers, last: make([]float64, len(readers))}
	return m.next
}

type mergeItem struct {
	entry  Entry
	time   float64
	reader int
	seq    uint64
}

type mergeHeap []mergeItem

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	if h[i].time != h[j].time {
		return h[i].time < h[j].time
	}
	if h[i].reader != h[j].reader {
		return h[i].reader < h[j].reader
	}
	return h[i].seq < h[j].seq
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)   { *h = append(*h, x.(mergeItem)) }
func (h *mergeHeap) Pop() any {
	old := *h
	item := old[len(old)-1]
	*h = old[:len(old)-1]
	return item
}

type merger struct {
	readers []EntryReader
	last    []float64
	heap    mergeHeap
	seq     uint64
	primed  bool
	// refill is the reader whose head was just consumed.
	refill int
	// errs holds decode errors to surface before the next entry.
	errs []error
}

// pull reads the next entry of reader i into the heap. Decode errors are
// queued so that the reader keeps its place.
func (m *merger) pull(i int) error {
	for {
		e, err := m.readers[i].Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if errors.IsKind(err, errors.KindDecode) {
				m.errs = append(m.errs, err)
				continue
			}
			return err
		}
		t, ok := e.PTSTime()
		if !ok {
			t = m.last[i]
		}
		m.last[i] = t
		m.seq++
		heap.Push(&m.heap, mergeItem{entry: e, time: t, reader: i, seq: m.seq})
		return nil
	}
}

func (m *merger) next() (Entry, error) {
	if !m.primed {
		m.primed = true
		for i := range m.readers {
			if err := m.pull(i); err != nil {
				return nil, err
			}
		}
	} else if m.refill >= 0 {
		if err := m.pull(m.refill); err != nil {
			return nil, err
		}
	}
	m.refill = -1

	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	if m.heap.Len() == 0 {
		return nil, io.EOF
	}
	item := heap.Pop(&m.heap).(mergeItem)
	m.refill = item.reader
	return item.entry, nil
}
