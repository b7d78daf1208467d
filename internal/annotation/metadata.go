package annotation

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/five82/deepprobe/internal/errors"
)

// MetadataReader parses the output of ffmpeg's (a)metadata filter in print
// mode:
//
//	frame:12   pts:12288   pts_time:0.256
//	lavfi.silence_start=0.1
//
// Each frame header starts a record; the key=value lines below it belong to
// that record. Only records carrying at least one surfaced key become
// entries.
type MetadataReader struct {
	scanner  *bufio.Scanner
	keys     map[string]bool
	streamID string
	line     int

	current  Entry
	hits     int
	skipping bool
	eof      bool
	// pending is a decode error held back while the completed record
	// before it is returned.
	pending error
}

// NewMetadataReader reads records from r. keys restricts the surfaced keys
// (all keys when empty); streamID is stamped on every entry (omitted when
// negative).
func NewMetadataReader(r io.Reader, keys []string, streamID int) *MetadataReader {
	m := &MetadataReader{scanner: bufio.NewScanner(r)}
	m.scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	if len(keys) > 0 {
		m.keys = make(map[string]bool, len(keys))
		for _, k := range keys {
			m.keys[k] = true
		}
	}
	if streamID >= 0 {
		m.streamID = strconv.Itoa(streamID)
	}
	return m
}

func (m *MetadataReader) surfaced(key string) bool {
	return m.keys == nil || m.keys[key]
}

// Next returns the next entry, io.EOF at the end of the input, or a decode
// error for a malformed line. Reading may continue after a decode error.
func (m *MetadataReader) Next() (Entry, error) {
	if m.pending != nil {
		err := m.pending
		m.pending = nil
		return nil, err
	}
	for !m.eof {
		if !m.scanner.Scan() {
			m.eof = true
			if err := m.scanner.Err(); err != nil {
				return nil, errors.NewIOError("failed to read metadata", err)
			}
			break
		}
		m.line++
		line := strings.TrimRight(m.scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if strings.HasPrefix(line, "frame:") {
			header, err := m.parseHeader(line)
			prev, prevHits := m.current, m.hits
			m.current, m.hits = nil, 0
			if err != nil {
				m.skipping = true
			} else {
				m.skipping = false
				m.current = header
			}
			if prev != nil && prevHits > 0 {
				m.pending = err
				return prev, nil
			}
			if err != nil {
				return nil, err
			}
			continue
		}

		if m.skipping {
			continue
		}
		if m.current == nil {
			return nil, errors.NewDecodeError(fmt.Sprintf("line %d: metadata without frame header", m.line), nil)
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok || key == "" {
			return nil, errors.NewDecodeError(fmt.Sprintf("line %d: malformed metadata %q", m.line, line), nil)
		}
		if m.surfaced(key) {
			m.current[key] = value
			m.hits++
		}
	}

	if m.current != nil && m.hits > 0 {
		e := m.current
		m.current, m.hits = nil, 0
		return e, nil
	}
	m.current = nil
	return nil, io.EOF
}

// parseHeader parses "frame:N pts:P pts_time:T".
func (m *MetadataReader) parseHeader(line string) (Entry, error) {
	e := Entry{}
	for _, field := range strings.Fields(line) {
		k, v, ok := strings.Cut(field, ":")
		if !ok {
			return nil, errors.NewDecodeError(fmt.Sprintf("line %d: malformed frame header %q", m.line, line), nil)
		}
		switch k {
		case KeyFrame:
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				return nil, errors.NewDecodeError(fmt.Sprintf("line %d: bad frame number %q", m.line, v), err)
			}
		case KeyPTS, KeyPTSTime:
		default:
			continue
		}
		e[k] = v
	}
	if !e.Has(KeyFrame) {
		return nil, errors.NewDecodeError(fmt.Sprintf("line %d: frame header without frame number", m.line), nil)
	}
	if m.streamID != "" {
		e[KeyStreamID] = m.streamID
	}
	return e, nil
}
