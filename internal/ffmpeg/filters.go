package ffmpeg

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/five82/deepprobe/internal/errors"
)

// FilterSet is the set of filters an ffmpeg build provides.
type FilterSet struct {
	names map[string]bool
}

// Has reports whether the named filter is available.
func (s *FilterSet) Has(name string) bool {
	return s != nil && s.names[name]
}

// Len returns the number of known filters.
func (s *FilterSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

// ListFilters runs `ffmpeg -filters` and parses the result.
func ListFilters(ctx context.Context, bin string) (*FilterSet, error) {
	cmd := exec.CommandContext(ctx, binary(bin), "-hide_banner", "-filters")
	out, err := cmd.Output()
	if err != nil {
		return nil, errors.WrapExecError(binary(bin), err, "")
	}
	return ParseFilters(strings.NewReader(string(out))), nil
}

// ParseFilters reads the table printed by `ffmpeg -filters`. Filter rows look
// like " TSC silencedetect      A->A       Detect silence.".
func ParseFilters(r io.Reader) *FilterSet {
	set := &FilterSet{names: make(map[string]bool)}
	scanner := bufio.NewScanner(r)
	inTable := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "---") || strings.HasPrefix(line, "Filters:") {
			inTable = true
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 || !strings.Contains(fields[2], "->") {
			continue
		}
		if !inTable && !isFlagColumn(fields[0]) {
			continue
		}
		set.names[fields[1]] = true
	}
	return set
}

// isFlagColumn matches the capability column (T, S, C or '.').
func isFlagColumn(s string) bool {
	for _, c := range s {
		if c != 'T' && c != 'S' && c != 'C' && c != '.' {
			return false
		}
	}
	return s != ""
}

// FilterCache memoizes the filter list of one ffmpeg binary.
type FilterCache struct {
	Binary string

	once sync.Once
	set  *FilterSet
	err  error
}

// Get returns the cached filter set, listing it on first use.
func (c *FilterCache) Get(ctx context.Context) (*FilterSet, error) {
	c.once.Do(func() {
		c.set, c.err = ListFilters(ctx, c.Binary)
	})
	return c.set, c.err
}
