package annotation

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/five82/deepprobe/internal/errors"
	"github.com/five82/deepprobe/internal/ffmpeg"
	"github.com/five82/deepprobe/internal/ffprobe"
	"github.com/five82/deepprobe/internal/graph"
	"github.com/five82/deepprobe/internal/util"
)

// WorkDirPrefix names the per-run work directories of FFmpegSource.
const WorkDirPrefix = "deepprobe_annotations"

// FFmpegSource runs Orders through the ffmpeg CLI. Every metadata output
// prints into its own file of a per-run work directory; the files are read
// back lazily and merged by presentation time.
type FFmpegSource struct {
	Runner   ffmpeg.Runner
	Provider ffprobe.Provider
	Filters  *ffmpeg.FilterCache
	Binary   string
	// LogLevel is the ffmpeg -v level of every run of this source.
	LogLevel string
	TempDir  string
	Logger   *zap.Logger
	Progress ffmpeg.ProgressCallback

	mu     sync.Mutex
	counts map[string]int
}

// NewFFmpegSource creates a source using the given ffmpeg binary.
func NewFFmpegSource(binary, logLevel, tempDir string, runner ffmpeg.Runner, provider ffprobe.Provider, logger *zap.Logger) *FFmpegSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FFmpegSource{
		Runner:   runner,
		Provider: provider,
		Filters:  &ffmpeg.FilterCache{Binary: binary},
		Binary:   binary,
		LogLevel: logLevel,
		TempDir:  tempDir,
		Logger:   logger,
		counts:   make(map[string]int),
	}
}

// HasFilter reports whether the ffmpeg build provides the named filter.
func (s *FFmpegSource) HasFilter(name string) bool {
	set, err := s.Filters.Get(context.Background())
	if err != nil {
		s.Logger.Warn("cannot list ffmpeg filters", zap.Error(err))
		return false
	}
	return set.Has(name)
}

// StreamCount returns the number of streams in path.
func (s *FFmpegSource) StreamCount(path string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.counts[path]; ok {
		return n, nil
	}
	info, err := s.Provider.Probe(context.Background(), path)
	if err != nil {
		return 0, err
	}
	if s.counts == nil {
		s.counts = make(map[string]int)
	}
	s.counts[path] = len(info.Streams)
	return len(info.Streams), nil
}

// Process executes the Order and returns its annotations. The work
// directory is removed when the Sequence is closed, or before returning on
// failure.
func (s *FFmpegSource) Process(ctx context.Context, order *graph.Order) (*Sequence, error) {
	base := s.TempDir
	if base == "" {
		base = os.TempDir()
	}
	work, err := util.CreateTempDir(base, WorkDirPrefix)
	if err != nil {
		return nil, errors.NewIOError("failed to create work directory", err)
	}
	dir := work.Path()
	cleanup := work.Cleanup

	rendered, err := order.Render(func(i int) string {
		return filepath.Join(dir, fmt.Sprintf("output_%d.txt", i))
	})
	if err != nil {
		_ = cleanup()
		return nil, err
	}

	inv := ffmpeg.Invocation{
		Binary:   s.Binary,
		LogLevel: s.LogLevel,
		Graph:    rendered,
	}
	if s.Progress != nil && len(rendered.Inputs) > 0 {
		inv.Duration = s.duration(ctx, rendered.Inputs[0])
	}

	s.Logger.Debug("executing graph", zap.String("filter_complex", rendered.FilterComplex))
	if _, err := s.Runner.Run(ctx, inv, s.Progress); err != nil {
		_ = cleanup()
		return nil, err
	}

	files := make([]*os.File, 0, len(rendered.Sinks))
	closeFiles := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
	readers := make([]EntryReader, 0, len(rendered.Sinks))
	for _, sink := range rendered.Sinks {
		f, err := os.Open(sink.Path)
		if err != nil {
			if os.IsNotExist(err) {
				// Nothing was printed for this output.
				readers = append(readers, emptyReader{})
				continue
			}
			closeFiles()
			_ = cleanup()
			return nil, errors.NewIOError("failed to open annotation output", err)
		}
		files = append(files, f)
		readers = append(readers, NewMetadataReader(f, sink.Keys, sink.StreamID))
	}

	return NewSequence(Merge(readers...), func() error {
		closeFiles()
		return cleanup()
	}), nil
}

func (s *FFmpegSource) duration(ctx context.Context, path string) float64 {
	if s.Provider == nil {
		return 0
	}
	info, err := s.Provider.Probe(ctx, path)
	if err != nil {
		return 0
	}
	return info.Format.Duration
}

type emptyReader struct{}

func (emptyReader) Next() (Entry, error) { return nil, io.EOF }
