package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/deepprobe/internal/check"
	"github.com/five82/deepprobe/internal/report"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(MemoryPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mediaFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.mxf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func sampleReport() *report.DeepProbeReport {
	stream := report.NewStreamProbeResult(1)
	stream.DetectedSilence = []report.SilenceResult{{Start: 1000, End: 3500}}
	return &report.DeepProbeReport{
		RunID:  "run-1",
		Result: &report.DeepProbeResult{Streams: []report.StreamProbeResult{stream}},
	}
}

func silenceCheck(minMillis uint64) *check.DeepProbeCheck {
	return &check.DeepProbeCheck{SilenceDetect: check.Parameters{"duration": {Min: check.Uint64(minMillis)}}}
}

func TestStoreAndLookup(t *testing.T) {
	s := openStore(t)
	path := mediaFile(t, "frames")
	c := silenceCheck(2000)

	_, hit := s.Lookup(path, c)
	assert.False(t, hit)

	require.NoError(t, s.Store(path, c, sampleReport()))
	got, hit := s.Lookup(path, c)
	require.True(t, hit)
	assert.Equal(t, path, got.Filename)
	assert.Equal(t, "run-1", got.RunID)
	require.NotNil(t, got.Result)
	assert.Equal(t, []report.SilenceResult{{Start: 1000, End: 3500}}, got.Result.Streams[0].DetectedSilence)
	assert.Empty(t, got.Result.Streams[0].DetectedBlack)

	_, hit = s.Lookup(path, silenceCheck(1000))
	assert.False(t, hit, "a different check is a different key")
}

func TestStoreReplacesExistingReport(t *testing.T) {
	s := openStore(t)
	path := mediaFile(t, "frames")
	c := silenceCheck(2000)

	require.NoError(t, s.Store(path, c, sampleReport()))
	newer := sampleReport()
	newer.RunID = "run-2"
	require.NoError(t, s.Store(path, c, newer))

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, hit := s.Lookup(path, c)
	require.True(t, hit)
	assert.Equal(t, "run-2", got.RunID)
}

func TestLookupMissesChangedFile(t *testing.T) {
	s := openStore(t)
	path := mediaFile(t, "frames")
	c := silenceCheck(2000)
	require.NoError(t, s.Store(path, c, sampleReport()))

	require.NoError(t, os.WriteFile(path, []byte("more frames"), 0o644))
	_, hit := s.Lookup(path, c)
	assert.False(t, hit)
}

func TestStoreSkipsReportsWithoutResult(t *testing.T) {
	s := openStore(t)
	path := mediaFile(t, "frames")

	require.NoError(t, s.Store(path, nil, &report.DeepProbeReport{RunID: "x"}))
	n, err := s.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPrune(t *testing.T) {
	s := openStore(t)
	path := mediaFile(t, "frames")
	require.NoError(t, s.Store(path, silenceCheck(2000), sampleReport()))

	removed, err := s.Prune(time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = s.Prune(-time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
