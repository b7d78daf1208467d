package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCollectorRecords(t *testing.T) {
	c := NewCollector("deepprobe_test", zap.NewNop())

	c.RecordProbe("deep", OutcomeOK)
	c.RecordProbe("deep", OutcomeNoResult)
	c.RecordDetector("silence_detect", OutcomeOK, 2*time.Second, 3)
	c.RecordDetector("crop_detect", OutcomeSkipped, 0, 0)
	c.RecordEntries("silence_detect", 12)
	c.RecordPackets(100)
	c.RecordCacheLookup(true)
	c.RecordCacheLookup(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.probesTotal.WithLabelValues("deep", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.probesTotal.WithLabelValues("deep", OutcomeNoResult)))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.detectorResults.WithLabelValues("silence_detect")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.detectorRuns.WithLabelValues("crop_detect", OutcomeSkipped)))
	assert.Equal(t, 12.0, testutil.ToFloat64(c.annotationEntries.WithLabelValues("silence_detect")))
	assert.Equal(t, 100.0, testutil.ToFloat64(c.packetsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("hit")))
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector("deepprobe_test", nil)
	b := NewCollector("deepprobe_test", nil)
	a.RecordPackets(5)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.packetsTotal))
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordProbe("probe", OutcomeOK)
		c.RecordDetector("x", OutcomeOK, time.Second, 1)
		c.RecordEntries("x", 1)
		c.RecordPackets(1)
		c.RecordCacheLookup(true)
	})
	assert.Nil(t, c.Registry())
	assert.NoError(t, c.WriteTextfile("unused"))
}

func TestWriteTextfile(t *testing.T) {
	c := NewCollector("deepprobe_test", nil)
	c.RecordProbe("deep", OutcomeOK)

	path := filepath.Join(t.TempDir(), "deepprobe.prom")
	require.NoError(t, c.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `deepprobe_test_probes_total{kind="deep",outcome="ok"} 1`)
}
