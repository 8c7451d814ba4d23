package profiler

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartOperationRecordsTimings(t *testing.T) {
	rp := NewRuntimeProfiler(DefaultOptions(), logrus.New())

	for i := 0; i < 3; i++ {
		done := rp.StartOperation("detect")
		time.Sleep(time.Millisecond)
		done()
	}

	s := rp.Snapshot()
	require.Contains(t, s.Operations, "detect")
	op := s.Operations["detect"]
	assert.Equal(t, int64(3), op.Count)
	assert.GreaterOrEqual(t, op.Min, time.Millisecond)
	assert.GreaterOrEqual(t, op.Max, op.Avg)
	assert.GreaterOrEqual(t, op.Avg, op.Min)
}

func TestRecordMetricWindow(t *testing.T) {
	rp := NewRuntimeProfiler(ProfilingOptions{MaxSamples: 2}, logrus.New())

	rp.RecordMetric("faces_per_image", 1)
	rp.RecordMetric("faces_per_image", 3)
	rp.RecordMetric("faces_per_image", 5)

	m := rp.Snapshot().Metrics["faces_per_image"]
	assert.Equal(t, int64(3), m.Count)
	assert.Equal(t, 4.0, m.Avg, "average covers the last two samples")
	assert.Equal(t, 1.0, m.Min)
	assert.Equal(t, 5.0, m.Max)
}

func TestConcurrentRecording(t *testing.T) {
	rp := NewRuntimeProfiler(DefaultOptions(), logrus.New())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rp.StartOperation("classify")()
			rp.RecordMetric("faces_per_image", 1)
		}()
	}
	wg.Wait()

	s := rp.Snapshot()
	assert.Equal(t, int64(20), s.Operations["classify"].Count)
	assert.Equal(t, int64(20), s.Metrics["faces_per_image"].Count)
}

func TestStatusReportIsLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	rp := NewRuntimeProfiler(ProfilingOptions{ReportInterval: 10 * time.Millisecond}, logger)

	rp.StartOperation("decode")()
	rp.Start()
	rp.Start()
	assert.Eventually(t, func() bool { return len(hook.AllEntries()) >= 2 }, time.Second, 5*time.Millisecond)
	rp.Stop()
	rp.Stop()

	var sawOperation bool
	for _, e := range hook.AllEntries() {
		if e.Data["operation"] == "decode" {
			sawOperation = true
		}
	}
	assert.True(t, sawOperation)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2*1024*1024))
}

func TestWindowQuantile(t *testing.T) {
	w := &window{}
	for i := 1; i <= 100; i++ {
		w.add(float64(i), 1000)
	}
	assert.Equal(t, 95.0, w.quantile(0.95))
	assert.Equal(t, 1.0, w.quantile(0))
	assert.Equal(t, 50.5, w.mean())

	w.add(1000, 100)
	assert.Equal(t, 1000.0, w.quantile(1))
	assert.Equal(t, 1.0, w.min, "extremes cover the whole lifetime")
	assert.Equal(t, int64(101), w.count)
}
