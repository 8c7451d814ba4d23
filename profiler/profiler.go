// Package profiler - Pipeline stage timings and runtime statistics.
package profiler

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RuntimeProfiler tracks operation timings, custom metrics and memory usage.
//
// The profiler is thread-safe. Timings and metrics keep a bounded window of the most recent
// samples; counts cover the whole process lifetime.
type RuntimeProfiler struct {
	// Configuration
	reportInterval time.Duration
	sampleInterval time.Duration
	maxSamples     int
	logger         logrus.FieldLogger

	// State management
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	startTime time.Time
	running   bool

	memStats runtime.MemStats

	metrics    map[string]*window
	operations map[string]*window
}

// window keeps the last samples of a series plus lifetime extremes and count.
type window struct {
	values []float64
	sum    float64
	min    float64
	max    float64
	count  int64
}

func (w *window) add(v float64, limit int) {
	if w.count == 0 || v < w.min {
		w.min = v
	}
	if w.count == 0 || v > w.max {
		w.max = v
	}
	w.count++

	w.values = append(w.values, v)
	w.sum += v
	if len(w.values) > limit {
		w.sum -= w.values[0]
		w.values = w.values[1:]
	}
}

func (w *window) mean() float64 {
	return w.sum / float64(len(w.values))
}

// quantile returns the q-th quantile (0..1) of the retained samples, nearest rank.
func (w *window) quantile(q float64) float64 {
	sorted := append([]float64(nil), w.values...)
	sort.Float64s(sorted)
	idx := int(math.Ceil(q*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// ProfilingOptions configures the runtime profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often to log status reports; 0 disables reports.
	ReportInterval time.Duration `json:"report_interval" yaml:"report_interval"`
	// SampleInterval specifies how often to read memory statistics (default: 1s).
	SampleInterval time.Duration `json:"sample_interval" yaml:"sample_interval"`
	// MaxSamples specifies the number of samples kept per timing and metric (default: 600).
	MaxSamples int `json:"max_samples" yaml:"max_samples"`
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() ProfilingOptions {
	return ProfilingOptions{
		SampleInterval: time.Second,
		MaxSamples:     600,
	}
}

// NewRuntimeProfiler creates a new runtime profiler with the specified options.
//
// Arguments:
// - opts: Configuration options for the profiler
// - logger: Destination of the periodic status reports
//
// Returns:
// - A configured RuntimeProfiler instance
func NewRuntimeProfiler(opts ProfilingOptions, logger logrus.FieldLogger) *RuntimeProfiler {
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = time.Second
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 600
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())

	rp := &RuntimeProfiler{
		reportInterval: opts.ReportInterval,
		sampleInterval: opts.SampleInterval,
		maxSamples:     opts.MaxSamples,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
		metrics:        make(map[string]*window),
		operations:     make(map[string]*window),
	}
	rp.sample()
	return rp
}

// Start begins sampling memory statistics and, when a report interval is set, logging
// periodic reports. It can be called multiple times safely.
func (rp *RuntimeProfiler) Start() {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.running {
		return
	}
	rp.running = true

	rp.wg.Add(1)
	go rp.loop(rp.sampleInterval, rp.sample)

	if rp.reportInterval > 0 {
		rp.wg.Add(1)
		go rp.loop(rp.reportInterval, rp.emitStatusReport)
	}
}

// Stop stops the background goroutines and waits for them to exit.
func (rp *RuntimeProfiler) Stop() {
	rp.mu.Lock()
	if !rp.running {
		rp.mu.Unlock()
		return
	}
	rp.running = false
	rp.mu.Unlock()

	rp.cancel()
	rp.wg.Wait()
}

func (rp *RuntimeProfiler) loop(interval time.Duration, fn func()) {
	defer rp.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rp.ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func (rp *RuntimeProfiler) sample() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	rp.mu.Lock()
	rp.memStats = ms
	rp.mu.Unlock()
}

// RecordMetric records a custom metric value, such as the number of faces in an image.
func (rp *RuntimeProfiler) RecordMetric(name string, value float64) {
	rp.record(rp.metrics, name, value)
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The pipeline stage, e.g. "detect"
//
// Returns:
// - A function to call when the stage completes
func (rp *RuntimeProfiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		rp.record(rp.operations, name, float64(time.Since(start)))
	}
}

func (rp *RuntimeProfiler) record(series map[string]*window, name string, value float64) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	w, ok := series[name]
	if !ok {
		w = &window{values: make([]float64, 0, 16)}
		series[name] = w
	}
	w.add(value, rp.maxSamples)
}

// OperationStats summarizes the timings of one operation.
type OperationStats struct {
	Count int64         `json:"count"`
	Avg   time.Duration `json:"avg_ns"`
	P95   time.Duration `json:"p95_ns"`
	Min   time.Duration `json:"min_ns"`
	Max   time.Duration `json:"max_ns"`
}

// MetricStats summarizes the values of one custom metric.
type MetricStats struct {
	Count int64   `json:"count"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Snapshot is a point in time copy of the profiler state.
type Snapshot struct {
	Uptime     time.Duration             `json:"uptime_ns"`
	Goroutines int                       `json:"goroutines"`
	HeapAlloc  uint64                    `json:"heap_alloc_bytes"`
	NumGC      uint32                    `json:"num_gc"`
	Operations map[string]OperationStats `json:"operations"`
	Metrics    map[string]MetricStats    `json:"metrics"`
}

// Snapshot returns the current statistics. Averages cover the retained window.
func (rp *RuntimeProfiler) Snapshot() Snapshot {
	rp.mu.RLock()
	defer rp.mu.RUnlock()

	s := Snapshot{
		Uptime:     time.Since(rp.startTime),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  rp.memStats.HeapAlloc,
		NumGC:      rp.memStats.NumGC,
		Operations: make(map[string]OperationStats, len(rp.operations)),
		Metrics:    make(map[string]MetricStats, len(rp.metrics)),
	}
	for name, w := range rp.operations {
		s.Operations[name] = OperationStats{
			Count: w.count,
			Avg:   time.Duration(w.mean()),
			P95:   time.Duration(w.quantile(0.95)),
			Min:   time.Duration(w.min),
			Max:   time.Duration(w.max),
		}
	}
	for name, w := range rp.metrics {
		s.Metrics[name] = MetricStats{
			Count: w.count,
			Avg:   w.mean(),
			Min:   w.min,
			Max:   w.max,
		}
	}
	return s
}

// emitStatusReport logs one line per tracked operation and metric.
func (rp *RuntimeProfiler) emitStatusReport() {
	s := rp.Snapshot()

	rp.logger.WithFields(logrus.Fields{
		"uptime":     s.Uptime.Truncate(time.Millisecond),
		"goroutines": s.Goroutines,
		"heap_alloc": formatBytes(s.HeapAlloc),
		"num_gc":     s.NumGC,
	}).Info("📊 runtime status")

	for _, name := range sortedKeys(s.Operations) {
		op := s.Operations[name]
		rp.logger.WithFields(logrus.Fields{
			"operation": name,
			"avg":       op.Avg.Truncate(time.Microsecond),
			"p95":       op.P95.Truncate(time.Microsecond),
			"min":       op.Min.Truncate(time.Microsecond),
			"max":       op.Max.Truncate(time.Microsecond),
			"count":     op.Count,
		}).Info("⏱️ operation timing")
	}
	for _, name := range sortedKeys(s.Metrics) {
		m := s.Metrics[name]
		rp.logger.WithFields(logrus.Fields{
			"metric": name,
			"avg":    m.Avg,
			"min":    m.Min,
			"max":    m.Max,
			"count":  m.Count,
		}).Info("📈 metric")
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatBytes formats byte counts in human-readable format.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
