// Package profiler - Timing and outcome statistics for repeated fusion cycles.
package profiler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-multiview/fusion"
)

// Metric names recorded by Observe.
const (
	MetricDuplicates = "duplicates"
	MetricFallbacks  = "fallbacks"
	MetricMismatches = "consistency_mismatches"
	MetricRejected   = "rejected_labels"
	OperationFusion  = "fusion"
)

// Options configures the profiler.
type Options struct {
	// ReportInterval specifies how often to log a status report (default: 10s).
	ReportInterval time.Duration
	// MaxSamples bounds the retained samples per operation (default: 600).
	MaxSamples int
}

// TimeTracker tracks operation timing statistics.
type TimeTracker struct {
	durations []time.Duration
	total     time.Duration
	min       time.Duration
	max       time.Duration
	count     int64
}

// OperationStats summarizes one operation.
type OperationStats struct {
	Name  string
	Count int64
	Mean  time.Duration
	P95   time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Profiler accumulates stage timings and outcome counters.
//
// It is safe for concurrent use. Start launches a goroutine that logs a
// report every ReportInterval until Stop is called.
type Profiler struct {
	opts   Options
	logger *zap.Logger

	mu         sync.Mutex
	started    time.Time
	operations map[string]*TimeTracker
	counters   map[string]int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a profiler.
//
// Arguments:
//   - opts: Configuration options for the profiler.
//   - logger: The logger reports are written to; nil disables reports.
//
// Returns:
//   - *Profiler: A configured profiler.
func New(opts Options, logger *zap.Logger) *Profiler {
	if opts.ReportInterval == 0 {
		opts.ReportInterval = 10 * time.Second
	}
	if opts.MaxSamples == 0 {
		opts.MaxSamples = 600
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Profiler{
		opts:       opts,
		logger:     logger,
		started:    time.Now(),
		operations: make(map[string]*TimeTracker),
		counters:   make(map[string]int64),
	}
}

// Start begins periodic reporting. Calling it again is a no-op.
func (p *Profiler) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(p.opts.ReportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Report()
			}
		}
	}()
}

// Stop ends periodic reporting and waits for the reporter to exit.
func (p *Profiler) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The name of the operation to track.
//
// Returns:
//   - A function to call when the operation completes.
func (p *Profiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		p.RecordDuration(name, time.Since(start))
	}
}

// RecordDuration records one completed operation.
func (p *Profiler) RecordDuration(name string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.operations[name]
	if !ok {
		t = &TimeTracker{min: d, max: d}
		p.operations[name] = t
	}

	t.durations = append(t.durations, d)
	if len(t.durations) > p.opts.MaxSamples {
		t.total -= t.durations[0]
		t.durations = t.durations[1:]
	}
	t.total += d
	t.count++
	t.min = min(t.min, d)
	t.max = max(t.max, d)
}

// Add increments a counter.
func (p *Profiler) Add(name string, delta int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counters[name] += delta
}

// Observe records the duration and anomalies of a fusion outcome.
func (p *Profiler) Observe(out *fusion.Outcome) {
	if out == nil {
		return
	}
	p.RecordDuration(OperationFusion, out.Duration)
	p.Add(MetricDuplicates, int64(out.Duplicates))
	p.Add(MetricFallbacks, int64(len(out.Fallbacks)))
	p.Add(MetricRejected, int64(len(out.Rejected)))
	if !out.Consistency.OK {
		p.Add(MetricMismatches, 1)
	}
}

// Counter returns the value of a counter.
func (p *Profiler) Counter(name string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counters[name]
}

// Operations returns the statistics of every operation, sorted by name.
// Mean and P95 cover the retained samples; Min, Max and Count cover all.
func (p *Profiler) Operations() []OperationStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]OperationStats, 0, len(p.operations))
	for name, t := range p.operations {
		s := OperationStats{Name: name, Count: t.count, Min: t.min, Max: t.max}
		if n := len(t.durations); n > 0 {
			s.Mean = t.total / time.Duration(n)
			sorted := append([]time.Duration(nil), t.durations...)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
			s.P95 = sorted[(n*95-1)/100]
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Report logs the current statistics.
func (p *Profiler) Report() {
	for _, s := range p.Operations() {
		p.logger.Info("operation timing",
			zap.String("operation", s.Name),
			zap.Int64("count", s.Count),
			zap.Duration("mean", s.Mean),
			zap.Duration("p95", s.P95),
			zap.Duration("max", s.Max),
		)
	}

	p.mu.Lock()
	fields := []zap.Field{zap.Duration("uptime", time.Since(p.started))}
	for _, name := range sortedKeys(p.counters) {
		fields = append(fields, zap.Int64(name, p.counters[name]))
	}
	p.mu.Unlock()
	p.logger.Info("fusion counters", fields...)
}

// Table renders the operation statistics and counters.
func (p *Profiler) Table() string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Operation", "Count", "Mean", "P95", "Min", "Max"})
	for _, s := range p.Operations() {
		t.AppendRow(table.Row{s.Name, s.Count, s.Mean, s.P95, s.Min, s.Max})
	}

	p.mu.Lock()
	for _, name := range sortedKeys(p.counters) {
		t.AppendFooter(table.Row{name, fmt.Sprint(p.counters[name])})
	}
	p.mu.Unlock()

	return t.Render()
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
