// file: internal/metrics/collector.go

package metrics

import (
	"sync"
	"time"
)

// PendingFunc reports the number of armed refresh jobs.
type PendingFunc func() int

// MetricsCollector periodically samples gauges that have no natural event to
// update them from.
type MetricsCollector struct {
	metrics        *Metrics
	pending        PendingFunc
	updateInterval time.Duration
	stopChan       chan struct{}
	stopOnce       sync.Once
	wg             sync.WaitGroup
}

// NewMetricsCollector creates a new metrics collector. pending may be nil.
func NewMetricsCollector(metrics *Metrics, pending PendingFunc, updateInterval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		metrics:        metrics,
		pending:        pending,
		updateInterval: updateInterval,
		stopChan:       make(chan struct{}),
	}
}

// Start begins periodic collection
func (mc *MetricsCollector) Start() {
	mc.wg.Add(1)
	go mc.collect()
}

// Stop shuts down the collector; safe to call more than once
func (mc *MetricsCollector) Stop() {
	mc.stopOnce.Do(func() { close(mc.stopChan) })
	mc.wg.Wait()
}

func (mc *MetricsCollector) collect() {
	defer mc.wg.Done()

	ticker := time.NewTicker(mc.updateInterval)
	defer ticker.Stop()

	mc.sample()
	for {
		select {
		case <-mc.stopChan:
			return
		case <-ticker.C:
			mc.sample()
		}
	}
}

func (mc *MetricsCollector) sample() {
	mc.metrics.UpdateSystemMetrics()
	if mc.pending != nil {
		mc.metrics.SetRefreshJobsPending(float64(mc.pending()))
	}
}
