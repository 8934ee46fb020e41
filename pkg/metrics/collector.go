package metrics

import (
	"sync"
	"time"
)

// PendingCounter reports the number of directives awaiting a response
type PendingCounter interface {
	Pending() int
}

// Collector periodically samples gauges that are not updated inline
type Collector struct {
	pending  PendingCounter
	interval time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(pending PendingCounter, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		pending:  pending,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

func (c *Collector) collect() {
	if c.pending != nil {
		ReceptorPendingRequests.Set(float64(c.pending.Pending()))
	}
}
