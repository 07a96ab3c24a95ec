package metrics

import (
	"context"
	"time"

	"github.com/golembase/indexer/pkg/repository"
)

// Collector periodically polls the repository to refresh gauge metrics that
// no single tick-engine call site can keep current on its own: entity
// counts by status, pending-queue depths and the dirty-block backlog.
type Collector struct {
	repo   *repository.Repository
	stopCh chan struct{}
}

// NewCollector creates a metrics collector backed by repo.
func NewCollector(repo *repository.Repository) *Collector {
	return &Collector{
		repo:   repo,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds, in a background
// goroutine, until Stop is called.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
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

// Stop halts the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c.collectEntityMetrics(ctx)
	c.collectQueueMetrics(ctx)
	c.collectDirtyBlockMetrics(ctx)
}

func (c *Collector) collectEntityMetrics(ctx context.Context) {
	counts, err := c.repo.EntityCountsByStatus(ctx)
	if err != nil {
		return
	}

	for status, count := range counts {
		EntitiesTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}

func (c *Collector) collectQueueMetrics(ctx context.Context) {
	pendingTx, pendingLog, reindex, err := c.repo.QueueDepths(ctx)
	if err != nil {
		return
	}

	PendingQueueDepth.WithLabelValues("tx").Set(float64(pendingTx))
	PendingQueueDepth.WithLabelValues("log").Set(float64(pendingLog))
	ReindexQueueDepth.Set(float64(reindex))
}

func (c *Collector) collectDirtyBlockMetrics(ctx context.Context) {
	count, err := c.repo.DirtyBlockCount(ctx)
	if err != nil {
		return
	}

	DirtyBlocksTotal.Set(float64(count))
}
