package kgraph

import (
	"log/slog"
	"time"
)

// --------------------------------------------------------------------------
// Background compaction: tombstoned entities accumulate until Compact
// physically removes them. With Options.CompactionInterval set, the engine
// runs Compact on a ticker; otherwise callers compact explicitly.
// --------------------------------------------------------------------------

type compactor struct {
	store    *GraphStore
	logger   *slog.Logger
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func startCompactor(store *GraphStore, logger *slog.Logger, interval time.Duration) *compactor {
	if interval <= 0 {
		return nil
	}
	c := &compactor{
		store:    store,
		logger:   logger,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *compactor) run() {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.store.Compact()
			c.logger.Debug("compaction pass complete")
		case <-c.stop:
			return
		}
	}
}

// halt stops the loop and waits for the in-flight pass, if any. Nil-safe.
func (c *compactor) halt() {
	if c == nil {
		return
	}
	close(c.stop)
	<-c.done
}
