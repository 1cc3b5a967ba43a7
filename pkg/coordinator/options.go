package coordinator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"hive/pkg/catalog"
	"hive/pkg/eventlog"
)

// Journal records coordination events. *eventlog.Writer satisfies it.
type Journal interface {
	Record(ctx context.Context, e eventlog.Event) error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithJournal records every mutating operation to j.
func WithJournal(j Journal) Option {
	return func(c *Coordinator) { c.journal = j }
}

// WithCatalog makes SetProtocol reject names the catalog does not contain.
func WithCatalog(cat *catalog.Catalog) Option {
	return func(c *Coordinator) { c.catalog = cat }
}

// WithPollInterval sets the trigger poll interval used by Await.
func WithPollInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.poll = d
		}
	}
}
