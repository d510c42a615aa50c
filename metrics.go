package shardex

import "sync/atomic"

// Stats is a point-in-time snapshot of coordinator activity. The plain
// counters reset with ResetStats; the cumulative counters never do.
type Stats struct {
	Adds           int64
	DeletesByKey   int64
	DeletesByQuery int64
	Errors         int64

	CumulativeAdds           int64
	CumulativeDeletesByKey   int64
	CumulativeDeletesByQuery int64
	CumulativeErrors         int64
}

// counters tracks write-path activity. Every operation is counted on
// entry, errors on exit, so Adds-Errors is not an exact success count
// when deletes fail too.
type counters struct {
	adds           atomic.Int64
	deletesByKey   atomic.Int64
	deletesByQuery atomic.Int64
	errors         atomic.Int64

	cumAdds           atomic.Int64
	cumDeletesByKey   atomic.Int64
	cumDeletesByQuery atomic.Int64
	cumErrors         atomic.Int64
}

func (c *counters) incAdd() {
	c.adds.Add(1)
	c.cumAdds.Add(1)
}

func (c *counters) incDeleteByKey() {
	c.deletesByKey.Add(1)
	c.cumDeletesByKey.Add(1)
}

func (c *counters) incDeleteByQuery() {
	c.deletesByQuery.Add(1)
	c.cumDeletesByQuery.Add(1)
}

func (c *counters) incError() {
	c.errors.Add(1)
	c.cumErrors.Add(1)
}

func (c *counters) snapshot() Stats {
	return Stats{
		Adds:           c.adds.Load(),
		DeletesByKey:   c.deletesByKey.Load(),
		DeletesByQuery: c.deletesByQuery.Load(),
		Errors:         c.errors.Load(),

		CumulativeAdds:           c.cumAdds.Load(),
		CumulativeDeletesByKey:   c.cumDeletesByKey.Load(),
		CumulativeDeletesByQuery: c.cumDeletesByQuery.Load(),
		CumulativeErrors:         c.cumErrors.Load(),
	}
}

// reset clears the point-in-time counters. Cumulative counters keep
// running.
func (c *counters) reset() {
	c.adds.Store(0)
	c.deletesByKey.Store(0)
	c.deletesByQuery.Store(0)
	c.errors.Store(0)
}
