package reconciler

import "time"

// Options tunes the staged passes.
type Options struct {
	ChunkSize      int           // symbols per query in the bulk and retry passes
	SmallChunkSize int           // symbols per query in the small-chunk retry pass
	SingleCap      int           // max one-symbol queries in the fallback pass
	QueryTimeout   time.Duration // bound on every provider query
	Concurrency    int           // chunk queries in flight within one pass
	ChunkAttempts  int           // attempts per chunk request before leaving it to the next pass
	Backoff        time.Duration // base sleep between chunk attempts
	MissingCap     int           // max tickers listed in Stats.Missing

	// RunAt stamps fetchedAtUtc on every record resolved in this run. Zero means Now().
	RunAt time.Time
	// PreviousAsOf backs fetchedAtUtc for backfilled records that were stored without one.
	PreviousAsOf *time.Time
	Now          func() time.Time
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		ChunkSize:     120,
		SingleCap:     150,
		QueryTimeout:  30 * time.Second,
		Concurrency:   4,
		ChunkAttempts: 1,
		Backoff:       600 * time.Millisecond,
		MissingCap:    500,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ChunkSize <= 0 {
		o.ChunkSize = d.ChunkSize
	}
	if o.SmallChunkSize <= 0 {
		o.SmallChunkSize = o.ChunkSize / 3
	}
	if o.SmallChunkSize <= 0 {
		o.SmallChunkSize = 1
	}
	if o.SingleCap < 0 {
		o.SingleCap = 0
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = d.QueryTimeout
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.ChunkAttempts <= 0 {
		o.ChunkAttempts = 1
	}
	if o.Backoff < 0 {
		o.Backoff = 0
	}
	if o.MissingCap <= 0 {
		o.MissingCap = d.MissingCap
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.RunAt.IsZero() {
		o.RunAt = o.Now()
	}
	o.RunAt = o.RunAt.UTC().Truncate(time.Second)
	return o
}
