// Package reconciler turns a target ticker list into a complete snapshot record set.
//
// Tickers flow through an ordered list of stages. Each stage only sees what the
// previous one left unresolved and tags whatever it resolves with its Source:
//
//	bulk -> retry_bulk -> retry_bulk_small -> single -> previous -> missing
//
// A ticker absent from a bulk response means "ask again more narrowly", never
// "does not exist". Provider failures are never returned; they only leave
// tickers unresolved for the next stage.
package reconciler

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/traderecks999/data/internal/collector"
	"github.com/traderecks999/data/internal/model"
)

// Reconcile resolves every target ticker to exactly one QuoteRecord.
// previous is read-only; it may be nil.
func Reconcile(ctx context.Context, targets []string, source collector.QuoteSource, previous map[string]model.QuoteRecord, opts Options) (map[string]model.QuoteRecord, model.Stats) {
	opts = opts.withDefaults()
	r := &run{
		opts:    opts,
		source:  source,
		records: make(map[string]model.QuoteRecord, len(targets)),
	}
	start := opts.Now()

	order := dedupe(targets)
	pending := order
	r.detail.Requested = len(order)

	pending = r.bulkStage(ctx, pending, opts.ChunkSize, model.SourceBulk)
	pending = r.bulkStage(ctx, pending, opts.ChunkSize, model.SourceRetryBulk)
	pending = r.bulkStage(ctx, pending, opts.SmallChunkSize, model.SourceRetryBulkSmall)
	pending = r.singleStage(ctx, pending)
	pending = r.backfill(pending, previous)
	for _, t := range pending {
		r.records[t] = model.MissingRecord()
	}

	r.detail.DurationMS = opts.Now().Sub(start).Milliseconds()
	stats := summarize(order, r.records, opts.MissingCap)
	stats.Detail = r.detail
	log.Printf("[INFO] reconcile done: tickers=%d fresh=%d previous=%d missing=%d",
		stats.CountTickers, stats.CountFetchedNow, stats.CountFilledFromPrevious, stats.CountMissing)
	return r.records, stats
}

type run struct {
	opts    Options
	source  collector.QuoteSource
	records map[string]model.QuoteRecord
	detail  model.RunStats
}

// bulkStage queries pending in chunks of size and returns what is still unresolved.
func (r *run) bulkStage(ctx context.Context, pending []string, size int, tag model.Source) []string {
	if len(pending) == 0 {
		return pending
	}
	chunks := chunked(pending, size)

	var (
		mu       sync.Mutex
		found    = make(map[string]model.Bar)
		failures int
	)
	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for i, ch := range chunks {
		g.Go(func() error {
			bars, ok := r.queryChunk(ctx, ch, i+1, len(chunks), tag)
			mu.Lock()
			defer mu.Unlock()
			if !ok {
				failures++
				return nil
			}
			for sym, b := range bars {
				found[sym] = b
			}
			return nil
		})
	}
	_ = g.Wait() // chunk workers never return errors

	for sym, b := range found {
		r.records[sym] = model.FreshRecord(b, tag, r.opts.RunAt)
	}
	r.detail.ChunkFailures += failures
	switch tag {
	case model.SourceBulk:
		r.detail.BulkOK += len(found)
	case model.SourceRetryBulk:
		r.detail.RetryOK += len(found)
	case model.SourceRetryBulkSmall:
		r.detail.RetrySmallOK += len(found)
	}

	rest := r.unresolved(pending)
	log.Printf("[INFO] %s pass: resolved %d/%d (chunks=%d size=%d failed=%d)",
		tag, len(found), len(pending), len(chunks), size, failures)
	return rest
}

// queryChunk runs one chunk request with bounded attempts. It returns only
// requested symbols with usable prices; ok is false when every attempt failed.
func (r *run) queryChunk(ctx context.Context, chunk []string, idx, total int, tag model.Source) (map[string]model.Bar, bool) {
	for attempt := 1; attempt <= r.opts.ChunkAttempts; attempt++ {
		qctx, cancel := context.WithTimeout(ctx, r.opts.QueryTimeout)
		bars, err := r.source.FetchBulk(qctx, chunk)
		cancel()
		if err == nil {
			return usableSubset(chunk, bars), true
		}
		log.Printf("[WARN] %s chunk %d/%d attempt %d/%d failed: %v",
			tag, idx, total, attempt, r.opts.ChunkAttempts, err)
		if attempt < r.opts.ChunkAttempts && !sleep(ctx, r.opts.Backoff*time.Duration(attempt*attempt)) {
			break
		}
	}
	return nil, false
}

// singleStage queries the first SingleCap pending tickers one at a time.
func (r *run) singleStage(ctx context.Context, pending []string) []string {
	if len(pending) == 0 || r.opts.SingleCap == 0 {
		return pending
	}
	limit := len(pending)
	if limit > r.opts.SingleCap {
		limit = r.opts.SingleCap
		log.Printf("[WARN] single pass capped: querying %d of %d unresolved tickers", limit, len(pending))
	}

	resolved := 0
	for _, sym := range pending[:limit] {
		r.detail.SingleAttempted++
		qctx, cancel := context.WithTimeout(ctx, r.opts.QueryTimeout)
		bar, ok, err := r.source.FetchSingle(qctx, sym)
		cancel()
		if err != nil {
			log.Printf("[WARN] single query %s failed: %v", sym, err)
			continue
		}
		if !ok || !bar.Usable() {
			continue
		}
		r.records[sym] = model.FreshRecord(bar, model.SourceSingle, r.opts.RunAt)
		resolved++
	}
	r.detail.SingleOK += resolved

	log.Printf("[INFO] %s pass: resolved %d/%d (attempted=%d)", model.SourceSingle, resolved, len(pending), limit)
	return r.unresolved(pending)
}

// backfill copies last-known-good values from the previous snapshot.
func (r *run) backfill(pending []string, previous map[string]model.QuoteRecord) []string {
	if len(pending) == 0 || len(previous) == 0 {
		return pending
	}
	filled := 0
	for _, sym := range pending {
		prev, ok := previous[sym]
		if !ok || !prev.HasPrice() {
			continue
		}
		r.records[sym] = staleCopy(prev, r.opts.PreviousAsOf)
		filled++
	}
	log.Printf("[INFO] %s pass: filled %d/%d from previous snapshot", model.SourcePrevious, filled, len(pending))
	return r.unresolved(pending)
}

func staleCopy(prev model.QuoteRecord, previousAsOf *time.Time) model.QuoteRecord {
	rec := model.QuoteRecord{
		Price:  prev.Price,
		Source: model.SourcePrevious,
		Stale:  true,
	}
	if prev.Currency != nil {
		c := *prev.Currency
		rec.Currency = &c
	}
	if prev.MarketDate != nil {
		d := *prev.MarketDate
		rec.MarketDate = &d
	}
	switch {
	case prev.FetchedAtUTC != nil:
		at := *prev.FetchedAtUTC
		rec.FetchedAtUTC = &at
	case previousAsOf != nil:
		at := previousAsOf.UTC()
		rec.FetchedAtUTC = &at
	}
	return rec
}

func (r *run) unresolved(pending []string) []string {
	rest := make([]string, 0, len(pending))
	for _, sym := range pending {
		if _, ok := r.records[sym]; !ok {
			rest = append(rest, sym)
		}
	}
	return rest
}

func summarize(order []string, records map[string]model.QuoteRecord, missingCap int) model.Stats {
	stats := model.Stats{CountTickers: len(order), Missing: []string{}}
	for _, sym := range order {
		switch src := records[sym].Source; {
		case src.FetchedNow():
			stats.CountFetchedNow++
		case src == model.SourcePrevious:
			stats.CountFilledFromPrevious++
		default:
			stats.CountMissing++
			if len(stats.Missing) < missingCap {
				stats.Missing = append(stats.Missing, sym)
			}
		}
	}
	return stats
}

func usableSubset(chunk []string, bars map[string]model.Bar) map[string]model.Bar {
	out := make(map[string]model.Bar, len(bars))
	for _, sym := range chunk {
		if b, ok := bars[sym]; ok && b.Usable() {
			out[sym] = b
		}
	}
	return out
}

func chunked(seq []string, n int) [][]string {
	var out [][]string
	for i := 0; i < len(seq); i += n {
		end := i + n
		if end > len(seq) {
			end = len(seq)
		}
		out = append(out, seq[i:end])
	}
	return out
}

func dedupe(targets []string) []string {
	seen := make(map[string]bool, len(targets))
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// sleep waits for d or until ctx is done; it reports whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
