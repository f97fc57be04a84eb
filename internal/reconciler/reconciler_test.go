package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traderecks999/data/internal/collector"
	"github.com/traderecks999/data/internal/model"
)

var runAt = time.Date(2025, 10, 16, 2, 0, 0, 0, time.UTC)

func testOptions() Options {
	return Options{
		ChunkSize:      120,
		SmallChunkSize: 40,
		SingleCap:      150,
		QueryTimeout:   time.Second,
		Concurrency:    4,
		ChunkAttempts:  1,
		MissingCap:     500,
		Now:            func() time.Time { return runAt },
	}
}

func bar(sym string, px float64) model.Bar {
	return model.Bar{Symbol: sym, Close: px, Currency: "AUD", MarketDate: "2025-10-16"}
}

func prevRecord(px string, at time.Time) model.QuoteRecord {
	ccy, date := "AUD", "2025-10-15"
	return model.QuoteRecord{
		Price:        decimal.NewNullDecimal(decimal.RequireFromString(px)),
		Currency:     &ccy,
		MarketDate:   &date,
		FetchedAtUTC: &at,
		Source:       model.SourceBulk,
	}
}

func assertInvariants(t *testing.T, targets []string, records map[string]model.QuoteRecord, stats model.Stats) {
	t.Helper()
	assert.Len(t, records, len(targets), "one record per target")
	for _, sym := range targets {
		rec, ok := records[sym]
		if !assert.True(t, ok, "missing record for %s", sym) {
			continue
		}
		assert.Equal(t, rec.Source == model.SourcePrevious, rec.Stale, "stale iff previous for %s", sym)
		assert.Equal(t, rec.Source != model.SourceMissing, rec.HasPrice(), "price presence for %s", sym)
	}
	assert.Equal(t, stats.CountTickers, stats.CountFetchedNow+stats.CountFilledFromPrevious+stats.CountMissing)
}

func TestReconcile_StagedScenario(t *testing.T) {
	var mu sync.Mutex
	bulkSeen := make(map[string]int)
	src := &collector.MockSource{
		BulkFunc: func(symbols []string) (map[string]model.Bar, error) {
			mu.Lock()
			defer mu.Unlock()
			out := make(map[string]model.Bar)
			for _, s := range symbols {
				bulkSeen[s]++
				switch {
				case s == "A" && bulkSeen[s] == 1:
					out[s] = bar(s, 1.10)
				case s == "B" && bulkSeen[s] == 2:
					out[s] = bar(s, 2.20)
				}
			}
			return out, nil
		},
		SingleFunc: func(string) (model.Bar, bool, error) { return model.Bar{}, false, nil },
	}
	yesterday := runAt.Add(-24 * time.Hour)
	previous := map[string]model.QuoteRecord{"C": prevRecord("10.50", yesterday)}

	targets := []string{"A", "B", "C"}
	records, stats := Reconcile(context.Background(), targets, src, previous, testOptions())
	assertInvariants(t, targets, records, stats)

	assert.Equal(t, model.SourceBulk, records["A"].Source)
	assert.Equal(t, model.SourceRetryBulk, records["B"].Source)
	c := records["C"]
	assert.Equal(t, model.SourcePrevious, c.Source)
	assert.True(t, c.Stale)
	assert.True(t, c.Price.Decimal.Equal(decimal.RequireFromString("10.50")), "price = %s", c.Price.Decimal)
	require.NotNil(t, c.FetchedAtUTC)
	assert.True(t, c.FetchedAtUTC.Equal(yesterday), "backfill must keep the stored fetch time")

	assert.Equal(t, 2, stats.CountFetchedNow)
	assert.Equal(t, 1, stats.CountFilledFromPrevious)
	assert.Equal(t, 0, stats.CountMissing)
	assert.Empty(t, stats.Missing)

	// Each stage only touches the previous stage's remainder.
	assert.Equal(t, [][]string{{"A", "B", "C"}, {"B", "C"}, {"C"}}, src.BulkCalls())
	assert.Equal(t, []string{"C"}, src.SingleCalls())
	assert.Equal(t, 1, stats.Detail.BulkOK)
	assert.Equal(t, 1, stats.Detail.RetryOK)
	assert.Equal(t, 1, stats.Detail.SingleAttempted)
}

func TestReconcile_FreshRecordsCarryRunTime(t *testing.T) {
	src := &collector.MockSource{Bars: map[string]model.Bar{"A": bar("A", 3.5)}}
	records, _ := Reconcile(context.Background(), []string{"A"}, src, nil, testOptions())

	rec := records["A"]
	require.NotNil(t, rec.FetchedAtUTC)
	assert.True(t, rec.FetchedAtUTC.Equal(runAt))
	require.NotNil(t, rec.Currency)
	assert.Equal(t, "AUD", *rec.Currency)
	require.NotNil(t, rec.MarketDate)
	assert.Equal(t, "2025-10-16", *rec.MarketDate)
	assert.False(t, rec.Stale)
}

func TestReconcile_ChunkFailureFallsThrough(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	src := &collector.MockSource{
		BulkFunc: func(symbols []string) (map[string]model.Bar, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 1 {
				return nil, errors.New("429 too many requests")
			}
			out := make(map[string]model.Bar)
			for _, s := range symbols {
				out[s] = bar(s, 1)
			}
			return out, nil
		},
	}
	targets := []string{"A", "B"}
	records, stats := Reconcile(context.Background(), targets, src, nil, testOptions())
	assertInvariants(t, targets, records, stats)

	assert.Equal(t, model.SourceRetryBulk, records["A"].Source)
	assert.Equal(t, model.SourceRetryBulk, records["B"].Source)
	assert.Equal(t, 1, stats.Detail.ChunkFailures)
}

func TestReconcile_ChunkAttemptsRetryWithinPass(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	src := &collector.MockSource{
		BulkFunc: func(symbols []string) (map[string]model.Bar, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls == 1 {
				return nil, errors.New("connection reset")
			}
			return map[string]model.Bar{"A": bar("A", 1)}, nil
		},
	}
	opts := testOptions()
	opts.ChunkAttempts = 2
	records, stats := Reconcile(context.Background(), []string{"A"}, src, nil, opts)

	assert.Equal(t, model.SourceBulk, records["A"].Source)
	assert.Equal(t, 0, stats.Detail.ChunkFailures)
}

func TestReconcile_SmallChunksAndConcurrency(t *testing.T) {
	var targets []string
	for i := 0; i < 10; i++ {
		targets = append(targets, fmt.Sprintf("T%02d", i))
	}
	// Bulk calls never answer; only the small-chunk pass sees chunks of 2.
	src := &collector.MockSource{
		BulkFunc: func(symbols []string) (map[string]model.Bar, error) {
			out := make(map[string]model.Bar)
			if len(symbols) <= 2 {
				for _, s := range symbols {
					out[s] = bar(s, 5)
				}
			}
			return out, nil
		},
	}
	opts := testOptions()
	opts.ChunkSize = 6
	opts.SmallChunkSize = 2
	records, stats := Reconcile(context.Background(), targets, src, nil, opts)
	assertInvariants(t, targets, records, stats)

	for _, sym := range targets {
		assert.Equal(t, model.SourceRetryBulkSmall, records[sym].Source, sym)
	}
	// 2 chunks bulk + 2 chunks retry + 5 chunks small.
	assert.Len(t, src.BulkCalls(), 9)
	assert.Empty(t, src.SingleCalls())
}

func TestReconcile_SingleFallbackIsCapped(t *testing.T) {
	src := &collector.MockSource{
		BulkFunc:   func([]string) (map[string]model.Bar, error) { return nil, errors.New("down") },
		SingleFunc: func(s string) (model.Bar, bool, error) { return bar(s, 7), true, nil },
	}
	opts := testOptions()
	opts.SingleCap = 2
	targets := []string{"A", "B", "C", "D"}
	records, stats := Reconcile(context.Background(), targets, src, nil, opts)
	assertInvariants(t, targets, records, stats)

	assert.Equal(t, []string{"A", "B"}, src.SingleCalls())
	assert.Equal(t, model.SourceSingle, records["A"].Source)
	assert.Equal(t, model.SourceSingle, records["B"].Source)
	assert.Equal(t, model.SourceMissing, records["C"].Source)
	assert.Equal(t, []string{"C", "D"}, stats.Missing)
	assert.Equal(t, 2, stats.Detail.SingleOK)
	assert.Equal(t, 3, stats.Detail.ChunkFailures)
}

func TestReconcile_IgnoresUnrequestedAndUnusable(t *testing.T) {
	src := &collector.MockSource{
		BulkFunc: func([]string) (map[string]model.Bar, error) {
			return map[string]model.Bar{
				"A":     bar("A", 0),
				"OTHER": bar("OTHER", 9),
			}, nil
		},
	}
	records, stats := Reconcile(context.Background(), []string{"A"}, src, nil, testOptions())

	assert.Len(t, records, 1)
	assert.Equal(t, model.SourceMissing, records["A"].Source)
	assert.False(t, records["A"].Stale)
	assert.Nil(t, records["A"].FetchedAtUTC)
	assert.Equal(t, 1, stats.CountMissing)
}

func TestReconcile_IdempotentWhenSourceUnreachable(t *testing.T) {
	down := func() *collector.MockSource {
		return &collector.MockSource{
			BulkFunc:   func([]string) (map[string]model.Bar, error) { return nil, errors.New("unreachable") },
			SingleFunc: func(string) (model.Bar, bool, error) { return model.Bar{}, false, errors.New("unreachable") },
		}
	}
	yesterday := runAt.Add(-24 * time.Hour)
	previous := map[string]model.QuoteRecord{
		"A": prevRecord("1.00", yesterday),
		"B": prevRecord("2.00", yesterday.Add(-time.Hour)),
	}
	targets := []string{"A", "B", "C"}

	first, firstStats := Reconcile(context.Background(), targets, down(), previous, testOptions())
	opts := testOptions()
	opts.Now = func() time.Time { return runAt.Add(6 * time.Hour) }
	second, secondStats := Reconcile(context.Background(), targets, down(), previous, opts)

	assert.Equal(t, first, second)
	assert.Equal(t, firstStats.CountFilledFromPrevious, secondStats.CountFilledFromPrevious)
	assert.Equal(t, firstStats.Missing, secondStats.Missing)
	assert.Equal(t, 2, firstStats.CountFilledFromPrevious)
	assert.Equal(t, 1, firstStats.CountMissing)

	// previous input is never mutated.
	assert.Equal(t, model.SourceBulk, previous["A"].Source)
	assert.False(t, previous["A"].Stale)
}

func TestReconcile_BackfillRules(t *testing.T) {
	down := &collector.MockSource{BulkFunc: func([]string) (map[string]model.Bar, error) { return nil, nil }}
	prevAsOf := runAt.Add(-48 * time.Hour)
	noPrice := model.QuoteRecord{Source: model.SourceMissing}
	noTime := prevRecord("4.00", time.Time{})
	noTime.FetchedAtUTC = nil
	chained := prevRecord("5.00", prevAsOf.Add(-24*time.Hour))
	chained.Source = model.SourcePrevious
	chained.Stale = true

	opts := testOptions()
	opts.SingleCap = 0
	opts.PreviousAsOf = &prevAsOf
	targets := []string{"NOPRICE", "NOTIME", "CHAINED"}
	records, stats := Reconcile(context.Background(), targets, down, map[string]model.QuoteRecord{
		"NOPRICE": noPrice,
		"NOTIME":  noTime,
		"CHAINED": chained,
	}, opts)
	assertInvariants(t, targets, records, stats)

	assert.Equal(t, model.SourceMissing, records["NOPRICE"].Source)
	require.NotNil(t, records["NOTIME"].FetchedAtUTC)
	assert.True(t, records["NOTIME"].FetchedAtUTC.Equal(prevAsOf))
	require.NotNil(t, records["CHAINED"].FetchedAtUTC)
	assert.True(t, records["CHAINED"].FetchedAtUTC.Equal(prevAsOf.Add(-24*time.Hour)))
	assert.Empty(t, down.SingleCalls())
}

type slowSource struct{}

func (slowSource) Name() string { return "slow" }

func (slowSource) FetchBulk(ctx context.Context, _ []string) (map[string]model.Bar, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowSource) FetchSingle(ctx context.Context, _ string) (model.Bar, bool, error) {
	<-ctx.Done()
	return model.Bar{}, false, ctx.Err()
}

func TestReconcile_TimeoutsNeverHang(t *testing.T) {
	opts := testOptions()
	opts.QueryTimeout = 20 * time.Millisecond
	opts.SingleCap = 2

	done := make(chan struct{})
	var stats model.Stats
	go func() {
		defer close(done)
		_, stats = Reconcile(context.Background(), []string{"A", "B"}, slowSource{}, nil, opts)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reconcile hung on a slow source")
	}
	assert.Equal(t, 2, stats.CountMissing)
	assert.Equal(t, 3, stats.Detail.ChunkFailures)
}

func TestReconcile_DedupesAndCapsMissing(t *testing.T) {
	src := &collector.MockSource{}
	opts := testOptions()
	opts.MissingCap = 2
	records, stats := Reconcile(context.Background(), []string{"A", "B", "A", "", "C"}, src, nil, opts)

	assert.Len(t, records, 3)
	assert.Equal(t, 3, stats.CountTickers)
	assert.Equal(t, 3, stats.CountMissing)
	assert.Equal(t, []string{"A", "B"}, stats.Missing)
}

func TestChunked(t *testing.T) {
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, chunked([]string{"a", "b", "c"}, 2))
	assert.Nil(t, chunked(nil, 3))
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{ChunkSize: 90}.withDefaults()
	assert.Equal(t, 30, o.SmallChunkSize)
	assert.Equal(t, 1, o.Concurrency)
	assert.Equal(t, 500, o.MissingCap)
	assert.False(t, o.RunAt.IsZero())
}
