package model

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices are published as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Source is the provenance tag of a QuoteRecord: the last stage that supplied its value.
type Source string

const (
	SourceBulk           Source = "bulk"
	SourceRetryBulk      Source = "retry_bulk"
	SourceRetryBulkSmall Source = "retry_bulk_small"
	SourceSingle         Source = "single"
	SourcePrevious       Source = "previous"
	SourceMissing        Source = "missing"
)

// FetchedNow reports whether the value came from a query made in the current run.
func (s Source) FetchedNow() bool {
	switch s {
	case SourceBulk, SourceRetryBulk, SourceRetryBulkSmall, SourceSingle:
		return true
	}
	return false
}

// Bar is the latest trading bar a quote source returned for one symbol.
type Bar struct {
	Symbol     string
	Close      float64
	Currency   string
	MarketDate string // YYYY-MM-DD in exchange-local time, empty if unknown
}

// Usable reports whether the bar carries a price worth publishing.
func (b Bar) Usable() bool {
	return !math.IsNaN(b.Close) && !math.IsInf(b.Close, 0) && b.Close > 0
}

// QuoteRecord is the resolved state of one ticker in a snapshot.
type QuoteRecord struct {
	Price        decimal.NullDecimal `json:"price"`
	Currency     *string             `json:"currency"`
	MarketDate   *string             `json:"marketDate"`
	FetchedAtUTC *time.Time          `json:"fetchedAtUtc"`
	Source       Source              `json:"source"`
	Stale        bool                `json:"stale"`
}

// HasPrice reports whether the record carries a price.
func (r QuoteRecord) HasPrice() bool { return r.Price.Valid }

// FreshRecord builds a record for a bar resolved in the current run.
func FreshRecord(b Bar, src Source, fetchedAt time.Time) QuoteRecord {
	at := fetchedAt.UTC().Truncate(time.Second)
	return QuoteRecord{
		Price:        decimal.NewNullDecimal(decimal.NewFromFloat(b.Close)),
		Currency:     optString(b.Currency),
		MarketDate:   optString(b.MarketDate),
		FetchedAtUTC: &at,
		Source:       src,
	}
}

// MissingRecord builds the record for a ticker nothing could resolve.
func MissingRecord() QuoteRecord {
	return QuoteRecord{Source: SourceMissing}
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
