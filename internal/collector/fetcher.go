package collector

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/traderecks999/data/internal/model"
)

// QuoteSource is the market-data capability the reconciler resolves tickers against.
//
// FetchBulk returns the latest bar for every requested symbol the provider answered for.
// Symbols it silently dropped are simply absent from the map; an error means the whole
// request failed. FetchSingle reports ok=false when the provider has no data for the symbol.
type QuoteSource interface {
	FetchBulk(ctx context.Context, symbols []string) (map[string]model.Bar, error)
	FetchSingle(ctx context.Context, symbol string) (bar model.Bar, ok bool, err error)
	Name() string
}

func newHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

func toFloat(v interface{}) float64 {
	if v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

// latestBar picks the last bar with a positive close. Null closes (holidays,
// suspended sessions) are passed as 0 and skipped.
func latestBar(symbol, currency string, loc *time.Location, timestamps []int64, closes []float64) (model.Bar, bool) {
	n := len(timestamps)
	if len(closes) < n {
		n = len(closes)
	}
	for i := n - 1; i >= 0; i-- {
		b := model.Bar{Symbol: symbol, Close: closes[i], Currency: currency}
		if !b.Usable() {
			continue
		}
		b.MarketDate = time.Unix(timestamps[i], 0).In(loc).Format("2006-01-02")
		return b, true
	}
	return model.Bar{}, false
}
