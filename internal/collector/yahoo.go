package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/traderecks999/data/internal/model"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

// YahooSource implements QuoteSource using the Yahoo Finance public API.
// Bulk queries go through the spark endpoint, single queries through chart.
type YahooSource struct {
	Client          *http.Client
	BaseURL         string
	DefaultCurrency string
	Location        *time.Location // fallback when the response carries no exchange timezone
	BulkRange       string
	SingleRange     string
}

// NewYahooSource creates a Yahoo Finance source with optional proxy support.
func NewYahooSource(proxyURL, defaultCurrency string, loc *time.Location, timeout time.Duration) *YahooSource {
	if loc == nil {
		loc = time.UTC
	}
	return &YahooSource{
		Client:          newHTTPClient(proxyURL, timeout),
		BaseURL:         yahooBaseURL,
		DefaultCurrency: defaultCurrency,
		Location:        loc,
		BulkRange:       "7d",
		SingleRange:     "10d",
	}
}

func (s *YahooSource) Name() string { return "yahoo" }

func (s *YahooSource) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func (s *YahooSource) location(name string) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return s.Location
}

func (s *YahooSource) currency(c string) string {
	if c != "" {
		return c
	}
	return s.DefaultCurrency
}

// FetchBulk queries the spark endpoint for all symbols at once. The endpoint is
// known to drop symbols without reporting an error; those are left out of the result.
func (s *YahooSource) FetchBulk(ctx context.Context, symbols []string) (map[string]model.Bar, error) {
	if len(symbols) == 0 {
		return map[string]model.Bar{}, nil
	}
	u := fmt.Sprintf("%s/v7/finance/spark?symbols=%s&range=%s&interval=1d",
		s.BaseURL, url.QueryEscape(strings.Join(symbols, ",")), s.BulkRange)
	body, err := s.get(ctx, u)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("yahoo spark: invalid json")
	}
	doc := gjson.ParseBytes(body)
	if e := doc.Get("spark.error"); e.Exists() && e.Type != gjson.Null {
		return nil, fmt.Errorf("yahoo spark error: %s", e.Get("description").String())
	}

	out := make(map[string]model.Bar, len(symbols))
	doc.Get("spark.result").ForEach(func(_, res gjson.Result) bool {
		sym := res.Get("symbol").String()
		if sym == "" {
			return true
		}
		resp := res.Get("response.0")
		meta := resp.Get("meta")
		var ts []int64
		for _, v := range resp.Get("timestamp").Array() {
			ts = append(ts, v.Int())
		}
		var closes []float64
		for _, v := range resp.Get("indicators.quote.0.close").Array() {
			closes = append(closes, v.Float()) // null reads as 0
		}
		if bar, ok := latestBar(sym, s.currency(meta.Get("currency").String()),
			s.location(meta.Get("exchangeTimezoneName").String()), ts, closes); ok {
			out[sym] = bar
		}
		return true
	})
	return out, nil
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency             string `json:"currency"`
				ExchangeTimezoneName string `json:"exchangeTimezoneName"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []interface{} `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchSingle queries the chart endpoint for one symbol.
func (s *YahooSource) FetchSingle(ctx context.Context, symbol string) (model.Bar, bool, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=%s",
		s.BaseURL, url.PathEscape(symbol), s.SingleRange)
	body, err := s.get(ctx, u)
	if err != nil {
		return model.Bar{}, false, err
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return model.Bar{}, false, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return model.Bar{}, false, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return model.Bar{}, false, nil
	}

	result := chart.Chart.Result[0]
	raw := result.Indicators.Quote[0].Close
	closes := make([]float64, len(raw))
	for i, v := range raw {
		closes[i] = toFloat(v)
	}
	bar, ok := latestBar(symbol, s.currency(result.Meta.Currency),
		s.location(result.Meta.ExchangeTimezoneName), result.Timestamp, closes)
	return bar, ok, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
