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

	"github.com/traderecks999/data/internal/model"
)

// RESTSource implements QuoteSource against a vendor quote REST API.
type RESTSource struct {
	BaseURL         string
	APIKey          string
	DefaultCurrency string
	Client          *http.Client
}

// NewRESTSource creates a new source with optional proxy support.
func NewRESTSource(baseURL, apiKey, defaultCurrency, proxyURL string, timeout time.Duration) *RESTSource {
	return &RESTSource{
		BaseURL:         strings.TrimRight(baseURL, "/"),
		APIKey:          apiKey,
		DefaultCurrency: defaultCurrency,
		Client:          newHTTPClient(proxyURL, timeout),
	}
}

func (s *RESTSource) Name() string { return "rest" }

// restQuote is the expected JSON shape from the quote API.
type restQuote struct {
	Symbol   string  `json:"symbol"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	Date     string  `json:"date"`
}

func (s *RESTSource) toBar(q restQuote) model.Bar {
	ccy := q.Currency
	if ccy == "" {
		ccy = s.DefaultCurrency
	}
	return model.Bar{Symbol: q.Symbol, Close: q.Price, Currency: ccy, MarketDate: q.Date}
}

func (s *RESTSource) do(ctx context.Context, endpoint string, out interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch quotes: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("fetch quotes: status %d, body: %s", resp.StatusCode, truncate(body, 200))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode quotes: %w", err)
	}
	return resp.StatusCode, nil
}

func (s *RESTSource) FetchBulk(ctx context.Context, symbols []string) (map[string]model.Bar, error) {
	endpoint := fmt.Sprintf("%s/api/v1/quotes?symbols=%s", s.BaseURL, url.QueryEscape(strings.Join(symbols, ",")))
	var quotes []restQuote
	if _, err := s.do(ctx, endpoint, &quotes); err != nil {
		return nil, err
	}
	out := make(map[string]model.Bar, len(quotes))
	for _, q := range quotes {
		if q.Symbol == "" {
			continue
		}
		out[q.Symbol] = s.toBar(q)
	}
	return out, nil
}

func (s *RESTSource) FetchSingle(ctx context.Context, symbol string) (model.Bar, bool, error) {
	endpoint := fmt.Sprintf("%s/api/v1/quote?symbol=%s", s.BaseURL, url.QueryEscape(symbol))
	var q restQuote
	status, err := s.do(ctx, endpoint, &q)
	if err != nil {
		return model.Bar{}, false, err
	}
	if status == http.StatusNotFound {
		return model.Bar{}, false, nil
	}
	if q.Symbol == "" {
		q.Symbol = symbol
	}
	return s.toBar(q), true, nil
}
