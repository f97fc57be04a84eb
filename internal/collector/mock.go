package collector

import (
	"context"
	"sync"

	"github.com/traderecks999/data/internal/model"
)

// MockSource returns controllable data for development and testing.
//
// With no funcs set it answers from Bars. BulkFunc and SingleFunc override
// that to script partial responses and failures. Every call is recorded.
type MockSource struct {
	Bars       map[string]model.Bar
	BulkFunc   func(symbols []string) (map[string]model.Bar, error)
	SingleFunc func(symbol string) (model.Bar, bool, error)

	mu          sync.Mutex
	bulkCalls   [][]string
	singleCalls []string
}

func (m *MockSource) Name() string { return "mock" }

func (m *MockSource) FetchBulk(ctx context.Context, symbols []string) (map[string]model.Bar, error) {
	m.mu.Lock()
	m.bulkCalls = append(m.bulkCalls, append([]string(nil), symbols...))
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.BulkFunc != nil {
		return m.BulkFunc(symbols)
	}
	out := make(map[string]model.Bar)
	for _, s := range symbols {
		if b, ok := m.Bars[s]; ok {
			out[s] = b
		}
	}
	return out, nil
}

func (m *MockSource) FetchSingle(ctx context.Context, symbol string) (model.Bar, bool, error) {
	m.mu.Lock()
	m.singleCalls = append(m.singleCalls, symbol)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return model.Bar{}, false, err
	}
	if m.SingleFunc != nil {
		return m.SingleFunc(symbol)
	}
	b, ok := m.Bars[symbol]
	return b, ok, nil
}

// BulkCalls returns the symbol lists of every bulk query made so far.
func (m *MockSource) BulkCalls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.bulkCalls...)
}

// SingleCalls returns the symbols of every single query made so far.
func (m *MockSource) SingleCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.singleCalls...)
}
