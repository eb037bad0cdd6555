package testutils

import (
	"context"
	"sync"

	"spot_bot/internal/models"

	"github.com/pkg/errors"
)

// MockEvaluator отдаёт заранее заданные снимки и запоминает, кого спросили.
type MockEvaluator struct {
	mu        sync.Mutex
	Snapshots map[string]models.Snapshot
	Errs      map[string]error
	calls     []string
}

func NewMockEvaluator() *MockEvaluator {
	return &MockEvaluator{Snapshots: map[string]models.Snapshot{}, Errs: map[string]error{}}
}

func (m *MockEvaluator) Evaluate(_ context.Context, symbol string) (models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, symbol)
	if err := m.Errs[symbol]; err != nil {
		return models.Snapshot{}, err
	}
	s, ok := m.Snapshots[symbol]
	if !ok {
		return models.Snapshot{}, errors.Errorf("no snapshot for %s", symbol)
	}
	return s, nil
}

func (m *MockEvaluator) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Buyable: снимок, на котором срабатывает вход при пороге RSI 35.
func Buyable(price float64) models.Snapshot {
	return models.Snapshot{RSI: 30, MACDDiff: 0.5, BBLower: price, BBUpper: price * 1.1, Close: price}
}

// Neutral: снимок без сигнала.
func Neutral(price float64) models.Snapshot {
	return models.Snapshot{RSI: 50, MACDDiff: -0.1, BBLower: price * 0.9, BBUpper: price * 1.1, Close: price}
}

// MockCandidates: фиксированный список кандидатов.
type MockCandidates struct {
	Symbols []string
	Err     error
}

func (m *MockCandidates) TopSymbols(_ context.Context, limit int) ([]string, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Symbols) > limit {
		return m.Symbols[:limit], nil
	}
	return m.Symbols, nil
}
