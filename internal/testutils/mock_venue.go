package testutils

import (
	"context"
	"sync"

	"spot_bot/internal/helper"
	"spot_bot/internal/models"

	"github.com/pkg/errors"
)

// MockVenue: биржа в памяти: балансы, цены, пары и журнал ордеров.
type MockVenue struct {
	mu sync.Mutex

	Balance    map[string]float64
	BalanceErr error
	Prices     map[string]float64
	TickerErr  map[string]error
	Markets    map[string]models.Market
	OrderErr   map[string]error
	// BuyFeeRate: доля купленного объёма, удерживаемая комиссией в базовой валюте.
	BuyFeeRate float64

	orders      []models.Order
	tickerCalls []string
}

func NewMockVenue(quoteBalance float64) *MockVenue {
	return &MockVenue{
		Balance:   map[string]float64{"USDT": quoteBalance},
		Prices:    map[string]float64{},
		TickerErr: map[string]error{},
		Markets:   map[string]models.Market{},
		OrderErr:  map[string]error{},
	}
}

// AddMarket регистрирует пару с шагом лота step и без минимумов.
func (m *MockVenue) AddMarket(symbol string, step float64) {
	base, quote, _ := helper.SplitPair(symbol)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Markets[symbol] = models.Market{Symbol: symbol, Base: base, Quote: quote, StepSize: step}
}

func (m *MockVenue) FetchBalance(context.Context) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BalanceErr != nil {
		return nil, m.BalanceErr
	}
	out := make(map[string]float64, len(m.Balance))
	for k, v := range m.Balance {
		out[k] = v
	}
	return out, nil
}

func (m *MockVenue) FetchTicker(_ context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickerCalls = append(m.tickerCalls, symbol)
	if err := m.TickerErr[symbol]; err != nil {
		return 0, err
	}
	px, ok := m.Prices[symbol]
	if !ok {
		return 0, errors.Errorf("no price for %s", symbol)
	}
	return px, nil
}

func (m *MockVenue) Market(_ context.Context, symbol string) (models.Market, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mk, ok := m.Markets[symbol]
	if !ok {
		return models.Market{}, errors.Errorf("unknown market %s", symbol)
	}
	return mk, nil
}

func (m *MockVenue) CreateMarketBuyOrder(_ context.Context, symbol string, amount float64) (models.Order, error) {
	return m.fill(symbol, models.SideBuy, amount)
}

func (m *MockVenue) CreateMarketSellOrder(_ context.Context, symbol string, amount float64) (models.Order, error) {
	return m.fill(symbol, models.SideSell, amount)
}

// fill исполняет ордер по текущей цене, комиссия только при BuyFeeRate > 0. Если цены нет, ордер уходит "вслепую" с Price=0.
func (m *MockVenue) fill(symbol string, side models.Side, amount float64) (models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.OrderErr[symbol]; err != nil {
		return models.Order{}, err
	}
	o := models.Order{
		ID:     symbol + "-" + string(side),
		Symbol: symbol,
		Side:   side,
		Amount: amount,
		Status: "FILLED",
	}
	if px := m.Prices[symbol]; px > 0 {
		o.Price = px
		o.Cost = px * amount
	}
	if side == models.SideBuy && m.BuyFeeRate > 0 {
		o.Fee = amount * m.BuyFeeRate
		o.Amount = amount - o.Fee
	}
	m.orders = append(m.orders, o)
	return o, nil
}

// Orders: копия журнала ордеров.
func (m *MockVenue) Orders() []models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Order, len(m.orders))
	copy(out, m.orders)
	return out
}

func (m *MockVenue) TickerCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.tickerCalls...)
}
