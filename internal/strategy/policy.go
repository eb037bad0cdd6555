package strategy

import (
	"spot_bot/internal/helper"
	"spot_bot/internal/models"
	"spot_bot/internal/modules/config"

	"github.com/pkg/errors"
)

// ErrBelowMinimum: объём после округления к шагу лота меньше minQty/minNotional пары.
var ErrBelowMinimum = errors.New("order size below venue minimum")

// Policy: чистые правила входа/выхода и расчёт объёма.
type Policy struct {
	RSIThreshold    float64
	TakeProfit      float64
	StopLoss        float64
	CapitalFraction float64
}

func NewPolicy(cfg *config.Config) Policy {
	t := cfg.Trading
	return Policy{
		RSIThreshold:    t.RSIThreshold,
		TakeProfit:      t.TakeProfit,
		StopLoss:        t.StopLoss,
		CapitalFraction: t.CapitalFraction,
	}
}

// Entry: rsi < порог, гистограмма MACD > 0, close <= нижней полосы. Все сравнения строгие кроме полосы.
func (p Policy) Entry(symbol string, s models.Snapshot) Signal {
	sig := Signal{Symbol: symbol, Price: s.Close}
	if s.RSI < p.RSIThreshold && s.MACDDiff > 0 && s.Close <= s.BBLower {
		sig.Side = models.SideBuy
		sig.Reason = ReasonEntry
	}
	return sig
}

// Exit: обе границы включительно, take-profit проверяется первым.
func (p Policy) Exit(symbol string, pos models.Position, price float64) Signal {
	sig := Signal{Symbol: symbol, Price: price}
	switch {
	case price >= pos.BuyPrice*p.TakeProfit:
		sig.Side, sig.Reason = models.SideSell, ReasonTakeProfit
	case price <= pos.BuyPrice*p.StopLoss:
		sig.Side, sig.Reason = models.SideSell, ReasonStopLoss
	}
	return sig
}

// Notional: сколько котируемой валюты тратить на одну покупку.
func (p Policy) Notional(balance float64) float64 {
	if balance <= 0 {
		return 0
	}
	return balance * p.CapitalFraction
}

// Size: объём базовой валюты, округлённый вниз к шагу лота.
func (p Policy) Size(notional, price float64, m models.Market) (float64, error) {
	if price <= 0 {
		return 0, errors.Errorf("bad price %v", price)
	}
	amount, _ := helper.FloorToStep(notional/price, m.StepSize).Float64()
	if amount <= 0 || amount < m.MinQty || amount*price < m.MinNotional {
		return 0, errors.Wrapf(ErrBelowMinimum, "amount=%v notional=%.2f minQty=%v minNotional=%v",
			amount, notional, m.MinQty, m.MinNotional)
	}
	return amount, nil
}
