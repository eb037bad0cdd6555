package helper

import (
	"strings"

	"github.com/shopspring/decimal"
)

const pairSep = "/"

// PairSymbol: ("btc", "USDT") -> "BTC/USDT".
func PairSymbol(base, quote string) string {
	return strings.ToUpper(strings.TrimSpace(base)) + pairSep + strings.ToUpper(strings.TrimSpace(quote))
}

// SplitPair: "BTC/USDT" -> ("BTC", "USDT", true).
func SplitPair(symbol string) (base, quote string, ok bool) {
	i := strings.Index(symbol, pairSep)
	if i <= 0 || i >= len(symbol)-1 {
		return "", "", false
	}
	return symbol[:i], symbol[i+1:], true
}

// FloorToStep округляет объём вниз до шага лота. При step <= 0 без округления.
func FloorToStep(v, step float64) decimal.Decimal {
	d := decimal.NewFromFloat(v)
	if step <= 0 {
		return d
	}
	s := decimal.NewFromFloat(step)
	return d.Div(s).Floor().Mul(s)
}

// StepPlaces: сколько знаков после запятой допускает шаг (0.001 -> 3).
func StepPlaces(step float64) int32 {
	if step <= 0 {
		return 8
	}
	exp := decimal.NewFromFloat(step).Exponent()
	if exp >= 0 {
		return 0
	}
	return -exp
}

// FormatQty: строка объёма для API биржи, уже округлённая вниз к шагу.
func FormatQty(v, step float64) string {
	return FloorToStep(v, step).StringFixed(StepPlaces(step))
}
