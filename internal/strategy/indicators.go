package strategy

import (
	"context"
	"math"

	"spot_bot/internal/models"
	"spot_bot/internal/modules/config"

	"github.com/markcheno/go-talib"
	"github.com/pkg/errors"
)

// ErrInsufficientData: истории меньше самого длинного окна прогрева или индикатор дал NaN/Inf.
var ErrInsufficientData = errors.New("insufficient indicator history")

type CandleSource interface {
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error)
}

// Evaluator считает RSI, гистограмму MACD и полосы Боллинджера по последним барам.
type Evaluator struct {
	src CandleSource
	p   config.Indicators
}

func NewEvaluator(src CandleSource, cfg *config.Config) *Evaluator {
	return &Evaluator{src: src, p: cfg.Indicators}
}

func (e *Evaluator) Evaluate(ctx context.Context, symbol string) (models.Snapshot, error) {
	candles, err := e.src.FetchOHLCV(ctx, symbol, e.p.Timeframe, e.p.Bars)
	if err != nil {
		return models.Snapshot{}, err
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	snap, err := Compute(closes, e.p)
	if err != nil {
		return models.Snapshot{}, errors.Wrapf(err, "%s: %d bars", symbol, len(closes))
	}
	return snap, nil
}

// Compute: значения индикаторов на последнем баре.
func Compute(closes []float64, p config.Indicators) (models.Snapshot, error) {
	n := len(closes)
	if n == 0 || n < p.WarmupBars() {
		return models.Snapshot{}, ErrInsufficientData
	}
	for _, c := range closes {
		if !finite(c) {
			return models.Snapshot{}, ErrInsufficientData
		}
	}

	rsi := talib.Rsi(closes, p.RSIPeriod)
	_, _, hist := talib.Macd(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	upper, _, lower := talib.BBands(closes, p.BBPeriod, p.BBDeviations, p.BBDeviations, talib.SMA)

	last := n - 1
	s := models.Snapshot{
		RSI:      rsi[last],
		MACDDiff: hist[last],
		BBLower:  lower[last],
		BBUpper:  upper[last],
		Close:    closes[last],
	}
	for _, v := range []float64{s.RSI, s.MACDDiff, s.BBLower, s.BBUpper} {
		if !finite(v) {
			return models.Snapshot{}, ErrInsufficientData
		}
	}
	return s, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
