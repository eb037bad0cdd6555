package runner

import (
	"fmt"
	"time"

	"spot_bot/internal/positions"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type OutcomeKind string

const (
	OutcomeBought           OutcomeKind = "bought"
	OutcomeSold             OutcomeKind = "sold"
	OutcomeHeld             OutcomeKind = "held"      // позиция открыта, выход не сработал
	OutcomeNoSignal         OutcomeKind = "no_signal" // кандидат оценён, вход не сработал
	OutcomeInsufficientData OutcomeKind = "insufficient_data"
	OutcomeSkipped          OutcomeKind = "skipped" // лимит позиций или объём ниже минимума пары
	OutcomeFailed           OutcomeKind = "failed"
)

type Phase string

const (
	PhaseAcquisition Phase = "acquisition"
	PhaseLiquidation Phase = "liquidation"
)

// Outcome: итог по одному символу в одной фазе.
type Outcome struct {
	Symbol string
	Phase  Phase
	Kind   OutcomeKind
	Price  float64
	Amount float64
	Cost   float64 // потрачено котируемой валюты (для покупок)
	Reason string
	Err    error
}

// Report: всё, что произошло за цикл.
type Report struct {
	Started    time.Time
	Finished   time.Time
	Store      positions.LoadStatus
	StoreCause error
	Balance    float64
	Notional   float64
	Candidates int
	Open       int
	Outcomes   []Outcome
}

// spent: стоимость покупки в котируемой валюте. Amount может быть уже за вычетом
// комиссии в базовой валюте, поэтому Price*Amount берём только без Cost от биржи.
func (o Outcome) spent() float64 {
	if o.Cost > 0 {
		return o.Cost
	}
	return o.Price * o.Amount
}

func (r *Report) add(o Outcome) { r.Outcomes = append(r.Outcomes, o) }

func (r Report) Count(kind OutcomeKind) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

// Outcome: первый итог по символу в фазе.
func (r Report) Outcome(symbol string, phase Phase) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Symbol == symbol && o.Phase == phase {
			return o, true
		}
	}
	return Outcome{}, false
}

// Err: объединённые ошибки по символам; nil, если сбоев не было.
func (r Report) Err() error {
	var err error
	for _, o := range r.Outcomes {
		if o.Kind == OutcomeFailed && o.Err != nil {
			err = multierr.Append(err, fmt.Errorf("%s %s: %w", o.Phase, o.Symbol, o.Err))
		}
	}
	return err
}

func (r Report) fields() []zap.Field {
	return []zap.Field{
		zap.String("store", r.Store.String()),
		zap.Float64("balance", r.Balance),
		zap.Int("candidates", r.Candidates),
		zap.Int("bought", r.Count(OutcomeBought)),
		zap.Int("sold", r.Count(OutcomeSold)),
		zap.Int("held", r.Count(OutcomeHeld)),
		zap.Int("no_signal", r.Count(OutcomeNoSignal)),
		zap.Int("insufficient_data", r.Count(OutcomeInsufficientData)),
		zap.Int("skipped", r.Count(OutcomeSkipped)),
		zap.Int("failed", r.Count(OutcomeFailed)),
		zap.Int("open", r.Open),
		zap.Duration("took", r.Finished.Sub(r.Started)),
	}
}
