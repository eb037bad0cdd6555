package strategy

import "spot_bot/internal/models"

// Signal: ответ политики по одному символу. Side == SideNone означает "держать".
type Signal struct {
	Symbol string
	Side   models.Side
	Price  float64
	Reason string
}

func (s Signal) Fired() bool { return s.Side != models.SideNone }

const (
	ReasonEntry      = "entry"
	ReasonTakeProfit = "take_profit"
	ReasonStopLoss   = "stop_loss"
)
