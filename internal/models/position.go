package models

// Position: открытая спотовая позиция. Поля не меняются после создания.
type Position struct {
	BuyPrice float64 `json:"buy_price"`
	Amount   float64 `json:"amount"`
}

// Positions: symbol -> позиция. Единственное состояние, которое переживает рестарт.
type Positions map[string]Position

func (p Positions) Has(symbol string) bool {
	_, ok := p[symbol]
	return ok
}

// Clone: копия для сохранения без алиасинга.
func (p Positions) Clone() Positions {
	out := make(Positions, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
