package models

import "time"

// Market: торгуемая пара на бирже.
// Symbol в формате "BTC/USDT", ID в том виде, как его ждёт API ("BTCUSDT").
type Market struct {
	Symbol      string
	ID          string
	Base        string
	Quote       string
	StepSize    float64 // LOT_SIZE.stepSize
	MinQty      float64 // LOT_SIZE.minQty
	MinNotional float64 // MIN_NOTIONAL / NOTIONAL.minNotional
}

// Candle: один OHLCV-бар.
type Candle struct {
	Start  time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Order: результат исполнения рыночного ордера.
type Order struct {
	ID            string
	ClientOrderID string
	Symbol        string
	Side          Side
	Amount        float64 // полученный объём за вычетом комиссии в базовой валюте (или запрошенный, если биржа не вернула)
	Price         float64 // средняя цена исполнения, 0 если неизвестна
	Cost          float64 // в котируемой валюте
	Fee           float64 // комиссия в базовой валюте
	Status        string
}
