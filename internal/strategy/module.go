package strategy

import (
	"spot_bot/internal/exchange"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("strategy",
		fx.Provide(
			func(b *exchange.Binance) CandleSource { return b },
			NewEvaluator,
			NewPolicy,
		),
	)
}
