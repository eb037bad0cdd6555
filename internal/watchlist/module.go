package watchlist

import (
	"spot_bot/internal/exchange"
	"spot_bot/internal/modules/config"
	"spot_bot/internal/ranking"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Module("watchlist",
		fx.Provide(
			ranking.NewCoinGecko,
			func(cfg *config.Config, r *ranking.CoinGecko, b *exchange.Binance, log *zap.Logger) *Selector {
				return NewSelector(r, b, cfg.Trading.QuoteCurrency, log.Named("watchlist"))
			},
		),
	)
}
