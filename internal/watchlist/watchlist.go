package watchlist

import (
	"context"

	"spot_bot/internal/helper"
	"spot_bot/internal/models"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Ranker interface {
	TopByVolume(ctx context.Context, limit int) ([]string, error)
}

type MarketLister interface {
	LoadMarkets(ctx context.Context) (map[string]models.Market, error)
}

// Selector: кандидаты на вход: топ по объёму ∩ пары, которыми торгует биржа.
type Selector struct {
	ranker  Ranker
	markets MarketLister
	quote   string
	log     *zap.Logger
}

func NewSelector(r Ranker, m MarketLister, quote string, log *zap.Logger) *Selector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Selector{ranker: r, markets: m, quote: quote, log: log}
}

// TopSymbols сохраняет порядок рейтинга. Ошибка любого из источников пробрасывается.
func (s *Selector) TopSymbols(ctx context.Context, limit int) ([]string, error) {
	ranked, err := s.ranker.TopByVolume(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(err, "ranking")
	}
	available, err := s.markets.LoadMarkets(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "venue markets")
	}

	out := make([]string, 0, len(ranked))
	seen := make(map[string]struct{}, len(ranked))
	for _, base := range ranked {
		sym := helper.PairSymbol(base, s.quote)
		if _, ok := available[sym]; !ok {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	s.log.Debug("candidates selected",
		zap.Int("ranked", len(ranked)),
		zap.Int("tradable", len(out)),
		zap.Strings("symbols", out),
	)
	return out, nil
}
