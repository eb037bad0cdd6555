package positions

import (
	"context"

	"spot_bot/internal/modules/config"
	"spot_bot/pkg/db"

	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewStore выбирает хранилище по storage.driver. Для postgres пул поднимается здесь же
// и закрывается на OnStop.
func NewStore(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (Store, error) {
	switch cfg.Storage.Driver {
	case "", "file":
		return NewFile(cfg.Storage.PositionsFile, log.Named("positions")), nil
	case "postgres":
		pool, err := db.NewPool(context.Background(), db.PoolConfig{DSN: cfg.Storage.DSN})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create pool")
		}
		tx := db.NewPgTxManager(pool)
		s := NewPostgres(tx, log.Named("positions"))
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := pool.Ping(ctx); err != nil {
					return errors.Wrap(err, "postgres ping")
				}
				return s.EnsureSchema(ctx)
			},
			OnStop: func(context.Context) error {
				tx.Close()
				return nil
			},
		})
		return s, nil
	}
	return nil, errors.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func Module() fx.Option {
	return fx.Module("positions",
		fx.Provide(NewStore),
	)
}
