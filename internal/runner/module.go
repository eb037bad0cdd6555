package runner

import (
	"context"

	"spot_bot/internal/exchange"
	"spot_bot/internal/strategy"
	"spot_bot/internal/watchlist"

	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			func(b *exchange.Binance) Venue { return b },
			func(s *watchlist.Selector) Candidates { return s },
			func(e *strategy.Evaluator) Evaluator { return e },
			New,
			func(r *Runner) Cycler { return r },
			NewScheduler,
		),
		fx.Invoke(run),
	)
}

// run запускает планировщик на OnStart. Эскалация останавливает приложение с кодом 1.
func run(lc fx.Lifecycle, s *Scheduler, sd fx.Shutdowner, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				err := s.Run(ctx)
				if errors.Is(err, ErrEscalated) {
					log.Error("scheduler escalated, shutting down", zap.Error(err))
					_ = sd.Shutdown(fx.ExitCode(1))
					return
				}
				if err != nil {
					log.Error("scheduler stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
