package main

import (
	"context"

	"spot_bot/internal/exchange"
	"spot_bot/internal/modules/config"
	"spot_bot/internal/modules/health"
	"spot_bot/internal/notify"
	"spot_bot/internal/positions"
	"spot_bot/internal/runner"
	"spot_bot/internal/strategy"
	"spot_bot/internal/watchlist"
	"spot_bot/pkg/logger"
	"spot_bot/pkg/tracing"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func newLogger(lc fx.Lifecycle, cfg *config.Config) (*zap.Logger, error) {
	logger.SetServiceName(cfg.Service.Name)
	l, err := logger.New(logger.Config{
		File:       cfg.Log.File,
		Level:      cfg.Log.Level,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Console:    cfg.Log.Console,
	})
	if err != nil {
		return nil, err
	}
	logger.Init(l)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			_ = l.Sync()
			return nil
		},
	})
	return l, nil
}

func newTracer(lc fx.Lifecycle, cfg *config.Config) (opentracing.Tracer, error) {
	tracing.SetServiceName(cfg.Service.Name)
	tr, closeFn, err := tracing.InitTracer(tracing.Config{
		Enabled: cfg.Tracing.Enabled,
		Host:    cfg.Tracing.Host,
		Port:    cfg.Tracing.Port,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closeFn()
			return nil
		},
	})
	return tr, nil
}

func main() {
	app := fx.New(
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		config.Module(),
		fx.Provide(
			newLogger,
			newTracer,
		),
		exchange.Module(),
		watchlist.Module(),
		strategy.Module(),
		positions.Module(),
		notify.Module(),
		health.Module(),
		runner.Module(),
		fx.Invoke(func(_ opentracing.Tracer, l *zap.Logger, cfg *config.Config) {
			l.Info("spot bot configured",
				zap.String("quote", cfg.Trading.QuoteCurrency),
				zap.Int("max_positions", cfg.Trading.MaxPositions),
				zap.Float64("capital_fraction", cfg.Trading.CapitalFraction),
				zap.Duration("interval", cfg.Schedule.Interval),
				zap.String("storage", cfg.Storage.Driver),
			)
		}),
	)
	app.Run()
}
