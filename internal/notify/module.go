package notify

import (
	"context"

	"spot_bot/internal/modules/config"
	"spot_bot/internal/positions"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewNotifier: Telegram, если заданы токен и chat_id и бот авторизовался, иначе только лог.
func NewNotifier(lc fx.Lifecycle, cfg *config.Config, store positions.Store, log *zap.Logger) Notifier {
	log = log.Named("notify")
	if cfg.Telegram.Token == "" {
		log.Info("telegram token is not set, notifications go to the log")
		return NewLog(log)
	}
	if cfg.Telegram.ChatID == 0 {
		log.Warn("telegram chat_id is not set, notifications go to the log")
		return NewLog(log)
	}
	tg, err := NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, store, log)
	if err != nil {
		log.Warn("telegram init failed, notifications go to the log", zap.Error(err))
		return NewLog(log)
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return tg.Start(context.Background())
		},
		OnStop: func(context.Context) error {
			tg.Stop()
			return nil
		},
	})
	return tg
}

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(NewNotifier),
	)
}
