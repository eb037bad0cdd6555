package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"spot_bot/internal/models"
	"spot_bot/internal/positions"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

type PositionsReader interface {
	Load(ctx context.Context) positions.LoadResult
}

// Telegram: пассивный нотифайер + обработка команды /positions.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
	store  PositionsReader
	log    *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewTelegram(token string, chatID int64, store PositionsReader, log *zap.Logger) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{
		bot:    b,
		chatID: chatID,
		store:  store,
		log:    log,
	}, nil
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		t.log.Warn("telegram send failed", zap.Error(err))
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

// /positions: открытые позиции из хранилища
func (t *Telegram) handlePositions(ctx context.Context) {
	if t.store == nil {
		t.Send("❗️ Хранилище позиций не подключено")
		return
	}
	res := t.store.Load(ctx)
	if res.Status == positions.StatusCorrupt {
		t.Sendf("❗️ Хранилище позиций повреждено: %v", res.Cause)
		return
	}
	t.Send(FormatPositions(res.Positions))
}

// FormatPositions: список позиций для сообщения, по алфавиту.
func FormatPositions(p models.Positions) string {
	if len(p) == 0 {
		return "📭 Открытых позиций нет"
	}
	syms := make([]string, 0, len(p))
	for s := range p {
		syms = append(syms, s)
	}
	sort.Strings(syms)

	var b strings.Builder
	b.WriteString("📊 Открытые позиции:\n")
	for _, s := range syms {
		pos := p[s]
		fmt.Fprintf(&b, "- %s amount=%.8g @ %.8g\n", s, pos.Amount, pos.BuyPrice)
	}
	return b.String()
}

// Start: long-polling только для команд из нашего чата.
func (t *Telegram) Start(ctx context.Context) error {
	if t == nil || t.bot == nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}

	updates := t.bot.GetUpdatesChan(u)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case upd := <-updates:
				if upd.Message != nil && upd.Message.Chat != nil &&
					upd.Message.Chat.ID == t.chatID && upd.Message.IsCommand() {

					switch upd.Message.Command() {
					case "positions":
						go t.handlePositions(ctx)
					}
				}
			}
		}
	}()
	return nil
}

func (t *Telegram) Stop() {
	if t == nil || t.bot == nil {
		return
	}
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Unlock()
	t.bot.StopReceivingUpdates()
}

// Log: нотифайер без Telegram: всё уходит в лог.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log { return &Log{log: log} }

func (l *Log) Send(msg string)                  { l.log.Info("notify", zap.String("text", msg)) }
func (l *Log) Sendf(format string, args ...any) { l.Send(fmt.Sprintf(format, args...)) }
