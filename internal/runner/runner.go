package runner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"spot_bot/internal/metrics"
	"spot_bot/internal/models"
	"spot_bot/internal/modules/config"
	"spot_bot/internal/notify"
	"spot_bot/internal/positions"
	"spot_bot/internal/strategy"
	"spot_bot/pkg/tracing"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Venue interface {
	FetchBalance(ctx context.Context) (map[string]float64, error)
	FetchTicker(ctx context.Context, symbol string) (float64, error)
	Market(ctx context.Context, symbol string) (models.Market, error)
	CreateMarketBuyOrder(ctx context.Context, symbol string, amount float64) (models.Order, error)
	CreateMarketSellOrder(ctx context.Context, symbol string, amount float64) (models.Order, error)
}

type Candidates interface {
	TopSymbols(ctx context.Context, limit int) ([]string, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, symbol string) (models.Snapshot, error)
}

// Runner: один торговый цикл: сначала покупки, потом продажи.
type Runner struct {
	venue      Venue
	candidates Candidates
	eval       Evaluator
	policy     strategy.Policy
	store      positions.Store
	n          notify.Notifier
	log        *zap.Logger
	now        func() time.Time

	quote          string
	maxPositions   int
	candidateLimit int
	reservePerBuy  bool
}

func New(
	cfg *config.Config,
	venue Venue,
	candidates Candidates,
	eval Evaluator,
	policy strategy.Policy,
	store positions.Store,
	n notify.Notifier,
	log *zap.Logger,
) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		venue:          venue,
		candidates:     candidates,
		eval:           eval,
		policy:         policy,
		store:          store,
		n:              n,
		log:            log,
		now:            time.Now,
		quote:          cfg.Trading.QuoteCurrency,
		maxPositions:   cfg.Trading.MaxPositions,
		candidateLimit: cfg.Trading.CandidateLimit,
		reservePerBuy:  cfg.Trading.ReservePerBuy,
	}
}

// RunCycle возвращает ошибку только если цикл прерван целиком (баланс, кандидаты, запись позиций).
// Сбои по отдельным символам попадают в Report.Outcomes.
func (r *Runner) RunCycle(ctx context.Context) (rep Report, err error) {
	span, ctx := tracing.StartSpan(ctx, "cycle")
	defer func() { tracing.Finish(span, err) }()

	rep.Started = r.now()
	defer func() { rep.Finished = r.now() }()

	loaded := r.store.Load(ctx)
	rep.Store, rep.StoreCause = loaded.Status, loaded.Cause
	if loaded.Status == positions.StatusCorrupt {
		metrics.StoreCorruptTotal.Inc()
		r.log.Error("position store is corrupt, continuing with no open positions",
			zap.String("moved_to", loaded.MovedTo),
			zap.Error(loaded.Cause),
		)
		r.n.Sendf("❗️ Хранилище позиций повреждено, продолжаю без позиций. Копия: %s", loaded.MovedTo)
	}
	held := loaded.Positions
	if held == nil {
		held = models.Positions{}
	}

	if err = r.acquire(ctx, held, &rep); err != nil {
		rep.Open = len(held)
		return rep, errors.Wrap(err, "acquisition")
	}
	if err = r.liquidate(ctx, held, &rep); err != nil {
		rep.Open = len(held)
		return rep, errors.Wrap(err, "liquidation")
	}
	rep.Open = len(held)
	return rep, nil
}

func (r *Runner) acquire(ctx context.Context, held models.Positions, rep *Report) error {
	bal, err := r.venue.FetchBalance(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch balance")
	}
	available := bal[r.quote]
	notional := r.policy.Notional(available)
	rep.Balance, rep.Notional = available, notional
	metrics.QuoteBalance.Set(available)
	r.log.Info(fmt.Sprintf("Balance: %.2f %s | Trade Amount: %.2f", available, r.quote, notional),
		zap.Float64("balance", available),
		zap.Float64("trade_amount", notional),
	)

	symbols, err := r.candidates.TopSymbols(ctx, r.candidateLimit)
	if err != nil {
		return errors.Wrap(err, "top symbols")
	}
	rep.Candidates = len(symbols)

	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		if held.Has(sym) {
			continue
		}
		if len(held) >= r.maxPositions {
			r.record(rep, Outcome{Symbol: sym, Phase: PhaseAcquisition, Kind: OutcomeSkipped, Reason: "max_positions"})
			continue
		}

		o := r.tryBuy(ctx, sym, notional)
		if o.Kind == OutcomeBought {
			held[sym] = models.Position{BuyPrice: o.Price, Amount: o.Amount}
			if err := r.store.Save(ctx, held.Clone()); err != nil {
				r.record(rep, o)
				r.log.Error("bought but failed to persist position",
					zap.String("symbol", sym),
					zap.Float64("price", o.Price),
					zap.Float64("amount", o.Amount),
					zap.Error(err),
				)
				r.n.Sendf("❗️ %s куплен, но позиция не сохранена: %v", sym, err)
				return errors.Wrap(err, "save positions")
			}
			if r.reservePerBuy {
				available -= o.spent()
				if available < 0 {
					available = 0
				}
				notional = r.policy.Notional(available)
			}
			r.n.Sendf("✅ BUY: %s at %.4f amount=%.8g", sym, o.Price, o.Amount)
		}
		r.record(rep, o)
	}
	return nil
}

func (r *Runner) tryBuy(ctx context.Context, sym string, notional float64) (o Outcome) {
	o = Outcome{Symbol: sym, Phase: PhaseAcquisition}
	span, ctx := tracing.StartSpan(ctx, "acquire", opentracing.Tag{Key: "symbol", Value: sym})
	defer func() { tracing.Finish(span, o.Err) }()

	snap, err := r.eval.Evaluate(ctx, sym)
	if errors.Is(err, strategy.ErrInsufficientData) {
		o.Kind, o.Reason = OutcomeInsufficientData, err.Error()
		return o
	}
	if err != nil {
		o.Kind, o.Err = OutcomeFailed, errors.Wrap(err, "indicators")
		return o
	}
	r.log.Info("indicators",
		zap.String("symbol", sym),
		zap.Float64("rsi", snap.RSI),
		zap.Float64("macd_diff", snap.MACDDiff),
		zap.Float64("price", snap.Close),
		zap.Float64("bb_lower", snap.BBLower),
		zap.Float64("bb_upper", snap.BBUpper),
	)

	sig := r.policy.Entry(sym, snap)
	o.Price = sig.Price
	if !sig.Fired() {
		o.Kind = OutcomeNoSignal
		return o
	}

	m, err := r.venue.Market(ctx, sym)
	if err != nil {
		o.Kind, o.Err = OutcomeFailed, errors.Wrap(err, "market")
		return o
	}
	amount, err := r.policy.Size(notional, snap.Close, m)
	if errors.Is(err, strategy.ErrBelowMinimum) {
		o.Kind, o.Reason = OutcomeSkipped, err.Error()
		return o
	}
	if err != nil {
		o.Kind, o.Err = OutcomeFailed, err
		return o
	}

	order, err := r.venue.CreateMarketBuyOrder(ctx, sym, amount)
	if err != nil {
		metrics.OrdersTotal.WithLabelValues(string(models.SideBuy), "error").Inc()
		o.Kind, o.Err = OutcomeFailed, errors.Wrap(err, "market buy")
		return o
	}
	metrics.OrdersTotal.WithLabelValues(string(models.SideBuy), "ok").Inc()

	o.Kind, o.Reason = OutcomeBought, sig.Reason
	o.Price, o.Amount = snap.Close, amount
	if order.Price > 0 {
		o.Price = order.Price
	}
	if order.Amount > 0 {
		o.Amount = order.Amount
	}
	o.Cost = order.Cost
	return o
}

func (r *Runner) liquidate(ctx context.Context, held models.Positions, rep *Report) error {
	symbols := make([]string, 0, len(held))
	for s := range held {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		pos := held[sym]
		o := r.trySell(ctx, sym, pos)
		if o.Kind == OutcomeSold {
			delete(held, sym)
			if err := r.store.Save(ctx, held.Clone()); err != nil {
				r.record(rep, o)
				r.log.Error("sold but failed to persist positions", zap.String("symbol", sym), zap.Error(err))
				r.n.Sendf("❗️ %s продан, но позиции не сохранены: %v", sym, err)
				return errors.Wrap(err, "save positions")
			}
			r.n.Sendf("💰 SELL: %s at %.4f (Buy: %.4f, %s)", sym, o.Price, pos.BuyPrice, o.Reason)
		}
		r.record(rep, o)
	}
	return nil
}

func (r *Runner) trySell(ctx context.Context, sym string, pos models.Position) (o Outcome) {
	o = Outcome{Symbol: sym, Phase: PhaseLiquidation, Amount: pos.Amount}
	span, ctx := tracing.StartSpan(ctx, "liquidate", opentracing.Tag{Key: "symbol", Value: sym})
	defer func() { tracing.Finish(span, o.Err) }()

	price, err := r.venue.FetchTicker(ctx, sym)
	if err != nil {
		o.Kind, o.Err = OutcomeFailed, errors.Wrap(err, "ticker")
		return o
	}
	o.Price = price

	sig := r.policy.Exit(sym, pos, price)
	if !sig.Fired() {
		o.Kind = OutcomeHeld
		return o
	}

	if _, err := r.venue.CreateMarketSellOrder(ctx, sym, pos.Amount); err != nil {
		metrics.OrdersTotal.WithLabelValues(string(models.SideSell), "error").Inc()
		o.Kind, o.Err = OutcomeFailed, errors.Wrap(err, "market sell")
		return o
	}
	metrics.OrdersTotal.WithLabelValues(string(models.SideSell), "ok").Inc()
	o.Kind, o.Reason = OutcomeSold, sig.Reason
	return o
}

// record пишет итог в отчёт, лог и метрики.
func (r *Runner) record(rep *Report, o Outcome) {
	rep.add(o)
	metrics.OutcomesTotal.WithLabelValues(string(o.Kind)).Inc()

	fields := []zap.Field{
		zap.String("symbol", o.Symbol),
		zap.String("phase", string(o.Phase)),
		zap.String("outcome", string(o.Kind)),
	}
	if o.Price > 0 {
		fields = append(fields, zap.Float64("price", o.Price))
	}
	if o.Reason != "" {
		fields = append(fields, zap.String("reason", o.Reason))
	}
	switch o.Kind {
	case OutcomeFailed:
		r.log.Error("symbol failed", append(fields, zap.Error(o.Err))...)
	case OutcomeBought:
		r.log.Info("BUY", append(fields, zap.Float64("amount", o.Amount))...)
	case OutcomeSold:
		r.log.Info("SELL", append(fields, zap.Float64("amount", o.Amount))...)
	default:
		r.log.Debug("symbol checked", fields...)
	}
}
