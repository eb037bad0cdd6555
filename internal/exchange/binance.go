package exchange

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"spot_bot/internal/helper"
	"spot_bot/internal/models"
	"spot_bot/internal/modules/config"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"golang.org/x/time/rate"
)

var ErrUnknownSymbol = errors.New("symbol is not listed on the exchange")

// APIError: ответ биржи вида {"code":-1121,"msg":"Invalid symbol."}.
type APIError struct {
	Status int
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance: http %d code=%d msg=%s", e.Status, e.Code, e.Msg)
}

// Binance: REST-клиент спота. Все вызовы блокирующие, таймаут задаёт http.Client.
type Binance struct {
	http       *http.Client
	baseURL    string
	apiKey     string
	apiSecret  string
	recvWindow int64
	limiter    *rate.Limiter
	now        func() time.Time

	mu      sync.RWMutex
	markets map[string]models.Market // "BTC/USDT" -> market
	byID    map[string]string        // "BTCUSDT" -> "BTC/USDT"
}

func NewBinance(cfg *config.Config) *Binance {
	ex := cfg.Exchange
	timeout := ex.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if ex.RateLimit > 0 {
		limit = rate.Limit(ex.RateLimit)
	}
	return &Binance{
		http:       &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(ex.BaseURL, "/"),
		apiKey:     ex.APIKey,
		apiSecret:  ex.APISecret,
		recvWindow: ex.RecvWindow,
		limiter:    rate.NewLimiter(limit, 1),
		now:        time.Now,
	}
}

// ===== exchangeInfo =====

type exchangeInfoResp struct {
	Symbols []struct {
		Symbol               string `json:"symbol"`
		Status               string `json:"status"`
		BaseAsset            string `json:"baseAsset"`
		QuoteAsset           string `json:"quoteAsset"`
		IsSpotTradingAllowed bool   `json:"isSpotTradingAllowed"`
		Filters              []struct {
			FilterType  string `json:"filterType"`
			MinQty      string `json:"minQty"`
			StepSize    string `json:"stepSize"`
			MinNotional string `json:"minNotional"`
		} `json:"filters"`
	} `json:"symbols"`
}

// LoadMarkets: все пары в статусе TRADING со спотовой торговлей. Кэшируется до следующего вызова.
func (b *Binance) LoadMarkets(ctx context.Context) (map[string]models.Market, error) {
	var resp exchangeInfoResp
	if err := b.get(ctx, "/api/v3/exchangeInfo", nil, &resp); err != nil {
		return nil, errors.Wrap(err, "load markets")
	}

	markets := make(map[string]models.Market, len(resp.Symbols))
	byID := make(map[string]string, len(resp.Symbols))
	for _, s := range resp.Symbols {
		if s.Status != "TRADING" || !s.IsSpotTradingAllowed {
			continue
		}
		m := models.Market{
			Symbol: helper.PairSymbol(s.BaseAsset, s.QuoteAsset),
			ID:     s.Symbol,
			Base:   s.BaseAsset,
			Quote:  s.QuoteAsset,
		}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "LOT_SIZE":
				m.StepSize = cast.ToFloat64(f.StepSize)
				m.MinQty = cast.ToFloat64(f.MinQty)
			case "MIN_NOTIONAL", "NOTIONAL":
				if v := cast.ToFloat64(f.MinNotional); v > m.MinNotional {
					m.MinNotional = v
				}
			}
		}
		markets[m.Symbol] = m
		byID[m.ID] = m.Symbol
	}

	b.mu.Lock()
	b.markets, b.byID = markets, byID
	b.mu.Unlock()

	out := make(map[string]models.Market, len(markets))
	for k, v := range markets {
		out[k] = v
	}
	return out, nil
}

// Market возвращает пару из кэша, при пустом кэше подгружает exchangeInfo.
func (b *Binance) Market(ctx context.Context, symbol string) (models.Market, error) {
	b.mu.RLock()
	loaded := b.markets != nil
	m, ok := b.markets[symbol]
	b.mu.RUnlock()
	if ok {
		return m, nil
	}
	if !loaded {
		if _, err := b.LoadMarkets(ctx); err != nil {
			return models.Market{}, err
		}
		b.mu.RLock()
		m, ok = b.markets[symbol]
		b.mu.RUnlock()
		if ok {
			return m, nil
		}
	}
	return models.Market{}, errors.Wrap(ErrUnknownSymbol, symbol)
}

// ===== market data =====

// FetchOHLCV: последние limit свечей, от старых к новым.
func (b *Binance) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	m, err := b.Market(ctx, symbol)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("symbol", m.ID)
	q.Set("interval", timeframe)
	q.Set("limit", cast.ToString(limit))

	var rows [][]any
	if err := b.get(ctx, "/api/v3/klines", q, &rows); err != nil {
		return nil, errors.Wrapf(err, "fetch ohlcv %s", symbol)
	}

	out := make([]models.Candle, 0, len(rows))
	for _, r := range rows {
		if len(r) < 6 {
			return nil, errors.Errorf("fetch ohlcv %s: short kline row (%d fields)", symbol, len(r))
		}
		c, err := parseKline(r)
		if err != nil {
			return nil, errors.Wrapf(err, "fetch ohlcv %s", symbol)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseKline(r []any) (models.Candle, error) {
	openMs, err := cast.ToInt64E(r[0])
	if err != nil {
		return models.Candle{}, errors.Wrap(err, "open time")
	}
	var v [5]float64
	for i := 0; i < 5; i++ {
		if v[i], err = cast.ToFloat64E(r[i+1]); err != nil {
			return models.Candle{}, errors.Wrapf(err, "kline field %d", i+1)
		}
	}
	return models.Candle{
		Start:  time.UnixMilli(openMs).UTC(),
		Open:   v[0],
		High:   v[1],
		Low:    v[2],
		Close:  v[3],
		Volume: v[4],
	}, nil
}

// FetchTicker: последняя цена сделки.
func (b *Binance) FetchTicker(ctx context.Context, symbol string) (float64, error) {
	m, err := b.Market(ctx, symbol)
	if err != nil {
		return 0, err
	}
	q := url.Values{}
	q.Set("symbol", m.ID)

	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := b.get(ctx, "/api/v3/ticker/price", q, &resp); err != nil {
		return 0, errors.Wrapf(err, "fetch ticker %s", symbol)
	}
	px, err := cast.ToFloat64E(resp.Price)
	if err != nil || px <= 0 {
		return 0, errors.Errorf("fetch ticker %s: bad price %q", symbol, resp.Price)
	}
	return px, nil
}

// ===== transport =====

func (b *Binance) get(ctx context.Context, path string, q url.Values, out any) error {
	u := b.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return b.do(req, out)
}

func (b *Binance) do(req *http.Request, out any) error {
	if err := b.limiter.Wait(req.Context()); err != nil {
		return err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := sonic.Unmarshal(rb, apiErr); err != nil || apiErr.Msg == "" {
			apiErr.Msg = string(rb)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(rb, out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
