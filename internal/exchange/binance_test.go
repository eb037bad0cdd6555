package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"spot_bot/internal/models"
	"spot_bot/internal/modules/config"

	"github.com/pkg/errors"
)

const exchangeInfoBody = `{"symbols":[
 {"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT","isSpotTradingAllowed":true,
  "filters":[{"filterType":"LOT_SIZE","minQty":"0.00001","stepSize":"0.00001"},{"filterType":"NOTIONAL","minNotional":"5.0"}]},
 {"symbol":"ETHUSDT","status":"TRADING","baseAsset":"ETH","quoteAsset":"USDT","isSpotTradingAllowed":true,
  "filters":[{"filterType":"LOT_SIZE","minQty":"0.0001","stepSize":"0.0001"},{"filterType":"MIN_NOTIONAL","minNotional":"10"}]},
 {"symbol":"LUNAUSDT","status":"BREAK","baseAsset":"LUNA","quoteAsset":"USDT","isSpotTradingAllowed":true,"filters":[]}
]}`

func newTestBinance(t *testing.T, h http.HandlerFunc) *Binance {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Exchange.BaseURL = srv.URL
	cfg.Exchange.RateLimit = 0
	cfg.Exchange.APIKey = "key"
	cfg.Exchange.APISecret = "secret"
	b := NewBinance(&cfg)
	b.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return b
}

func TestLoadMarketsKeepsTradingPairsWithFilters(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/exchangeInfo" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(exchangeInfoBody))
	})

	markets, err := b.LoadMarkets(context.Background())
	if err != nil {
		t.Fatalf("LoadMarkets: %v", err)
	}
	if len(markets) != 2 {
		t.Fatalf("expected 2 markets, got %d", len(markets))
	}
	if _, ok := markets["LUNA/USDT"]; ok {
		t.Fatal("non-trading pair must be skipped")
	}
	eth := markets["ETH/USDT"]
	if eth.ID != "ETHUSDT" || eth.StepSize != 0.0001 || eth.MinNotional != 10 {
		t.Fatalf("unexpected ETH market: %+v", eth)
	}
}

func TestFetchOHLCVParsesKlines(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/exchangeInfo":
			_, _ = w.Write([]byte(exchangeInfoBody))
		case "/api/v3/klines":
			q := r.URL.Query()
			if q.Get("symbol") != "BTCUSDT" || q.Get("interval") != "1h" || q.Get("limit") != "2" {
				t.Fatalf("unexpected query %s", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(`[
			 [1700000000000,"100.0","110.0","90.0","105.0","12.5",1700003599999,"0",1,"0","0","0"],
			 [1700003600000,"105.0","106.0","95.0","96.5","3.25",1700007199999,"0",1,"0","0","0"]]`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	candles, err := b.FetchOHLCV(context.Background(), "BTC/USDT", "1h", 2)
	if err != nil {
		t.Fatalf("FetchOHLCV: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	if candles[1].Close != 96.5 || candles[0].High != 110 {
		t.Fatalf("unexpected candles: %+v", candles)
	}
	if !candles[0].Start.Equal(time.UnixMilli(1700000000000)) {
		t.Fatalf("unexpected start %v", candles[0].Start)
	}
}

func TestUnknownSymbol(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(exchangeInfoBody))
	})
	_, err := b.FetchTicker(context.Background(), "DOGE/USDT")
	if !errors.Is(err, ErrUnknownSymbol) {
		t.Fatalf("expected ErrUnknownSymbol, got %v", err)
	}
}

func TestAPIErrorIsDecoded(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	})
	_, err := b.LoadMarkets(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Code != -1121 {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestFetchBalanceIsSigned(t *testing.T) {
	var b *Binance
	b = newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-MBX-APIKEY") != "key" {
			t.Fatalf("missing api key header")
		}
		q := r.URL.Query()
		if q.Get("timestamp") != "1700000000000" || q.Get("signature") == "" {
			t.Fatalf("request is not signed: %s", r.URL.RawQuery)
		}
		payload := strings.Split(r.URL.RawQuery, "&signature=")[0]
		if q.Get("signature") != b.sign(payload) {
			t.Fatalf("signature mismatch")
		}
		_, _ = w.Write([]byte(`{"balances":[{"asset":"USDT","free":"250.5","locked":"1"},{"asset":"BTC","free":"0.001","locked":"0"}]}`))
	})

	bal, err := b.FetchBalance(context.Background())
	if err != nil {
		t.Fatalf("FetchBalance: %v", err)
	}
	if bal["USDT"] != 250.5 || bal["BTC"] != 0.001 {
		t.Fatalf("unexpected balance: %v", bal)
	}
}

func TestCreateMarketBuyOrderUsesFill(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/exchangeInfo":
			_, _ = w.Write([]byte(exchangeInfoBody))
		case "/api/v3/order":
			if r.Method != http.MethodPost {
				t.Fatalf("expected POST, got %s", r.Method)
			}
			q := r.URL.Query()
			if q.Get("side") != "BUY" || q.Get("type") != "MARKET" || q.Get("quantity") != "0.1234" {
				t.Fatalf("unexpected order query %s", r.URL.RawQuery)
			}
			if q.Get("newClientOrderId") == "" {
				t.Fatal("client order id must be set")
			}
			_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","orderId":42,"clientOrderId":"abc","status":"FILLED",
				"executedQty":"0.1234","cummulativeQuoteQty":"246.8"}`))
		}
	})

	o, err := b.CreateMarketBuyOrder(context.Background(), "ETH/USDT", 0.123456)
	if err != nil {
		t.Fatalf("CreateMarketBuyOrder: %v", err)
	}
	if o.ID != "42" || o.Side != models.SideBuy || o.Amount != 0.1234 {
		t.Fatalf("unexpected order: %+v", o)
	}
	if o.Price < 1999.99 || o.Price > 2000.01 {
		t.Fatalf("expected fill price ~2000, got %v", o.Price)
	}
}

func TestCreateMarketSellOrderRejectsDust(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v3/order" {
			t.Fatal("dust order must not reach the exchange")
		}
		_, _ = w.Write([]byte(exchangeInfoBody))
	})
	if _, err := b.CreateMarketSellOrder(context.Background(), "ETH/USDT", 0.00001); err == nil {
		t.Fatal("expected error for quantity below step")
	}
}

func TestCreateMarketBuyOrderSubtractsBaseCommission(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/exchangeInfo":
			_, _ = w.Write([]byte(exchangeInfoBody))
		case "/api/v3/order":
			_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","orderId":7,"status":"FILLED",
				"executedQty":"1.0000","cummulativeQuoteQty":"2000",
				"fills":[{"price":"2000","qty":"0.6","commission":"0.0006","commissionAsset":"ETH"},
				         {"price":"2000","qty":"0.4","commission":"0.0004","commissionAsset":"ETH"},
				         {"price":"2000","qty":"0","commission":"0.01","commissionAsset":"BNB"}]}`))
		}
	})

	o, err := b.CreateMarketBuyOrder(context.Background(), "ETH/USDT", 1)
	if err != nil {
		t.Fatalf("CreateMarketBuyOrder: %v", err)
	}
	if o.Fee < 0.000999 || o.Fee > 0.001001 {
		t.Fatalf("expected base fee 0.001, got %v", o.Fee)
	}
	if o.Amount < 0.998999 || o.Amount > 0.999001 {
		t.Fatalf("expected net amount 0.999, got %v", o.Amount)
	}
	if o.Price != 2000 {
		t.Fatalf("expected price 2000, got %v", o.Price)
	}
}
