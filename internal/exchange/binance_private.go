package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"

	"spot_bot/internal/helper"
	"spot_bot/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// ===== Private: баланс и рыночные ордера =====

func (b *Binance) sign(payload string) string {
	h := hmac.New(sha256.New, []byte(b.apiSecret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// signed добавляет timestamp/recvWindow и подпись. Пустые ключи не проверяем:
// биржа сама вернёт ошибку авторизации.
func (b *Binance) signed(ctx context.Context, method, path string, q url.Values, out any) error {
	if q == nil {
		q = url.Values{}
	}
	if b.recvWindow > 0 {
		q.Set("recvWindow", cast.ToString(b.recvWindow))
	}
	q.Set("timestamp", cast.ToString(b.now().UTC().UnixMilli()))
	payload := q.Encode()
	payload += "&signature=" + b.sign(payload)

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path+"?"+payload, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-MBX-APIKEY", b.apiKey)
	return b.do(req, out)
}

// FetchBalance: свободные остатки по валютам.
func (b *Binance) FetchBalance(ctx context.Context) (map[string]float64, error) {
	var resp struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := b.signed(ctx, http.MethodGet, "/api/v3/account", nil, &resp); err != nil {
		return nil, errors.Wrap(err, "fetch balance")
	}
	out := make(map[string]float64, len(resp.Balances))
	for _, bal := range resp.Balances {
		out[strings.ToUpper(bal.Asset)] = cast.ToFloat64(bal.Free)
	}
	return out, nil
}

func (b *Binance) CreateMarketBuyOrder(ctx context.Context, symbol string, amount float64) (models.Order, error) {
	return b.createMarketOrder(ctx, symbol, models.SideBuy, amount)
}

func (b *Binance) CreateMarketSellOrder(ctx context.Context, symbol string, amount float64) (models.Order, error) {
	return b.createMarketOrder(ctx, symbol, models.SideSell, amount)
}

type orderResp struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	Status              string `json:"status"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Fills               []struct {
		Price           string `json:"price"`
		Qty             string `json:"qty"`
		Commission      string `json:"commission"`
		CommissionAsset string `json:"commissionAsset"`
	} `json:"fills"`
}

// baseCommission: комиссия, списанная в базовой валюте (уменьшает фактически полученный объём).
func (r orderResp) baseCommission(base string) float64 {
	var fee float64
	for _, f := range r.Fills {
		if strings.EqualFold(f.CommissionAsset, base) {
			fee += cast.ToFloat64(f.Commission)
		}
	}
	return fee
}

// Market order
func (b *Binance) createMarketOrder(ctx context.Context, symbol string, side models.Side, amount float64) (models.Order, error) {
	m, err := b.Market(ctx, symbol)
	if err != nil {
		return models.Order{}, err
	}
	qty := helper.FormatQty(amount, m.StepSize)
	if cast.ToFloat64(qty) <= 0 {
		return models.Order{}, errors.Errorf("%s %s: quantity %v rounds to zero (step %v)", side, symbol, amount, m.StepSize)
	}

	clientID := strings.ReplaceAll(uuid.NewString(), "-", "")
	q := url.Values{}
	q.Set("symbol", m.ID)
	q.Set("side", string(side))
	q.Set("type", "MARKET")
	q.Set("quantity", qty)
	q.Set("newClientOrderId", clientID)
	q.Set("newOrderRespType", "FULL")

	var resp orderResp
	if err := b.signed(ctx, http.MethodPost, "/api/v3/order", q, &resp); err != nil {
		return models.Order{}, errors.Wrapf(err, "%s %s qty=%s", side, symbol, qty)
	}

	executed := cast.ToFloat64(resp.ExecutedQty)
	cost := cast.ToFloat64(resp.CummulativeQuoteQty)
	o := models.Order{
		ID:            cast.ToString(resp.OrderID),
		ClientOrderID: resp.ClientOrderID,
		Symbol:        symbol,
		Side:          side,
		Amount:        cast.ToFloat64(qty),
		Cost:          cost,
		Status:        resp.Status,
	}
	if executed > 0 {
		o.Amount = executed
		if cost > 0 {
			o.Price = cost / executed
		}
	}
	if side == models.SideBuy {
		o.Fee = resp.baseCommission(m.Base)
		if net := o.Amount - o.Fee; o.Fee > 0 && net > 0 {
			o.Amount = net
		}
	}
	return o, nil
}
