package ranking

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"spot_bot/internal/modules/config"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// CoinGecko: рейтинг монет по объёму торгов за 24ч.
type CoinGecko struct {
	http       *http.Client
	baseURL    string
	vsCurrency string
	apiKey     string
}

func NewCoinGecko(cfg *config.Config) *CoinGecko {
	rc := cfg.Ranking
	timeout := rc.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	vs := rc.VsCurrency
	if vs == "" {
		vs = "usd"
	}
	return &CoinGecko{
		http:       &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(rc.BaseURL, "/"),
		vsCurrency: vs,
		apiKey:     rc.DemoAPIKey,
	}
}

type coinMarket struct {
	ID          string  `json:"id"`
	Symbol      string  `json:"symbol"`
	TotalVolume float64 `json:"total_volume"`
}

// TopByVolume: тикеры монет (в верхнем регистре) в порядке убывания объёма.
func (c *CoinGecko) TopByVolume(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := url.Values{}
	q.Set("vs_currency", c.vsCurrency)
	q.Set("order", "volume_desc")
	q.Set("per_page", cast.ToString(limit))
	q.Set("page", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v3/coins/markets?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "coingecko markets")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "coingecko markets: read body")
	}
	if resp.StatusCode/100 != 2 {
		return nil, errors.Errorf("coingecko markets: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var coins []coinMarket
	if err := sonic.Unmarshal(body, &coins); err != nil {
		return nil, errors.Wrap(err, "coingecko markets: decode")
	}

	out := make([]string, 0, len(coins))
	for _, coin := range coins {
		s := strings.ToUpper(strings.TrimSpace(coin.Symbol))
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
