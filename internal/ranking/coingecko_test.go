package ranking

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"spot_bot/internal/modules/config"
)

func newTestCoinGecko(t *testing.T, h http.HandlerFunc) *CoinGecko {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Ranking.BaseURL = srv.URL
	cfg.Ranking.DemoAPIKey = "demo"
	return NewCoinGecko(&cfg)
}

func TestTopByVolumeKeepsProviderOrder(t *testing.T) {
	c := newTestCoinGecko(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/api/v3/coins/markets" || q.Get("order") != "volume_desc" ||
			q.Get("per_page") != "3" || q.Get("vs_currency") != "usd" || q.Get("page") != "1" {
			t.Fatalf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		if r.Header.Get("x-cg-demo-api-key") != "demo" {
			t.Fatal("demo api key header is missing")
		}
		_, _ = w.Write([]byte(`[
			{"id":"tether","symbol":"usdt","total_volume":9e10},
			{"id":"bitcoin","symbol":"btc","total_volume":3e10},
			{"id":"ethereum","symbol":"eth","total_volume":1e10}]`))
	})

	got, err := c.TopByVolume(context.Background(), 3)
	if err != nil {
		t.Fatalf("TopByVolume: %v", err)
	}
	if want := []string{"USDT", "BTC", "ETH"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestTopByVolumePropagatesHTTPErrors(t *testing.T) {
	c := newTestCoinGecko(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":{"error_code":429}}`, http.StatusTooManyRequests)
	})
	if _, err := c.TopByVolume(context.Background(), 20); err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestTopByVolumeZeroLimit(t *testing.T) {
	c := newTestCoinGecko(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	got, err := c.TopByVolume(context.Background(), 0)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v %v", got, err)
	}
}
