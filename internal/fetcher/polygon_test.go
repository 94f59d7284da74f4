package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestPolygon(t *testing.T, handler http.Handler) *Polygon {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewPolygon(PolygonOptions{
		APIKey:            "test-key",
		BaseURL:           srv.URL,
		Timeout:           2 * time.Second,
		RequestsPerMinute: 6000,
	}, testLogger())
}

func TestPolygonCurrentPriceFromSnapshot(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/snapshot/locale/us/markets/stocks/tickers", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apiKey") != "test-key" {
			t.Errorf("缺少 apiKey 参数: %s", r.URL.RawQuery)
		}
		if r.URL.Query().Get("tickers") != "SPY" {
			t.Errorf("tickers 参数不正确: %s", r.URL.Query().Get("tickers"))
		}
		w.Write([]byte(`{"tickers":[{"ticker":"SPY","lastTrade":{"p":601.25},"day":{"c":600.9},"prevDay":{"c":598.1}}]}`))
	})

	p := newTestPolygon(t, mux)
	price, err := p.Metric(context.Background(), Price(), "SPY")
	if err != nil {
		t.Fatalf("获取价格失败: %v", err)
	}
	if price != 601.25 {
		t.Fatalf("期望 601.25, 实际 %v", price)
	}
}

func TestPolygonPriceFallsBackToPreviousClose(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/snapshot/locale/us/markets/stocks/tickers", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tickers":[]}`))
	})
	mux.HandleFunc("/v2/aggs/ticker/SPY/prev", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"resultsCount":1,"results":[{"t":1700000000000,"c":598.1}]}`))
	})

	p := newTestPolygon(t, mux)
	price, err := p.Metric(context.Background(), Price(), "SPY")
	if err != nil {
		t.Fatalf("获取价格失败: %v", err)
	}
	if price != 598.1 {
		t.Fatalf("期望回退到前收盘价 598.1, 实际 %v", price)
	}
}

func TestPolygonSnapshotPricePreference(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/snapshot/locale/us/markets/stocks/tickers", func(w http.ResponseWriter, r *http.Request) {
		// lastTrade 为零时应依次回退 day.c, prevDay.c
		w.Write([]byte(`{"tickers":[{"ticker":"QQQ","lastTrade":{"p":0},"day":{"c":0},"prevDay":{"c":420.5}}]}`))
	})

	p := newTestPolygon(t, mux)
	quotes, err := p.BulkPrices(context.Background(), []string{"QQQ"})
	if err != nil {
		t.Fatalf("批量报价失败: %v", err)
	}
	if quotes["QQQ"] != 420.5 {
		t.Fatalf("期望 prevDay 收盘价 420.5, 实际 %v", quotes["QQQ"])
	}
}

func TestPolygonIndicator(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/indicators/rsi/SPY", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("window") != "14" || q.Get("series_type") != "close" || q.Get("timespan") != "day" {
			t.Errorf("指标参数不正确: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"results":{"values":[{"timestamp":1700000000000,"value":71.2}]}}`))
	})

	p := newTestPolygon(t, mux)
	value, err := p.Metric(context.Background(), RSI(14), "SPY")
	if err != nil {
		t.Fatalf("获取 RSI 失败: %v", err)
	}
	if value != 71.2 {
		t.Fatalf("期望 71.2, 实际 %v", value)
	}
}

func TestPolygonCryptoSymbolTranslation(t *testing.T) {
	var gotPath string
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"resultsCount":1,"results":[{"t":1700000000000,"c":64000}]}`))
	})

	p := newTestPolygon(t, mux)
	price, err := p.Metric(context.Background(), Price(), "BTC-USD")
	if err != nil {
		t.Fatalf("获取价格失败: %v", err)
	}
	if price != 64000 {
		t.Fatalf("期望 64000, 实际 %v", price)
	}
	if gotPath != "/v2/aggs/ticker/X:BTCUSD/prev" {
		t.Fatalf("加密符号未转换: %s", gotPath)
	}
}

func TestPolygonRateLimitedIsUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	p := newTestPolygon(t, mux)
	_, err := p.Metric(context.Background(), SMA(200), "SPY")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("429 应映射为 ErrUnavailable, 实际 %v", err)
	}
}

func TestPolygonMissingKeyIsUnavailable(t *testing.T) {
	called := false
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { called = true })

	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewPolygon(PolygonOptions{BaseURL: srv.URL}, testLogger())
	if _, err := p.Metric(context.Background(), Price(), "SPY"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("未配置密钥应返回 ErrUnavailable, 实际 %v", err)
	}
	if called {
		t.Fatal("未配置密钥时不应发起请求")
	}
}

func TestPolygonMarketOpen(t *testing.T) {
	market := "open"
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/marketstatus/now", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"market":"` + market + `","serverTime":"2026-08-25T10:30:00-04:00"}`))
	})

	p := newTestPolygon(t, mux)
	open, err := p.MarketOpen(context.Background())
	if err != nil || !open {
		t.Fatalf("期望开市: open=%v err=%v", open, err)
	}

	market = "closed"
	open, err = p.MarketOpen(context.Background())
	if err != nil || open {
		t.Fatalf("期望休市: open=%v err=%v", open, err)
	}
}

func TestPolygonBars(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/aggs/ticker/IVV/range/1/day/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"resultsCount":2,"results":[
			{"t":1755907200000,"o":550,"h":556,"l":548,"c":555,"v":1000},
			{"t":1755993600000,"o":555,"h":560,"l":554,"c":559,"v":1200}
		]}`))
	})

	p := newTestPolygon(t, mux)
	bars, err := p.Bars(context.Background(), "IVV", 60)
	if err != nil {
		t.Fatalf("获取 K 线失败: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("期望 2 根 K 线, 实际 %d", len(bars))
	}
	if bars[1].High != 560 || bars[1].Close != 559 {
		t.Fatalf("K 线字段不正确: %+v", bars[1])
	}
	if bars[0].Time.IsZero() {
		t.Fatal("时间戳未转换")
	}
}
