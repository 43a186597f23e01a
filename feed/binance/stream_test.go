package binance

import (
	"context"
	"encoding/json"
	"testing"

	appconfig "depthflow/config"
	"depthflow/feed"
	"depthflow/internal/channel"
	"depthflow/models"
)

func minimalConfig() *appconfig.Config {
	return &appconfig.Config{
		Reader: appconfig.ReaderConfig{TimeoutMs: 1000, ReconnectDelayMs: 100},
		Source: appconfig.SourceConfig{
			Binance: appconfig.BinanceSourceConfig{
				WsURL:      "wss://example.com",
				RestURL:    "https://example.com",
				DepthLimit: 10,
				KlineLimit: 10,
				ConnectionPool: appconfig.ConnectionPoolConfig{
					MaxIdleConns:       1,
					MaxConnsPerHost:    1,
					IdleConnTimeoutSec: 1,
				},
				RateLimit: appconfig.RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1},
			},
		},
	}
}

func TestNewStreams(t *testing.T) {
	cfg := minimalConfig()
	events := channel.NewEvents(1)
	defer events.Close()

	rest := NewRestClient(cfg)
	if rest == nil {
		t.Fatal("NewRestClient returned nil")
	}
	if NewMarketStream(cfg, events, rest, models.BTCUSDT) == nil {
		t.Fatal("NewMarketStream returned nil")
	}
	if NewKlineStream(cfg, events, []KlineSub{{Ticker: models.BTCUSDT, Timeframe: models.M1}}) == nil {
		t.Fatal("NewKlineStream returned nil")
	}
}

func TestKlineStreamDoubleStart(t *testing.T) {
	cfg := minimalConfig()
	events := channel.NewEvents(16)
	defer events.Close()

	s := NewKlineStream(cfg, events, []KlineSub{{Ticker: models.BTCUSDT, Timeframe: models.M1}})
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(ctx); err == nil {
		t.Fatalf("expected error on second start")
	}
	cancel()
	s.Stop()
}

func TestKlineMatch(t *testing.T) {
	cfg := minimalConfig()
	events := channel.NewEvents(1)
	defer events.Close()

	s := NewKlineStream(cfg, events, []KlineSub{
		{Ticker: models.BTCUSDT, Timeframe: models.M1},
		{Ticker: models.BTCUSDT, Timeframe: models.M5},
		{Ticker: models.ETHUSDT, Timeframe: models.M1},
	})

	sub, ok := s.match("BTCUSDT", "5m")
	if !ok || sub.Timeframe != models.M5 {
		t.Fatalf("expected BTCUSDT 5m match, got %+v ok=%v", sub, ok)
	}
	if _, ok := s.match("BTCUSDT", "15m"); ok {
		t.Fatalf("expected unsubscribed interval to be unmatched")
	}
	if _, ok := s.match("SOLUSDT", "1m"); ok {
		t.Fatalf("expected unsubscribed symbol to be unmatched")
	}
}

func TestDecodeDepthDiff(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@depth@100ms","data":{"e":"depthUpdate","E":1700000000100,"T":1700000000090,"s":"BTCUSDT","U":157,"u":160,"pu":149,"b":[["0.0024","10"]],"a":[["0.0026","100"],["0.0027","0"]]}}`)

	var envelope models.BinanceEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Stream != "btcusdt@depth@100ms" {
		t.Fatalf("unexpected stream name %q", envelope.Stream)
	}

	var diff models.BinanceDepthDiff
	if err := json.Unmarshal(envelope.Data, &diff); err != nil {
		t.Fatalf("unmarshal diff: %v", err)
	}
	if diff.FirstUpdateID != 157 || diff.FinalUpdateID != 160 || diff.PrevFinalUpdateID != 149 {
		t.Fatalf("unexpected update id range %+v", diff)
	}

	asks := feed.ParseOrders(diff.Asks)
	if len(asks) != 2 || asks[1].Qty != 0 {
		t.Fatalf("expected tombstone ask preserved, got %+v", asks)
	}
}

func TestKlineVolumeSplit(t *testing.T) {
	raw := []byte(`{"e":"kline","s":"BTCUSDT","k":{"t":1700000000000,"s":"BTCUSDT","i":"1m","o":"42000.1","c":"42010.5","h":"42020","l":"41990","v":"50","V":"30","x":false}}`)

	var event models.BinanceKlineEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		t.Fatalf("unmarshal kline: %v", err)
	}

	total := feed.ParseF32(event.Kline.Volume)
	buy := feed.ParseF32(event.Kline.TakerBuyVolume)
	if buy != 30 || total-buy != 20 {
		t.Fatalf("expected taker split buy=30 sell=20, got buy=%v sell=%v", buy, total-buy)
	}
}
