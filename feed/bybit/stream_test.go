package bybit

import (
	"context"
	"encoding/json"
	"testing"

	appconfig "depthflow/config"
	"depthflow/internal/book"
	"depthflow/internal/channel"
	"depthflow/internal/trades"
	"depthflow/models"
)

func minimalConfig() *appconfig.Config {
	return &appconfig.Config{
		Reader: appconfig.ReaderConfig{TimeoutMs: 1000, ReconnectDelayMs: 100},
		Source: appconfig.SourceConfig{
			Bybit: appconfig.BybitSourceConfig{
				WsURL:       "wss://example.com",
				RestURL:     "https://example.com",
				DepthLevels: 200,
				KlineLimit:  10,
				RateLimit:   appconfig.RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1},
			},
		},
	}
}

func TestNewStreams(t *testing.T) {
	cfg := minimalConfig()
	events := channel.NewEvents(1)
	defer events.Close()

	if NewRestClient(cfg) == nil {
		t.Fatal("NewRestClient returned nil")
	}
	if NewMarketStream(cfg, events, models.BTCUSDT) == nil {
		t.Fatal("NewMarketStream returned nil")
	}
	if NewKlineStream(cfg, events, []KlineSub{{Ticker: models.BTCUSDT, Timeframe: models.M1}}) == nil {
		t.Fatal("NewKlineStream returned nil")
	}
}

func TestHandleTrades(t *testing.T) {
	cfg := minimalConfig()
	events := channel.NewEvents(1)
	defer events.Close()

	s := NewMarketStream(cfg, events, models.BTCUSDT)
	buffer := trades.NewBuffer()
	log := s.log.WithComponent("test")

	data := json.RawMessage(`[{"T":1700000000000,"s":"BTCUSDT","S":"Sell","v":"0.5","p":"42000.1"},{"T":1700000000010,"s":"BTCUSDT","S":"Buy","v":"1","p":"42000.2"}]`)
	s.handleTrades(data, buffer, log)

	if buffer.Len() != 2 {
		t.Fatalf("expected 2 buffered trades, got %d", buffer.Len())
	}
	flushed, _ := buffer.Flush()
	if !flushed[0].IsSell || flushed[0].Price != 42000.1 {
		t.Fatalf("unexpected first trade %+v", flushed[0])
	}
	if flushed[1].IsSell {
		t.Fatalf("expected buy side trade, got %+v", flushed[1])
	}
}

func TestHandleDepthSnapshotThenDelta(t *testing.T) {
	cfg := minimalConfig()
	events := channel.NewEvents(4)
	defer events.Close()

	s := NewMarketStream(cfg, events, models.BTCUSDT)
	cache := book.NewLocalDepthCache()
	buffer := trades.NewBuffer()
	log := s.log.WithComponent("test")
	ctx := context.Background()

	snapshot := models.BybitEnvelope{
		Topic: "orderbook.200.BTCUSDT",
		Type:  "snapshot",
		Cts:   1700000000000,
		Data:  json.RawMessage(`{"s":"BTCUSDT","b":[["42000","5"],["41999","3"]],"a":[["42001","4"]],"u":100,"seq":1}`),
	}
	if err := s.handleDepth(ctx, snapshot, cache, buffer, log); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if cache.LastUpdateID != 100 || len(cache.Bids) != 2 {
		t.Fatalf("snapshot not applied: id=%d bids=%d", cache.LastUpdateID, len(cache.Bids))
	}

	select {
	case ev := <-events.Out:
		t.Fatalf("snapshot must not emit an event, got %+v", ev)
	default:
	}

	delta := models.BybitEnvelope{
		Topic: "orderbook.200.BTCUSDT",
		Type:  "delta",
		Cts:   1700000000100,
		Data:  json.RawMessage(`{"s":"BTCUSDT","b":[["42000","7"]],"a":[["42001","0"]],"u":101,"seq":2}`),
	}
	if err := s.handleDepth(ctx, delta, cache, buffer, log); err != nil {
		t.Fatalf("delta: %v", err)
	}

	ev := <-events.Out
	depthEv, ok := ev.(models.DepthEvent)
	if !ok {
		t.Fatalf("expected depth event, got %+v", ev)
	}
	if depthEv.Time != 1700000000100 {
		t.Fatalf("expected match-engine timestamp on event, got %d", depthEv.Time)
	}
	if len(depthEv.Book.Bids) == 0 || depthEv.Book.Bids[0].Qty != 7 {
		t.Fatalf("expected upserted bid in emitted view, got %+v", depthEv.Book.Bids)
	}
	for _, a := range depthEv.Book.Asks {
		if a.Price == 42001 {
			t.Fatalf("expected zero-quantity ask removed, got %+v", depthEv.Book.Asks)
		}
	}
}

func TestHandleDepthSequenceRestart(t *testing.T) {
	cfg := minimalConfig()
	events := channel.NewEvents(4)
	defer events.Close()

	s := NewMarketStream(cfg, events, models.BTCUSDT)
	cache := book.NewLocalDepthCache()
	buffer := trades.NewBuffer()
	log := s.log.WithComponent("test")

	// A delta-typed message with update id 1 is a full book resend.
	restart := models.BybitEnvelope{
		Topic: "orderbook.200.BTCUSDT",
		Type:  "delta",
		Cts:   1700000000000,
		Data:  json.RawMessage(`{"s":"BTCUSDT","b":[["42000","5"]],"a":[["42001","4"]],"u":1,"seq":9}`),
	}
	if err := s.handleDepth(context.Background(), restart, cache, buffer, log); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if cache.LastUpdateID != 1 || len(cache.Bids) != 1 {
		t.Fatalf("expected full resend treated as snapshot: id=%d bids=%d", cache.LastUpdateID, len(cache.Bids))
	}
	select {
	case ev := <-events.Out:
		t.Fatalf("resend must not emit an event, got %+v", ev)
	default:
	}
}

func TestKlineTopicRouting(t *testing.T) {
	cfg := minimalConfig()
	events := channel.NewEvents(1)
	defer events.Close()

	s := NewKlineStream(cfg, events, []KlineSub{
		{Ticker: models.BTCUSDT, Timeframe: models.M1},
		{Ticker: models.SOLUSDT, Timeframe: models.M15},
	})

	if got := topicSymbol("kline.15.SOLUSDT"); got != "SOLUSDT" {
		t.Fatalf("expected SOLUSDT from topic, got %q", got)
	}
	if got := topicSymbol("malformed"); got != "" {
		t.Fatalf("expected empty symbol for malformed topic, got %q", got)
	}

	sub, ok := s.match("SOLUSDT", "15")
	if !ok || sub.Timeframe != models.M15 {
		t.Fatalf("expected SOLUSDT 15m match, got %+v ok=%v", sub, ok)
	}
	if _, ok := s.match("BTCUSDT", "5"); ok {
		t.Fatalf("expected unsubscribed interval to be unmatched")
	}
}

func TestKlineVolumeSentinel(t *testing.T) {
	raw := []byte(`{"start":1700000000000,"end":1700000059999,"interval":"1","open":"42000","close":"42010","high":"42020","low":"41990","volume":"50","turnover":"2100000","confirm":false}`)

	var k models.BybitKlineData
	if err := json.Unmarshal(raw, &k); err != nil {
		t.Fatalf("unmarshal kline: %v", err)
	}
	if k.Volume != "50" || k.Interval != "1" {
		t.Fatalf("unexpected kline payload %+v", k)
	}

	// Total-only volume carries the no-split sentinel on the buy side.
	volume := models.KlineVolume{Buy: models.VolumeNoSplit, Sell: 50}
	if volume.Buy != -1.0 || volume.Sell != 50 {
		t.Fatalf("unexpected sentinel encoding %+v", volume)
	}
}
