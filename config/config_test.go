package config

import (
	"os"
	"testing"
	"time"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T) string {
	t.Helper()
	content := `depthflow:
  name: "TestApp"
  version: "1.0"
channels:
  event_buffer: 8
reader:
  timeout_ms: 5000
  reconnect_delay_ms: 250
subscriptions:
  depth:
  - exchange: binance_futures
    symbol: BTCUSDT
  klines:
  - exchange: bybit_linear
    symbol: ETHUSDT
    timeframes: ["1m", "5m"]
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Depthflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Depthflow.Name)
	}
	if cfg.Channels.EventBuffer != 8 {
		t.Errorf("unexpected event buffer: %d", cfg.Channels.EventBuffer)
	}
	if cfg.Reader.ReconnectDelay() != 250*time.Millisecond {
		t.Errorf("unexpected reconnect delay: %v", cfg.Reader.ReconnectDelay())
	}
	if len(cfg.Subscriptions.Depth) != 1 || cfg.Subscriptions.Depth[0].Symbol != "BTCUSDT" {
		t.Errorf("unexpected depth subscriptions: %+v", cfg.Subscriptions.Depth)
	}
	if len(cfg.Subscriptions.Klines) != 1 || len(cfg.Subscriptions.Klines[0].Timeframes) != 2 {
		t.Errorf("unexpected kline subscriptions: %+v", cfg.Subscriptions.Klines)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeTempConfig(t)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Source.Binance.WsURL == "" || cfg.Source.Binance.RestURL == "" {
		t.Errorf("expected binance endpoint defaults, got %+v", cfg.Source.Binance)
	}
	if cfg.Source.Binance.DepthLimit != 500 {
		t.Errorf("unexpected depth limit default: %d", cfg.Source.Binance.DepthLimit)
	}
	if cfg.Source.Bybit.DepthLevels != 200 {
		t.Errorf("unexpected bybit depth levels default: %d", cfg.Source.Bybit.DepthLevels)
	}
	if cfg.Source.Binance.RateLimit.RequestsPerSecond == 0 {
		t.Errorf("expected rate limit default, got %+v", cfg.Source.Binance.RateLimit)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/config.yml"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
