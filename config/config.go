package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Depthflow     DepthflowConfig     `yaml:"depthflow"`
	Logging       LoggingConfig       `yaml:"logging"`
	Channels      ChannelsConfig      `yaml:"channels"`
	Reader        ReaderConfig        `yaml:"reader"`
	Source        SourceConfig        `yaml:"source"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`
}

type DepthflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type ChannelsConfig struct {
	EventBuffer int `yaml:"event_buffer"`
}

type ReaderConfig struct {
	TimeoutMs        int `yaml:"timeout_ms"`
	ReconnectDelayMs int `yaml:"reconnect_delay_ms"`
}

func (r ReaderConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

func (r ReaderConfig) ReconnectDelay() time.Duration {
	return time.Duration(r.ReconnectDelayMs) * time.Millisecond
}

type SourceConfig struct {
	Binance BinanceSourceConfig `yaml:"binance"`
	Bybit   BybitSourceConfig   `yaml:"bybit"`
}

type BinanceSourceConfig struct {
	WsURL          string               `yaml:"ws_url"`
	RestURL        string               `yaml:"rest_url"`
	DepthLimit     int                  `yaml:"depth_limit"`
	KlineLimit     int                  `yaml:"kline_limit"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
}

type BybitSourceConfig struct {
	WsURL          string               `yaml:"ws_url"`
	RestURL        string               `yaml:"rest_url"`
	DepthLevels    int                  `yaml:"depth_levels"`
	KlineLimit     int                  `yaml:"kline_limit"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns       int `yaml:"max_idle_conns"`
	MaxConnsPerHost    int `yaml:"max_conns_per_host"`
	IdleConnTimeoutSec int `yaml:"idle_conn_timeout_sec"`
}

func (c ConnectionPoolConfig) IdleConnTimeout() time.Duration {
	return time.Duration(c.IdleConnTimeoutSec) * time.Second
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

type SubscriptionsConfig struct {
	Depth  []DepthSubscription `yaml:"depth"`
	Klines []KlineSubscription `yaml:"klines"`
}

type DepthSubscription struct {
	Exchange string `yaml:"exchange"`
	Symbol   string `yaml:"symbol"`
}

type KlineSubscription struct {
	Exchange   string   `yaml:"exchange"`
	Symbol     string   `yaml:"symbol"`
	Timeframes []string `yaml:"timeframes"`
}

// LoadConfig reads a YAML configuration file and fills in defaults for
// everything left unset.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse YAML: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Depthflow.Name == "" {
		c.Depthflow.Name = "depthflow"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Channels.EventBuffer == 0 {
		c.Channels.EventBuffer = 100
	}
	if c.Reader.TimeoutMs == 0 {
		c.Reader.TimeoutMs = 10000
	}
	if c.Reader.ReconnectDelayMs == 0 {
		c.Reader.ReconnectDelayMs = 1000
	}

	b := &c.Source.Binance
	if b.WsURL == "" {
		b.WsURL = "wss://fstream.binance.com"
	}
	if b.RestURL == "" {
		b.RestURL = "https://fapi.binance.com"
	}
	if b.DepthLimit == 0 {
		b.DepthLimit = 500
	}
	if b.KlineLimit == 0 {
		b.KlineLimit = 720
	}
	applyPoolDefaults(&b.ConnectionPool)
	applyRateDefaults(&b.RateLimit)

	y := &c.Source.Bybit
	if y.WsURL == "" {
		y.WsURL = "wss://stream.bybit.com/v5/public/linear"
	}
	if y.RestURL == "" {
		y.RestURL = "https://api.bybit.com"
	}
	if y.DepthLevels == 0 {
		y.DepthLevels = 200
	}
	if y.KlineLimit == 0 {
		y.KlineLimit = 250
	}
	applyPoolDefaults(&y.ConnectionPool)
	applyRateDefaults(&y.RateLimit)
}

func applyPoolDefaults(p *ConnectionPoolConfig) {
	if p.MaxIdleConns == 0 {
		p.MaxIdleConns = 10
	}
	if p.MaxConnsPerHost == 0 {
		p.MaxConnsPerHost = 10
	}
	if p.IdleConnTimeoutSec == 0 {
		p.IdleConnTimeoutSec = 90
	}
}

func applyRateDefaults(r *RateLimitConfig) {
	if r.RequestsPerSecond == 0 {
		r.RequestsPerSecond = 5
	}
	if r.BurstSize == 0 {
		r.BurstSize = 2
	}
}
