package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	appconfig "depthflow/config"
	"depthflow/feed"
	"depthflow/logger"
	"depthflow/models"

	"golang.org/x/time/rate"
)

// RestClient wraps the one-shot Bybit v5 market REST calls: kline backfill
// and instrument tick-size metadata.
type RestClient struct {
	cfg     *appconfig.Config
	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Log
}

func NewRestClient(cfg *appconfig.Config) *RestClient {
	src := cfg.Source.Bybit

	transport := &http.Transport{
		MaxIdleConns:        src.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: src.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     src.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     src.ConnectionPool.IdleConnTimeout(),
	}

	return &RestClient{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Reader.Timeout(),
		},
		limiter: rate.NewLimiter(rate.Limit(src.RateLimit.RequestsPerSecond), src.RateLimit.BurstSize),
		log:     logger.GetLogger(),
	}
}

// get performs one rate-limited GET against the v5 API and unwraps the
// common response envelope.
func (c *RestClient) get(ctx context.Context, url string) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", feed.ErrFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", feed.ErrFetch, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", feed.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", feed.ErrFetch, resp.StatusCode)
	}

	var api models.BybitAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", feed.ErrFetch, err)
	}
	if api.RetCode != 0 {
		return nil, fmt.Errorf("%w: retCode %d: %s", feed.ErrFetch, api.RetCode, api.RetMsg)
	}
	return api.Result, nil
}

// FetchKlines backfills recent candles. Rows arrive newest first as
// [start, open, high, low, close, volume, turnover] string arrays; only
// total volume is reported, so candles carry the no-split sentinel.
func (c *RestClient) FetchKlines(ctx context.Context, ticker models.Ticker, tf models.Timeframe) ([]models.Kline, error) {
	url := fmt.Sprintf("%s/v5/market/kline?category=linear&symbol=%s&interval=%s&limit=%d",
		c.cfg.Source.Bybit.RestURL, string(ticker), tf.BybitInterval(), c.cfg.Source.Bybit.KlineLimit)

	start := time.Now()
	result, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var body models.BybitKlineResult
	if err := json.Unmarshal(result, &body); err != nil {
		return nil, fmt.Errorf("%w: decode kline result: %v", feed.ErrFetch, err)
	}

	klines := make([]models.Kline, 0, len(body.List))
	for _, row := range body.List {
		if len(row) < 6 {
			continue
		}
		openTime, err := strconv.ParseUint(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: parse kline start %q: %v", feed.ErrFetch, row[0], err)
		}
		klines = append(klines, models.Kline{
			Time:  openTime,
			Open:  feed.ParseF32(row[1]),
			High:  feed.ParseF32(row[2]),
			Low:   feed.ParseF32(row[3]),
			Close: feed.ParseF32(row[4]),
			Volume: models.KlineVolume{
				Buy:  models.VolumeNoSplit,
				Sell: feed.ParseF32(row[5]),
			},
		})
	}

	logger.LogPerformanceEntry(c.log.WithComponent("bybit_rest"), "bybit_rest", "fetch_klines",
		time.Since(start), logger.Fields{"symbol": string(ticker), "timeframe": string(tf), "count": len(klines)})

	return klines, nil
}

// FetchTickSize reads the instrument's price filter tick size.
func (c *RestClient) FetchTickSize(ctx context.Context, ticker models.Ticker) (float32, error) {
	url := fmt.Sprintf("%s/v5/market/instruments-info?category=linear&symbol=%s",
		c.cfg.Source.Bybit.RestURL, string(ticker))

	result, err := c.get(ctx, url)
	if err != nil {
		return 0, err
	}

	var body models.BybitInstrumentsResult
	if err := json.Unmarshal(result, &body); err != nil {
		return 0, fmt.Errorf("%w: decode instruments result: %v", feed.ErrFetch, err)
	}

	for _, instrument := range body.List {
		if instrument.Symbol == string(ticker) {
			return feed.ParseF32(instrument.PriceFilter.TickSize), nil
		}
	}
	return 0, fmt.Errorf("%w: tick size not found for %s", feed.ErrFetch, ticker)
}
