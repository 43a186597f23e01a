package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	appconfig "depthflow/config"
	"depthflow/feed"
	"depthflow/internal/book"
	"depthflow/logger"
	"depthflow/models"

	futures "github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"
)

// RestClient wraps the one-shot Binance futures REST calls: order book
// snapshot, kline backfill and tick-size metadata. All calls go through a
// shared pooled transport and a client-side rate limiter.
type RestClient struct {
	cfg     *appconfig.Config
	client  *futures.Client
	limiter *rate.Limiter
	log     *logger.Log
}

func NewRestClient(cfg *appconfig.Config) *RestClient {
	src := cfg.Source.Binance

	transport := &http.Transport{
		MaxIdleConns:        src.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: src.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     src.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     src.ConnectionPool.IdleConnTimeout(),
	}

	client := futures.NewClient("", "")
	client.HTTPClient = &http.Client{
		Transport: transport,
		Timeout:   cfg.Reader.Timeout(),
	}
	client.SetApiEndpoint(src.RestURL)

	return &RestClient{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(src.RateLimit.RequestsPerSecond), src.RateLimit.BurstSize),
		log:     logger.GetLogger(),
	}
}

// FetchDepth retrieves a full order book snapshot at the configured depth
// limit. The snapshot's lastUpdateId anchors diff-stream alignment.
func (c *RestClient) FetchDepth(ctx context.Context, ticker models.Ticker) (book.DepthUpdate, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return book.DepthUpdate{}, fmt.Errorf("%w: %v", feed.ErrFetch, err)
	}

	log := c.log.WithComponent("binance_snapshot").WithFields(logger.Fields{"symbol": string(ticker)})

	reqURL := fmt.Sprintf("%s/fapi/v1/depth?symbol=%s&limit=%d",
		c.cfg.Source.Binance.RestURL, string(ticker), c.cfg.Source.Binance.DepthLimit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return book.DepthUpdate{}, fmt.Errorf("%w: %v", feed.ErrFetch, err)
	}

	start := time.Now()
	resp, err := c.client.HTTPClient.Do(req)
	if err != nil {
		return book.DepthUpdate{}, fmt.Errorf("%w: %v", feed.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return book.DepthUpdate{}, fmt.Errorf("%w: depth snapshot returned status %d", feed.ErrFetch, resp.StatusCode)
	}

	var snapshot models.BinanceDepthSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return book.DepthUpdate{}, fmt.Errorf("%w: decode depth snapshot: %v", feed.ErrFetch, err)
	}

	logger.LogPerformanceEntry(log, "binance_snapshot", "fetch_depth", time.Since(start), logger.Fields{
		"last_update_id": snapshot.LastUpdateID,
		"bids":           len(snapshot.Bids),
		"asks":           len(snapshot.Asks),
	})
	logger.IncrementSnapshotRead(len(snapshot.Bids) + len(snapshot.Asks))

	return book.DepthUpdate{
		LastUpdateID: snapshot.LastUpdateID,
		Time:         snapshot.Time,
		Bids:         feed.ParseOrders(snapshot.Bids),
		Asks:         feed.ParseOrders(snapshot.Asks),
	}, nil
}

// FetchKlines backfills recent candles for one instrument and timeframe.
// Binance reports the taker buy volume, so the canonical volume carries a
// real buy/sell split.
func (c *RestClient) FetchKlines(ctx context.Context, ticker models.Ticker, tf models.Timeframe) ([]models.Kline, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", feed.ErrFetch, err)
	}

	rows, err := c.client.NewKlinesService().
		Symbol(string(ticker)).
		Interval(tf.BinanceInterval()).
		Limit(c.cfg.Source.Binance.KlineLimit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: klines %s %s: %v", feed.ErrFetch, ticker, tf, err)
	}

	klines := make([]models.Kline, 0, len(rows))
	for _, row := range rows {
		total := feed.ParseF32(row.Volume)
		buy := feed.ParseF32(row.TakerBuyBaseAssetVolume)
		klines = append(klines, models.Kline{
			Time:  uint64(row.OpenTime),
			Open:  feed.ParseF32(row.Open),
			High:  feed.ParseF32(row.High),
			Low:   feed.ParseF32(row.Low),
			Close: feed.ParseF32(row.Close),
			Volume: models.KlineVolume{
				Buy:  buy,
				Sell: total - buy,
			},
		})
	}
	return klines, nil
}

// FetchTickSize reads the instrument's PRICE_FILTER tick size from the
// exchange info endpoint.
func (c *RestClient) FetchTickSize(ctx context.Context, ticker models.Ticker) (float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", feed.ErrFetch, err)
	}

	info, err := c.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: exchange info: %v", feed.ErrFetch, err)
	}

	for _, sym := range info.Symbols {
		if sym.Symbol != string(ticker) {
			continue
		}
		for _, filter := range sym.Filters {
			if filter["filterType"] != "PRICE_FILTER" {
				continue
			}
			tickSize, ok := filter["tickSize"].(string)
			if !ok {
				return 0, fmt.Errorf("%w: tick size is not a string", feed.ErrFetch)
			}
			return feed.ParseF32(tickSize), nil
		}
	}
	return 0, fmt.Errorf("%w: tick size not found for %s", feed.ErrFetch, ticker)
}
