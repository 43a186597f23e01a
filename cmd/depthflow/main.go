package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"depthflow/config"
	"depthflow/feed/binance"
	"depthflow/feed/bybit"
	"depthflow/internal/channel"
	"depthflow/logger"
	"depthflow/models"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Depthflow.Name,
		"version": cfg.Depthflow.Version,
	}).Info("starting depthflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.InitCloudWatch("", "Depthflow", "Depthflow")
		logger.StartReport(ctx, log, 30*time.Second)
	}

	events := channel.NewEvents(cfg.Channels.EventBuffer)

	go events.StartMetricsReporting(ctx)

	binanceRest := binance.NewRestClient(cfg)
	bybitRest := bybit.NewRestClient(cfg)

	streams := buildStreams(cfg, events, binanceRest, log)

	backfill(ctx, cfg, binanceRest, bybitRest, log)

	for _, s := range streams {
		if err := s.Start(ctx); err != nil {
			log.WithError(err).Warn("stream failed to start")
		}
	}

	go consume(ctx, events, log)

	time.Sleep(2 * time.Second)
	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	done := make(chan struct{})
	go func() {
		for _, s := range streams {
			s.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		// All stream goroutines have returned, so nobody can be inside a
		// send anymore and the channel is safe to close.
		events.Close()
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("depthflow stopped")
}

type stream interface {
	Start(ctx context.Context) error
	Stop()
}

// buildStreams translates the configured subscriptions into one market stream
// per depth instrument and one multiplexed kline stream per exchange.
func buildStreams(cfg *config.Config, events *channel.Events, binanceRest *binance.RestClient, log *logger.Log) []stream {
	var streams []stream

	for _, sub := range cfg.Subscriptions.Depth {
		ticker, ok := models.ParseTicker(sub.Symbol)
		if !ok {
			log.WithComponent("main").WithFields(logger.Fields{
				"symbol": sub.Symbol,
			}).Warn("unsupported depth symbol; skipping")
			continue
		}

		switch models.Exchange(sub.Exchange) {
		case models.BinanceFutures:
			streams = append(streams, binance.NewMarketStream(cfg, events, binanceRest, ticker))
		case models.BybitLinear:
			streams = append(streams, bybit.NewMarketStream(cfg, events, ticker))
		default:
			log.WithComponent("main").WithFields(logger.Fields{
				"exchange": sub.Exchange,
			}).Warn("unsupported depth exchange; skipping")
		}
	}

	binanceSubs := make([]binance.KlineSub, 0)
	bybitSubs := make([]bybit.KlineSub, 0)

	for _, sub := range cfg.Subscriptions.Klines {
		ticker, ok := models.ParseTicker(sub.Symbol)
		if !ok {
			log.WithComponent("main").WithFields(logger.Fields{
				"symbol": sub.Symbol,
			}).Warn("unsupported kline symbol; skipping")
			continue
		}

		for _, tfs := range sub.Timeframes {
			tf, ok := models.ParseTimeframe(tfs)
			if !ok {
				log.WithComponent("main").WithFields(logger.Fields{
					"timeframe": tfs,
				}).Warn("unsupported timeframe; skipping")
				continue
			}

			switch models.Exchange(sub.Exchange) {
			case models.BinanceFutures:
				binanceSubs = append(binanceSubs, binance.KlineSub{Ticker: ticker, Timeframe: tf})
			case models.BybitLinear:
				bybitSubs = append(bybitSubs, bybit.KlineSub{Ticker: ticker, Timeframe: tf})
			default:
				log.WithComponent("main").WithFields(logger.Fields{
					"exchange": sub.Exchange,
				}).Warn("unsupported kline exchange; skipping")
			}
		}
	}

	if len(binanceSubs) > 0 {
		streams = append(streams, binance.NewKlineStream(cfg, events, binanceSubs))
	}
	if len(bybitSubs) > 0 {
		streams = append(streams, bybit.NewKlineStream(cfg, events, bybitSubs))
	}

	return streams
}

// backfill fetches tick sizes and recent candle history before the live
// streams come up, so consumers start with context instead of an empty book.
func backfill(ctx context.Context, cfg *config.Config, binanceRest *binance.RestClient, bybitRest *bybit.RestClient, log *logger.Log) {
	mlog := log.WithComponent("backfill")

	for _, sub := range cfg.Subscriptions.Depth {
		ticker, ok := models.ParseTicker(sub.Symbol)
		if !ok {
			continue
		}

		var tickSize float32
		var err error
		switch models.Exchange(sub.Exchange) {
		case models.BinanceFutures:
			tickSize, err = binanceRest.FetchTickSize(ctx, ticker)
		case models.BybitLinear:
			tickSize, err = bybitRest.FetchTickSize(ctx, ticker)
		default:
			continue
		}
		if err != nil {
			mlog.WithError(err).WithFields(logger.Fields{
				"exchange": sub.Exchange,
				"symbol":   sub.Symbol,
			}).Warn("tick size fetch failed")
			continue
		}
		mlog.WithFields(logger.Fields{
			"exchange":  sub.Exchange,
			"symbol":    sub.Symbol,
			"tick_size": tickSize,
		}).Info("fetched tick size")
	}

	for _, sub := range cfg.Subscriptions.Klines {
		ticker, ok := models.ParseTicker(sub.Symbol)
		if !ok {
			continue
		}
		for _, tfs := range sub.Timeframes {
			tf, ok := models.ParseTimeframe(tfs)
			if !ok {
				continue
			}

			var klines []models.Kline
			var err error
			switch models.Exchange(sub.Exchange) {
			case models.BinanceFutures:
				klines, err = binanceRest.FetchKlines(ctx, ticker, tf)
			case models.BybitLinear:
				klines, err = bybitRest.FetchKlines(ctx, ticker, tf)
			default:
				continue
			}
			if err != nil {
				mlog.WithError(err).WithFields(logger.Fields{
					"exchange":  sub.Exchange,
					"symbol":    sub.Symbol,
					"timeframe": tfs,
				}).Warn("kline backfill failed")
				continue
			}
			mlog.WithFields(logger.Fields{
				"exchange":  sub.Exchange,
				"symbol":    sub.Symbol,
				"timeframe": tfs,
				"count":     len(klines),
			}).Info("backfilled klines")
		}
	}
}

// consume drains the consolidated event channel. This binary has no UI; the
// consumer logs a digest of each event so operators can watch the flow.
func consume(ctx context.Context, events *channel.Events, log *logger.Log) {
	clog := log.WithComponent("consumer")

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events.Out:
			if !ok {
				return
			}

			switch e := ev.(type) {
			case models.ConnectedEvent:
				clog.WithFields(logger.Fields{
					"exchange": string(e.Sub.Exchange),
					"ticker":   string(e.Sub.Ticker),
					"kind":     string(e.Sub.Kind),
					"session":  e.SessionID,
				}).Info("stream connected")
			case models.DisconnectedEvent:
				clog.WithFields(logger.Fields{
					"exchange": string(e.Sub.Exchange),
					"ticker":   string(e.Sub.Ticker),
					"kind":     string(e.Sub.Kind),
					"reason":   e.Reason,
				}).Warn("stream disconnected")
			case models.DepthEvent:
				fields := logger.Fields{
					"exchange":         string(e.Sub.Exchange),
					"ticker":           string(e.Sub.Ticker),
					"bids":             len(e.Book.Bids),
					"asks":             len(e.Book.Asks),
					"trades":           len(e.Trades),
					"depth_latency_ms": e.Latency.DepthLatency,
				}
				if e.Latency.TradeLatency != nil {
					fields["trade_latency_ms"] = *e.Latency.TradeLatency
				}
				clog.WithFields(fields).Debug("depth update")
			case models.KlineEvent:
				clog.WithFields(logger.Fields{
					"exchange":  string(e.Sub.Exchange),
					"ticker":    string(e.Sub.Ticker),
					"timeframe": string(e.Timeframe),
					"open_time": e.Kline.Time,
					"close":     e.Kline.Close,
				}).Debug("kline update")
			}
		}
	}
}
