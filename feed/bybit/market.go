package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	appconfig "depthflow/config"
	"depthflow/feed"
	"depthflow/internal/book"
	"depthflow/internal/channel"
	"depthflow/internal/trades"
	"depthflow/logger"
	"depthflow/models"

	"github.com/google/uuid"
)

// MarketStream owns one depth-and-trades subscription on the Bybit v5
// linear stream. Unlike Binance, Bybit delivers the book snapshot on the
// websocket itself: the first orderbook message of a session is a snapshot
// and later ones are deltas, so there is no REST alignment protocol here.
type MarketStream struct {
	cfg     *appconfig.Config
	events  *channel.Events
	ticker  models.Ticker
	sub     models.StreamType
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewMarketStream(cfg *appconfig.Config, events *channel.Events, ticker models.Ticker) *MarketStream {
	return &MarketStream{
		cfg:    cfg,
		events: events,
		ticker: ticker,
		sub:    models.NewDepthStream(models.BybitLinear, ticker),
		wg:     &sync.WaitGroup{},
		log:    logger.GetLogger(),
	}
}

func (s *MarketStream) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("bybit market stream already running")
	}
	s.running = true
	s.mu.Unlock()

	s.log.WithComponent("bybit_market_stream").WithFields(logger.Fields{
		"symbol": string(s.ticker),
	}).Info("starting market stream")

	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

func (s *MarketStream) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.wg.Wait()
	s.log.WithComponent("bybit_market_stream").Info("market stream stopped")
}

func (s *MarketStream) run(ctx context.Context) {
	defer s.wg.Done()

	log := s.log.WithComponent("bybit_market_stream").WithFields(logger.Fields{
		"symbol": string(s.ticker),
	})

	for ctx.Err() == nil {
		reason := s.session(ctx, log)
		if ctx.Err() != nil {
			return
		}

		log.WithError(reason).Warn("market stream disconnected")
		s.events.Send(ctx, models.DisconnectedEvent{Sub: s.sub, Reason: reason.Error()})

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.Reader.ReconnectDelay()):
		}
	}
}

func (s *MarketStream) session(ctx context.Context, log *logger.Entry) error {
	symbol := s.ticker.Symbol(models.BybitLinear)
	tradeTopic := fmt.Sprintf("publicTrade.%s", symbol)
	depthTopic := fmt.Sprintf("orderbook.%d.%s", s.cfg.Source.Bybit.DepthLevels, symbol)

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames, disconnect := openSocket(sessionCtx, s.cfg.Source.Bybit.WsURL, []string{tradeTopic, depthTopic})
	defer disconnect()

	sessionID := uuid.NewString()
	log = log.WithFields(logger.Fields{"session": sessionID})
	log.Info("market stream connected")

	if !s.events.Send(ctx, models.ConnectedEvent{Sub: s.sub, SessionID: sessionID}) {
		return ctx.Err()
	}

	cache := book.NewLocalDepthCache()
	buffer := trades.NewBuffer()

	timeout := s.cfg.Reader.Timeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timer.C:
			return fmt.Errorf("%w: no frame within %s", feed.ErrFrameRead, timeout)

		case raw := <-frames:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(timeout)

			var envelope models.BybitEnvelope
			if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
				log.WithError(fmt.Errorf("%w: %v", feed.ErrParse, err)).Warn("dropping malformed frame")
				continue
			}
			// Operation acks and heartbeats carry no topic.
			if envelope.Topic == "" {
				continue
			}

			switch envelope.Topic {
			case tradeTopic:
				s.handleTrades(envelope.Data, buffer, log)
			case depthTopic:
				if err := s.handleDepth(ctx, envelope, cache, buffer, log); err != nil {
					return err
				}
			default:
				log.WithFields(logger.Fields{"topic": envelope.Topic}).Debug("dropping frame for unknown topic")
			}
		}
	}
}

func (s *MarketStream) handleTrades(data json.RawMessage, buffer *trades.Buffer, log *logger.Entry) {
	var wireTrades []models.BybitTrade
	if err := json.Unmarshal(data, &wireTrades); err != nil {
		log.WithError(fmt.Errorf("%w: %v", feed.ErrParse, err)).Warn("dropping malformed trade payload")
		return
	}

	now := time.Now().UnixMilli()
	for _, t := range wireTrades {
		buffer.Add(models.Trade{
			Time:   t.Time,
			IsSell: t.Side == "Sell",
			Price:  feed.ParseF32(t.Price),
			Qty:    feed.ParseF32(t.Qty),
		}, now)
	}
	logger.IncrementTradeRead(len(data))
}

func (s *MarketStream) handleDepth(ctx context.Context, envelope models.BybitEnvelope,
	cache *book.LocalDepthCache, buffer *trades.Buffer, log *logger.Entry) error {

	var depth models.BybitDepthData
	if err := json.Unmarshal(envelope.Data, &depth); err != nil {
		log.WithError(fmt.Errorf("%w: %v", feed.ErrParse, err)).Warn("dropping malformed depth payload")
		return nil
	}
	logger.IncrementDepthRead(len(envelope.Data))

	update := book.DepthUpdate{
		LastUpdateID: depth.UpdateID,
		Time:         envelope.Cts,
		Bids:         feed.ParseOrders(depth.Bids),
		Asks:         feed.ParseOrders(depth.Asks),
	}

	// The exchange restarts the sequence at 1 when it resends a full book,
	// even when the message is typed as a delta.
	if envelope.Type == "snapshot" || depth.UpdateID == 1 {
		cache.Fetched(update)
		log.WithFields(logger.Fields{"update_id": depth.UpdateID}).Info("book snapshot received")
		return nil
	}
	if envelope.Type != "delta" {
		log.WithFields(logger.Fields{"type": envelope.Type}).Debug("dropping depth message of unknown type")
		return nil
	}

	bids, asks := cache.UpdateLevels(update)
	flushed, avgTradeLatency := buffer.Flush()

	now := time.Now().UnixMilli()
	event := models.DepthEvent{
		Sub:  s.sub,
		Time: envelope.Cts,
		Latency: models.FeedLatency{
			Time:         envelope.Cts,
			DepthLatency: now - envelope.Cts,
			TradeLatency: avgTradeLatency,
		},
		Book:   models.Depth{Time: envelope.Cts, Bids: bids, Asks: asks},
		Trades: flushed,
	}
	if !s.events.Send(ctx, event) {
		return ctx.Err()
	}
	return nil
}
