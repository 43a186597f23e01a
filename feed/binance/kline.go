package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	appconfig "depthflow/config"
	"depthflow/feed"
	"depthflow/internal/channel"
	"depthflow/logger"
	"depthflow/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// KlineSub is one instrument/timeframe pair carried by a kline stream.
type KlineSub struct {
	Ticker    models.Ticker
	Timeframe models.Timeframe
}

// KlineStream multiplexes many instrument/timeframe candle subscriptions
// over a single combined-stream transport, independent of any depth
// connection.
type KlineStream struct {
	cfg     *appconfig.Config
	events  *channel.Events
	subs    []KlineSub
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewKlineStream(cfg *appconfig.Config, events *channel.Events, subs []KlineSub) *KlineStream {
	return &KlineStream{
		cfg:    cfg,
		events: events,
		subs:   subs,
		wg:     &sync.WaitGroup{},
		log:    logger.GetLogger(),
	}
}

func (s *KlineStream) Start(ctx context.Context) error {
	if len(s.subs) == 0 {
		return fmt.Errorf("binance kline stream has no subscriptions")
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("binance kline stream already running")
	}
	s.running = true
	s.mu.Unlock()

	s.log.WithComponent("binance_kline_stream").WithFields(logger.Fields{
		"subscriptions": len(s.subs),
	}).Info("starting kline stream")

	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

func (s *KlineStream) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.wg.Wait()
	s.log.WithComponent("binance_kline_stream").Info("kline stream stopped")
}

func (s *KlineStream) run(ctx context.Context) {
	defer s.wg.Done()

	log := s.log.WithComponent("binance_kline_stream")

	names := make([]string, 0, len(s.subs))
	for _, sub := range s.subs {
		names = append(names, fmt.Sprintf("%s@kline_%s",
			sub.Ticker.Symbol(models.BinanceFutures), sub.Timeframe.BinanceInterval()))
	}
	wsURL := fmt.Sprintf("%s/stream?streams=%s", s.cfg.Source.Binance.WsURL, strings.Join(names, "/"))

	for ctx.Err() == nil {
		reason := s.session(ctx, wsURL, log)
		if ctx.Err() != nil {
			return
		}

		log.WithError(reason).Warn("kline stream disconnected")
		for _, sub := range s.subs {
			key := models.NewKlineStream(models.BinanceFutures, sub.Ticker, sub.Timeframe)
			if !s.events.Send(ctx, models.DisconnectedEvent{Sub: key, Reason: reason.Error()}) {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.Reader.ReconnectDelay()):
		}
	}
}

func (s *KlineStream) session(ctx context.Context, wsURL string, log *logger.Entry) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", feed.ErrTransportConnect, err)
	}
	defer conn.Close()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-sessionCtx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutting down"))
		conn.Close()
	}()

	sessionID := uuid.NewString()
	log = log.WithFields(logger.Fields{"session": sessionID})
	log.Info("kline stream connected")

	for _, sub := range s.subs {
		key := models.NewKlineStream(models.BinanceFutures, sub.Ticker, sub.Timeframe)
		if !s.events.Send(ctx, models.ConnectedEvent{Sub: key, SessionID: sessionID}) {
			return ctx.Err()
		}
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", feed.ErrFrameRead, err)
		}

		var envelope models.BinanceEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			log.WithError(fmt.Errorf("%w: %v", feed.ErrParse, err)).Warn("dropping malformed frame")
			continue
		}

		var event models.BinanceKlineEvent
		if err := json.Unmarshal(envelope.Data, &event); err != nil {
			log.WithError(fmt.Errorf("%w: %v", feed.ErrParse, err)).Warn("dropping malformed kline payload")
			continue
		}
		if event.Event != "kline" {
			continue
		}
		logger.IncrementKlineRead(len(raw))

		sub, ok := s.match(event.Symbol, event.Kline.Interval)
		if !ok {
			log.WithFields(logger.Fields{
				"symbol":   event.Symbol,
				"interval": event.Kline.Interval,
			}).Debug("dropping kline for unsubscribed interval")
			continue
		}

		total := feed.ParseF32(event.Kline.Volume)
		buy := feed.ParseF32(event.Kline.TakerBuyVolume)
		kline := models.Kline{
			Time:  uint64(event.Kline.Start),
			Open:  feed.ParseF32(event.Kline.Open),
			High:  feed.ParseF32(event.Kline.High),
			Low:   feed.ParseF32(event.Kline.Low),
			Close: feed.ParseF32(event.Kline.Close),
			Volume: models.KlineVolume{
				Buy:  buy,
				Sell: total - buy,
			},
		}

		key := models.NewKlineStream(models.BinanceFutures, sub.Ticker, sub.Timeframe)
		if !s.events.Send(ctx, models.KlineEvent{Sub: key, Timeframe: sub.Timeframe, Kline: kline}) {
			return ctx.Err()
		}
	}
}

// match routes a reported symbol/interval back to the subscribed pair.
// Unmatched intervals are dropped by the caller.
func (s *KlineStream) match(symbol, interval string) (KlineSub, bool) {
	for _, sub := range s.subs {
		if string(sub.Ticker) == symbol && sub.Timeframe.BinanceInterval() == interval {
			return sub, true
		}
	}
	return KlineSub{}, false
}
