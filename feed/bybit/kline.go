package bybit

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
)

// KlineSub is one instrument/timeframe pair carried by a kline stream.
type KlineSub struct {
	Ticker    models.Ticker
	Timeframe models.Timeframe
}

// KlineStream multiplexes candle subscriptions over one Bybit v5
// connection. Bybit reports only total volume, so emitted candles carry the
// no-split sentinel.
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
		return fmt.Errorf("bybit kline stream has no subscriptions")
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("bybit kline stream already running")
	}
	s.running = true
	s.mu.Unlock()

	s.log.WithComponent("bybit_kline_stream").WithFields(logger.Fields{
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
	s.log.WithComponent("bybit_kline_stream").Info("kline stream stopped")
}

func (s *KlineStream) run(ctx context.Context) {
	defer s.wg.Done()

	log := s.log.WithComponent("bybit_kline_stream")

	topics := make([]string, 0, len(s.subs))
	for _, sub := range s.subs {
		topics = append(topics, fmt.Sprintf("kline.%s.%s",
			sub.Timeframe.BybitInterval(), sub.Ticker.Symbol(models.BybitLinear)))
	}

	for ctx.Err() == nil {
		reason := s.session(ctx, topics, log)
		if ctx.Err() != nil {
			return
		}

		log.WithError(reason).Warn("kline stream disconnected")
		for _, sub := range s.subs {
			key := models.NewKlineStream(models.BybitLinear, sub.Ticker, sub.Timeframe)
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

func (s *KlineStream) session(ctx context.Context, topics []string, log *logger.Entry) error {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames, disconnect := openSocket(sessionCtx, s.cfg.Source.Bybit.WsURL, topics)
	defer disconnect()

	sessionID := uuid.NewString()
	log = log.WithFields(logger.Fields{"session": sessionID})
	log.Info("kline stream connected")

	for _, sub := range s.subs {
		key := models.NewKlineStream(models.BybitLinear, sub.Ticker, sub.Timeframe)
		if !s.events.Send(ctx, models.ConnectedEvent{Sub: key, SessionID: sessionID}) {
			return ctx.Err()
		}
	}

	timeout := s.cfg.Reader.Timeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		var raw string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("%w: no frame within %s", feed.ErrFrameRead, timeout)
		case raw = <-frames:
		}
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
		if !strings.HasPrefix(envelope.Topic, "kline.") {
			continue
		}

		var klines []models.BybitKlineData
		if err := json.Unmarshal(envelope.Data, &klines); err != nil {
			log.WithError(fmt.Errorf("%w: %v", feed.ErrParse, err)).Warn("dropping malformed kline payload")
			continue
		}
		logger.IncrementKlineRead(len(raw))

		symbol := topicSymbol(envelope.Topic)
		for _, k := range klines {
			sub, ok := s.match(symbol, k.Interval)
			if !ok {
				log.WithFields(logger.Fields{
					"symbol":   symbol,
					"interval": k.Interval,
				}).Debug("dropping kline for unsubscribed interval")
				continue
			}

			kline := models.Kline{
				Time:  uint64(k.Start),
				Open:  feed.ParseF32(k.Open),
				High:  feed.ParseF32(k.High),
				Low:   feed.ParseF32(k.Low),
				Close: feed.ParseF32(k.Close),
				Volume: models.KlineVolume{
					Buy:  models.VolumeNoSplit,
					Sell: feed.ParseF32(k.Volume),
				},
			}

			key := models.NewKlineStream(models.BybitLinear, sub.Ticker, sub.Timeframe)
			if !s.events.Send(ctx, models.KlineEvent{Sub: key, Timeframe: sub.Timeframe, Kline: kline}) {
				return ctx.Err()
			}
		}
	}
}

// topicSymbol extracts the symbol from a "kline.<interval>.<symbol>" topic.
func topicSymbol(topic string) string {
	parts := strings.Split(topic, ".")
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}

// match routes a reported symbol/interval back to the subscribed pair.
func (s *KlineStream) match(symbol, interval string) (KlineSub, bool) {
	tf, ok := models.TimeframeFromBybitInterval(interval)
	if !ok {
		return KlineSub{}, false
	}
	for _, sub := range s.subs {
		if string(sub.Ticker) == symbol && sub.Timeframe == tf {
			return sub, true
		}
	}
	return KlineSub{}, false
}
