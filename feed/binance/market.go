package binance

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
	"github.com/gorilla/websocket"
)

// MarketStream owns one depth-and-trades subscription: a combined aggTrade
// plus diff-depth websocket, the local book reconciler and the trade buffer.
// It alternates between disconnected and connected forever; there is no
// terminal state.
type MarketStream struct {
	cfg     *appconfig.Config
	events  *channel.Events
	rest    *RestClient
	ticker  models.Ticker
	sub     models.StreamType
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewMarketStream(cfg *appconfig.Config, events *channel.Events, rest *RestClient, ticker models.Ticker) *MarketStream {
	return &MarketStream{
		cfg:    cfg,
		events: events,
		rest:   rest,
		ticker: ticker,
		sub:    models.NewDepthStream(models.BinanceFutures, ticker),
		wg:     &sync.WaitGroup{},
		log:    logger.GetLogger(),
	}
}

// Start launches the connection task. Each subscription runs independently;
// no state is shared between streams.
func (s *MarketStream) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("binance market stream already running")
	}
	s.running = true
	s.mu.Unlock()

	s.log.WithComponent("binance_market_stream").WithFields(logger.Fields{
		"symbol": string(s.ticker),
	}).Info("starting market stream")

	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

// Stop waits for the connection task to exit after ctx cancellation.
func (s *MarketStream) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.wg.Wait()
	s.log.WithComponent("binance_market_stream").Info("market stream stopped")
}

func (s *MarketStream) run(ctx context.Context) {
	defer s.wg.Done()

	log := s.log.WithComponent("binance_market_stream").WithFields(logger.Fields{
		"symbol": string(s.ticker),
	})

	for ctx.Err() == nil {
		reason := s.session(ctx, log)
		if ctx.Err() != nil {
			return
		}

		log.WithError(reason).Warn("market stream disconnected")
		s.events.Send(ctx, models.DisconnectedEvent{Sub: s.sub, Reason: reason.Error()})

		// Fixed backoff before the next dial; never reconnect in a tight
		// loop.
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.Reader.ReconnectDelay()):
		}
	}
}

type snapshotResult struct {
	update book.DepthUpdate
	err    error
}

// session runs one connect/read cycle and returns the disconnect reason.
// The reconciler, trade buffer and snapshot handoff all live and die with
// the session; nothing survives a reconnect.
func (s *MarketStream) session(ctx context.Context, log *logger.Entry) error {
	symbol := s.ticker.Symbol(models.BinanceFutures)
	tradeStream := fmt.Sprintf("%s@aggTrade", symbol)
	depthStream := fmt.Sprintf("%s@depth@100ms", symbol)
	wsURL := fmt.Sprintf("%s/stream?streams=%s/%s", s.cfg.Source.Binance.WsURL, tradeStream, depthStream)

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
	log.Info("market stream connected")

	if !s.events.Send(ctx, models.ConnectedEvent{Sub: s.sub, SessionID: sessionID}) {
		return ctx.Err()
	}

	recon := book.NewReconciler()
	buffer := trades.NewBuffer()
	snapshots := make(chan snapshotResult, 1)

	// First snapshot request. Until it lands, diffs are read and evaluated
	// but rejected as not yet alignable; the transport's receive buffer is
	// the only queue.
	s.requestSnapshot(ctx, recon, snapshots, log)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", feed.ErrFrameRead, err)
		}

		// Rendezvous with an outstanding snapshot fetch. The session task
		// is the cache's single owner; the fetch goroutine only delivers.
		select {
		case res := <-snapshots:
			if res.err != nil {
				log.WithError(res.err).Warn("snapshot fetch failed, will retry on next trigger")
				recon.SnapshotFailed()
			} else {
				recon.ApplySnapshot(res.update)
				log.WithFields(logger.Fields{
					"last_update_id": res.update.LastUpdateID,
				}).Info("snapshot applied")
			}
		default:
		}

		var envelope models.BinanceEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			log.WithError(fmt.Errorf("%w: %v", feed.ErrParse, err)).Warn("dropping malformed frame")
			continue
		}

		switch envelope.Stream {
		case tradeStream:
			s.handleTrade(envelope.Data, buffer, log)
		case depthStream:
			if err := s.handleDepth(ctx, envelope.Data, recon, buffer, snapshots, log); err != nil {
				return err
			}
		default:
			log.WithFields(logger.Fields{"stream": envelope.Stream}).Debug("dropping frame for unknown stream")
		}
	}
}

func (s *MarketStream) handleTrade(data json.RawMessage, buffer *trades.Buffer, log *logger.Entry) {
	var trade models.BinanceAggTrade
	if err := json.Unmarshal(data, &trade); err != nil {
		log.WithError(fmt.Errorf("%w: %v", feed.ErrParse, err)).Warn("dropping malformed trade")
		return
	}

	buffer.Add(models.Trade{
		Time:   trade.Time,
		IsSell: trade.IsSell,
		Price:  feed.ParseF32(trade.Price),
		Qty:    feed.ParseF32(trade.Qty),
	}, time.Now().UnixMilli())
	logger.IncrementTradeRead(len(data))
}

// handleDepth runs one diff through the reconciler. A non-nil error means
// continuity is unrecoverably broken and the session must be torn down.
func (s *MarketStream) handleDepth(ctx context.Context, data json.RawMessage, recon *book.Reconciler,
	buffer *trades.Buffer, snapshots chan snapshotResult, log *logger.Entry) error {

	var depthDiff models.BinanceDepthDiff
	if err := json.Unmarshal(data, &depthDiff); err != nil {
		log.WithError(fmt.Errorf("%w: %v", feed.ErrParse, err)).Warn("dropping malformed depth diff")
		return nil
	}
	logger.IncrementDepthRead(len(data))

	diff := book.Diff{
		FirstID:     depthDiff.FirstUpdateID,
		FinalID:     depthDiff.FinalUpdateID,
		PrevFinalID: depthDiff.PrevFinalUpdateID,
		Update: book.DepthUpdate{
			Time: depthDiff.Time,
			Bids: feed.ParseOrders(depthDiff.Bids),
			Asks: feed.ParseOrders(depthDiff.Asks),
		},
	}

	switch recon.Evaluate(diff) {
	case book.DropDiff:
		return nil

	case book.NeedsResync:
		log.WithFields(logger.Fields{
			"first_id":       diff.FirstID,
			"final_id":       diff.FinalID,
			"prev_final_id":  diff.PrevFinalID,
			"last_update_id": recon.LastUpdateID(),
		}).Warn("gap between snapshot and diff stream, requesting resync")
		s.requestSnapshot(ctx, recon, snapshots, log)
		return nil

	case book.ApplyDiff:
		bids, asks := recon.Apply(diff)
		flushed, avgTradeLatency := buffer.Flush()

		now := time.Now().UnixMilli()
		event := models.DepthEvent{
			Sub:  s.sub,
			Time: depthDiff.Time,
			Latency: models.FeedLatency{
				Time:         depthDiff.Time,
				DepthLatency: now - depthDiff.Time,
				TradeLatency: avgTradeLatency,
			},
			Book:   models.Depth{Time: depthDiff.Time, Bids: bids, Asks: asks},
			Trades: flushed,
		}
		if !s.events.Send(ctx, event) {
			return ctx.Err()
		}
		return nil

	default: // book.Desync
		return fmt.Errorf("%w: prev_id mismatch, expected pu=%d got pu=%d (u=%d)",
			feed.ErrSync, recon.LastUpdateID(), diff.PrevFinalID, diff.FinalID)
	}
}

// requestSnapshot starts an asynchronous REST snapshot fetch unless one is
// already outstanding. The result comes back through the handoff channel
// and is applied by the session task only.
func (s *MarketStream) requestSnapshot(ctx context.Context, recon *book.Reconciler,
	snapshots chan snapshotResult, log *logger.Entry) {

	if !recon.BeginResync() {
		log.Debug("snapshot fetch already outstanding")
		return
	}

	go func() {
		update, err := s.rest.FetchDepth(ctx, s.ticker)
		select {
		case snapshots <- snapshotResult{update: update, err: err}:
		case <-ctx.Done():
		}
	}()
}
