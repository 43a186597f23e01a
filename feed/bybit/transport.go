package bybit

import (
	"context"

	bybit "github.com/bybit-exchange/bybit.go.api"
)

// frameHandler adapts the SDK's per-message callback into an ordered handoff
// to the session task, so the book and the trade buffer keep a single owner.
// A blocked handoff blocks the SDK's read loop, which keeps consumer
// backpressure reaching the exchange.
func frameHandler(ctx context.Context, frames chan<- string) func(string) error {
	return func(message string) error {
		select {
		case frames <- message:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// openSocket connects the v5 public stream through the exchange SDK and
// returns the frame handoff channel plus a teardown func.
//
// The SDK surfaces no transport errors to the handler. Sessions detect a
// dead socket by frame timeout and rebuild.
func openSocket(ctx context.Context, wsURL string, topics []string) (<-chan string, func()) {
	frames := make(chan string, 16)

	ws := bybit.NewBybitPublicWebSocket(wsURL, frameHandler(ctx, frames))
	ws.Connect().SendSubscription(topics)

	return frames, func() { ws.Disconnect() }
}
