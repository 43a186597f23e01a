package channel

import (
	"context"
	"sync"
	"time"

	"depthflow/logger"
	"depthflow/models"
)

// Stats counts traffic through the event channel.
type Stats struct {
	Sent    int64
	Dropped int64
}

// Events is the ordered, fixed-capacity output path between the feed tasks
// and the presentation layer. A full channel makes Send wait, which in turn
// delays further frame reads; that is the system's only backpressure
// mechanism.
type Events struct {
	Out chan models.Event

	stats      Stats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewEvents(bufferSize int) *Events {
	log := logger.GetLogger()
	e := &Events{
		Out: make(chan models.Event, bufferSize),
		log: log,
	}

	log.WithComponent("event_channel").WithFields(logger.Fields{
		"buffer_size": bufferSize,
	}).Info("event channel initialized")

	return e
}

// Send delivers an event in order, blocking while the consumer is behind.
// It returns false only when ctx is cancelled before the event is accepted.
func (e *Events) Send(ctx context.Context, ev models.Event) bool {
	select {
	case e.Out <- ev:
		e.statsMutex.Lock()
		e.stats.Sent++
		e.statsMutex.Unlock()
		return true
	case <-ctx.Done():
		e.statsMutex.Lock()
		e.stats.Dropped++
		e.statsMutex.Unlock()
		return false
	}
}

// StartMetricsReporting periodically logs channel throughput until ctx is
// cancelled.
func (e *Events) StartMetricsReporting(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := e.GetStats()
			e.log.WithComponent("event_channel").WithFields(logger.Fields{
				"sent":    stats.Sent,
				"dropped": stats.Dropped,
				"queued":  len(e.Out),
			}).Info("event channel metrics")
		}
	}
}

func (e *Events) GetStats() Stats {
	e.statsMutex.RLock()
	defer e.statsMutex.RUnlock()
	return e.stats
}

func (e *Events) Close() {
	close(e.Out)
	e.log.WithComponent("event_channel").Info("event channel closed")
}
