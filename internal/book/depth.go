package book

import (
	"math"
	"sort"

	"depthflow/models"
)

// DepthUpdate is a parsed depth payload, used both for REST snapshots and
// for the bid/ask lists carried by a diff.
type DepthUpdate struct {
	LastUpdateID int64
	Time         int64
	Bids         []models.Order
	Asks         []models.Order
}

// LocalDepthCache is the mutable order book owned by exactly one connection
// task. It holds at most one order per price per side; levels are only ever
// touched through Fetched and UpdateLevels. It is created empty on connect
// and discarded on teardown, never shared across connections.
type LocalDepthCache struct {
	LastUpdateID int64
	Time         int64
	Bids         []models.Order
	Asks         []models.Order
}

func NewLocalDepthCache() *LocalDepthCache {
	return &LocalDepthCache{}
}

// Fetched replaces the whole book with a snapshot.
func (c *LocalDepthCache) Fetched(d DepthUpdate) {
	c.LastUpdateID = d.LastUpdateID
	c.Time = d.Time
	c.Bids = d.Bids
	c.Asks = d.Asks
}

// applyLevels merges one side of a diff into the cache. A zero quantity
// removes the level, anything else upserts keyed by price.
func applyLevels(side []models.Order, changes []models.Order) []models.Order {
	for _, change := range changes {
		if change.Qty == 0 {
			for i, existing := range side {
				if existing.Price == change.Price {
					side = append(side[:i], side[i+1:]...)
					break
				}
			}
			continue
		}
		updated := false
		for i := range side {
			if side[i].Price == change.Price {
				side[i].Qty = change.Qty
				updated = true
				break
			}
		}
		if !updated {
			side = append(side, change)
		}
	}
	return side
}

// UpdateDepthCache applies a diff's bid and ask lists to the cache.
func (c *LocalDepthCache) UpdateDepthCache(bids, asks []models.Order) {
	c.Bids = applyLevels(c.Bids, bids)
	c.Asks = applyLevels(c.Asks, asks)
}

// UpdateLevels applies a diff and returns the consumer-facing view: levels
// within 0.1% of the best prices seen before the diff, bids sorted
// descending and asks ascending.
func (c *LocalDepthCache) UpdateLevels(d DepthUpdate) (localBids, localAsks []models.Order) {
	c.LastUpdateID = d.LastUpdateID
	c.Time = d.Time

	bestAsk := float32(math.MaxFloat32)
	bestBid := float32(0)
	for _, order := range c.Bids {
		if order.Price > bestBid {
			bestBid = order.Price
		}
	}
	for _, order := range c.Asks {
		if order.Price < bestAsk {
			bestAsk = order.Price
		}
	}

	highest := bestAsk * 1.001
	lowest := bestBid * 0.999

	c.UpdateDepthCache(d.Bids, d.Asks)

	for _, order := range c.Bids {
		if order.Price >= lowest {
			localBids = append(localBids, order)
		}
	}
	for _, order := range c.Asks {
		if order.Price <= highest {
			localAsks = append(localAsks, order)
		}
	}

	sort.Slice(localBids, func(i, j int) bool { return localBids[i].Price > localBids[j].Price })
	sort.Slice(localAsks, func(i, j int) bool { return localAsks[i].Price < localAsks[j].Price })

	return localBids, localAsks
}
