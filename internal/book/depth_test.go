package book

import (
	"testing"

	"depthflow/models"
)

func TestUpdateDepthCacheUpsert(t *testing.T) {
	c := NewLocalDepthCache()
	c.Fetched(DepthUpdate{
		LastUpdateID: 1,
		Bids:         []models.Order{{Price: 100, Qty: 5}},
		Asks:         []models.Order{{Price: 101, Qty: 2}},
	})

	c.UpdateDepthCache([]models.Order{{Price: 100, Qty: 8}}, nil)

	if len(c.Bids) != 1 {
		t.Fatalf("expected single bid level per price, got %d", len(c.Bids))
	}
	if c.Bids[0].Qty != 8 {
		t.Fatalf("expected quantity replaced to 8, got %v", c.Bids[0].Qty)
	}
}

func TestUpdateDepthCacheTombstone(t *testing.T) {
	c := NewLocalDepthCache()
	c.Fetched(DepthUpdate{
		LastUpdateID: 1,
		Bids:         []models.Order{{Price: 100, Qty: 5}, {Price: 99, Qty: 3}},
	})

	c.UpdateDepthCache([]models.Order{{Price: 100, Qty: 0}}, nil)

	if len(c.Bids) != 1 || c.Bids[0].Price != 99 {
		t.Fatalf("expected level 100 removed, got %+v", c.Bids)
	}

	// Removing a level that does not exist is a no-op.
	c.UpdateDepthCache([]models.Order{{Price: 42, Qty: 0}}, nil)
	if len(c.Bids) != 1 {
		t.Fatalf("expected no-op removal, got %+v", c.Bids)
	}
}

func TestUpdateLevelsCropsAndSorts(t *testing.T) {
	c := NewLocalDepthCache()
	c.Fetched(DepthUpdate{
		LastUpdateID: 10,
		Bids:         []models.Order{{Price: 50, Qty: 1}, {Price: 100, Qty: 5}},
		Asks:         []models.Order{{Price: 101, Qty: 2}, {Price: 200, Qty: 9}},
	})

	bids, asks := c.UpdateLevels(DepthUpdate{
		LastUpdateID: 11,
		Time:         1700000000000,
		Bids:         []models.Order{{Price: 99.95, Qty: 4}},
		Asks:         []models.Order{{Price: 101.05, Qty: 3}},
	})

	if c.LastUpdateID != 11 {
		t.Fatalf("expected cache id 11, got %d", c.LastUpdateID)
	}

	// Levels far from the pre-diff best prices are cropped out of the view
	// but stay in the cache.
	for _, b := range bids {
		if b.Price == 50 {
			t.Fatalf("expected far bid cropped from view, got %+v", bids)
		}
	}
	for _, a := range asks {
		if a.Price == 200 {
			t.Fatalf("expected far ask cropped from view, got %+v", asks)
		}
	}
	if len(c.Bids) != 3 || len(c.Asks) != 3 {
		t.Fatalf("expected full cache retained, got %d bids %d asks", len(c.Bids), len(c.Asks))
	}

	if len(bids) != 2 || bids[0].Price != 100 || bids[1].Price != 99.95 {
		t.Fatalf("expected bids sorted descending, got %+v", bids)
	}
	if len(asks) != 2 || asks[0].Price != 101 || asks[1].Price != 101.05 {
		t.Fatalf("expected asks sorted ascending, got %+v", asks)
	}
}
