package advisor

import (
	"context"
	"fmt"
	"time"

	"hmsinventory/m/domain"
)

// Reader is the read side of the store the advisor needs.
type Reader interface {
	LowStockItems(ctx context.Context) ([]domain.LowStockAlert, error)
	ExpiringBatches(ctx context.Context, cutoff domain.Date) ([]domain.ExpiringBatch, error)
}

// Advisor derives restock and expiry alerts. It never writes stock state.
type Advisor struct {
	reader Reader
	cache  Cache
	now    func() time.Time
}

func New(reader Reader, cache Cache, now func() time.Time) *Advisor {
	if cache == nil {
		cache = NoopCache{}
	}
	if now == nil {
		now = time.Now
	}
	return &Advisor{reader: reader, cache: cache, now: now}
}

// LowStock lists active items whose stock is at or below their reorder level.
func (a *Advisor) LowStock(ctx context.Context) ([]domain.LowStockAlert, error) {
	const key = "low-stock"

	version, cached := a.cache.Version(ctx)
	var alerts []domain.LowStockAlert
	if cached && a.cache.Get(ctx, version, key, &alerts) {
		return alerts, nil
	}

	alerts, err := a.reader.LowStockItems(ctx)
	if err != nil {
		return nil, err
	}
	if cached {
		a.cache.Set(ctx, version, key, alerts)
	}
	return alerts, nil
}

// ExpiringBatches lists batches with stock left that expire within
// horizonDays of today (inclusive), soonest first. Already-expired batches
// that still hold stock are included.
func (a *Advisor) ExpiringBatches(ctx context.Context, horizonDays int) ([]domain.ExpiringBatch, error) {
	if horizonDays < 0 {
		return nil, domain.Validation("horizon must be zero or more days, got %d", horizonDays)
	}
	today := domain.DateOf(a.now())
	key := fmt.Sprintf("expiring:%s:%d", today, horizonDays)

	version, cached := a.cache.Version(ctx)
	var batches []domain.ExpiringBatch
	if cached && a.cache.Get(ctx, version, key, &batches) {
		return batches, nil
	}

	batches, err := a.reader.ExpiringBatches(ctx, today.AddDays(horizonDays))
	if err != nil {
		return nil, err
	}
	for i := range batches {
		batches[i].DaysUntilExpiry = today.DaysUntil(batches[i].ExpiryDate)
	}
	if cached {
		a.cache.Set(ctx, version, key, batches)
	}
	return batches, nil
}

// Invalidate drops every cached alert. Call after each committed stock write.
func (a *Advisor) Invalidate(ctx context.Context) {
	a.cache.Invalidate(ctx)
}
