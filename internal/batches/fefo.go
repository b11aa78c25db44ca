package batches

import (
	"sort"

	"hmsinventory/m/domain"
)

// Allocation is the quantity to draw from one batch.
type Allocation struct {
	Batch    domain.Batch
	Quantity int64
}

// SortFEFO orders batches first-expired-first-out: soonest expiry, then
// earliest receipt, then id so the order is total.
func SortFEFO(batches []domain.Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		if !a.ExpiryDate.Equal(b.ExpiryDate) {
			return a.ExpiryDate.Before(b.ExpiryDate)
		}
		if !a.ReceivedAt.Equal(b.ReceivedAt.Time) {
			return a.ReceivedAt.Before(b.ReceivedAt.Time)
		}
		return a.ID < b.ID
	})
}

// AllocateFEFO plans how to take qty of an item from its batches. Only
// batches that are dispensable today count. When the total falls short it
// allocates nothing and returns InsufficientStock with what is available.
func AllocateFEFO(itemID string, candidates []domain.Batch, qty int64, today domain.Date) ([]Allocation, error) {
	if qty <= 0 {
		return nil, domain.InvalidQuantity("quantity must be a positive whole number, got %d", qty)
	}

	usable := make([]domain.Batch, 0, len(candidates))
	var available int64
	for _, b := range candidates {
		if b.Dispensable(today) {
			usable = append(usable, b)
			available += b.RemainingQuantity
		}
	}
	if available < qty {
		return nil, domain.InsufficientStock(itemID, qty, available)
	}

	SortFEFO(usable)

	var plan []Allocation
	remaining := qty
	for _, b := range usable {
		if remaining == 0 {
			break
		}
		take := min(b.RemainingQuantity, remaining)
		plan = append(plan, Allocation{Batch: b, Quantity: take})
		remaining -= take
	}
	return plan, nil
}
