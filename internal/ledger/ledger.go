package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"hmsinventory/m/domain"
	"hmsinventory/m/internal/store"
)

// MovementInput describes one stock change. Quantity is always positive;
// the direction comes from Type, or from Decrease for ADJUSTMENT.
type MovementInput struct {
	ItemID        string
	BatchID       string
	Type          domain.MovementType
	Quantity      int64
	Decrease      bool
	ReferenceType string
	ReferenceID   string
	ActorID       string
	Notes         string
}

// Ledger appends movements and keeps the item's stock projection in step
// with them. It never opens transactions itself.
type Ledger struct {
	now func() time.Time
}

func New(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{now: now}
}

// Record appends one movement and moves the item's stock by its signed
// quantity. q must be bound to the caller's transaction so that the
// movement, the stock figure and any batch change commit together.
//
// A concurrent writer on the same item surfaces as store.ErrStaleVersion.
func (l *Ledger) Record(ctx context.Context, q *store.Queries, in MovementInput) (*domain.Movement, error) {
	if in.Quantity <= 0 {
		return nil, domain.InvalidQuantity("quantity must be a positive whole number, got %d", in.Quantity)
	}
	if !in.Type.Valid() {
		return nil, domain.InvalidMovementType(in.Type)
	}
	if strings.TrimSpace(in.ActorID) == "" {
		return nil, domain.Validation("actor id is required for every stock movement")
	}

	item, err := q.GetItem(ctx, in.ItemID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.UnknownItem(in.ItemID)
	}
	if err != nil {
		return nil, err
	}

	delta := in.Type.Sign(in.Decrease) * in.Quantity
	resulting := item.CurrentStock + delta
	if resulting < 0 {
		return nil, domain.InsufficientStock(item.ID, in.Quantity, item.CurrentStock)
	}

	at := domain.NewTimestamp(l.now())
	if err := q.AdvanceItemStock(ctx, item.ID, item.Version, resulting, at); err != nil {
		return nil, err
	}

	m := &domain.Movement{
		ID:             uuid.NewString(),
		ItemID:         item.ID,
		BatchID:        optional(in.BatchID),
		Seq:            item.Version + 1,
		Type:           in.Type,
		Quantity:       delta,
		PreviousStock:  item.CurrentStock,
		ResultingStock: resulting,
		ReferenceType:  optional(in.ReferenceType),
		ReferenceID:    optional(in.ReferenceID),
		ActorID:        in.ActorID,
		Notes:          optional(in.Notes),
		CreatedAt:      at,
	}
	if err := q.InsertMovement(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Reconciliation compares the stored stock projection with the ledger.
type Reconciliation struct {
	ItemID        string `json:"item_id"`
	Projected     int64  `json:"projected_stock"`
	LedgerSum     int64  `json:"ledger_sum"`
	Version       int64  `json:"version"`
	MovementCount int64  `json:"movement_count"`
	LastSeq       int64  `json:"last_seq"`
	Consistent    bool   `json:"consistent"`
}

// Verify checks current_stock == sum(movements) and version == number of
// movements for one item.
func (l *Ledger) Verify(ctx context.Context, q *store.Queries, itemID string) (*Reconciliation, error) {
	item, err := q.GetItem(ctx, itemID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.UnknownItem(itemID)
	}
	if err != nil {
		return nil, err
	}
	totals, err := q.LedgerTotals(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return &Reconciliation{
		ItemID:        itemID,
		Projected:     item.CurrentStock,
		LedgerSum:     totals.Sum,
		Version:       item.Version,
		MovementCount: totals.Count,
		LastSeq:       totals.Last,
		Consistent:    item.CurrentStock == totals.Sum && item.Version == totals.Count && totals.Last == totals.Count,
	}, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
