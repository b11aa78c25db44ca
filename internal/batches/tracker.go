package batches

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"hmsinventory/m/domain"
	"hmsinventory/m/internal/ledger"
	"hmsinventory/m/internal/store"
)

// ReceiveInput is a delivery of one lot of an item.
type ReceiveInput struct {
	ItemID        string
	BatchNumber   string
	Quantity      int64
	ExpiryDate    domain.Date
	SupplierID    string
	ReferenceType string
	ReferenceID   string
	ActorID       string
	Notes         string
}

// Tracker maintains per-batch remaining quantities. Like the ledger it works
// inside the caller's transaction.
type Tracker struct {
	ledger *ledger.Ledger
	now    func() time.Time
}

func NewTracker(l *ledger.Ledger, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{ledger: l, now: now}
}

// Today is the current calendar day as the tracker sees it.
func (t *Tracker) Today() domain.Date {
	return domain.DateOf(t.now())
}

// Receive creates a batch holding the full quantity and records the IN
// movement for it.
func (t *Tracker) Receive(ctx context.Context, q *store.Queries, in ReceiveInput) (*domain.Batch, *domain.Movement, error) {
	if in.Quantity <= 0 {
		return nil, nil, domain.InvalidQuantity("received quantity must be a positive whole number, got %d", in.Quantity)
	}
	if strings.TrimSpace(in.BatchNumber) == "" {
		return nil, nil, domain.Validation("batch number is required")
	}
	if in.ExpiryDate.IsZero() {
		return nil, nil, domain.Validation("expiry date is required")
	}
	today := t.Today()
	if in.ExpiryDate.Before(today) {
		return nil, nil, domain.InvalidExpiry(in.ExpiryDate, today)
	}

	item, err := q.GetItem(ctx, in.ItemID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, domain.UnknownItem(in.ItemID)
	}
	if err != nil {
		return nil, nil, err
	}
	if !item.Active {
		return nil, nil, domain.InactiveItem(item.ID)
	}

	b := &domain.Batch{
		ID:                uuid.NewString(),
		ItemID:            item.ID,
		BatchNumber:       strings.TrimSpace(in.BatchNumber),
		OriginalQuantity:  in.Quantity,
		RemainingQuantity: in.Quantity,
		ExpiryDate:        in.ExpiryDate,
		ReceivedAt:        domain.NewTimestamp(t.now()),
	}
	if s := strings.TrimSpace(in.SupplierID); s != "" {
		b.SupplierID = &s
	}
	if err := q.CreateBatch(ctx, b); err != nil {
		return nil, nil, err
	}

	m, err := t.ledger.Record(ctx, q, ledger.MovementInput{
		ItemID:        item.ID,
		BatchID:       b.ID,
		Type:          domain.MovementIn,
		Quantity:      in.Quantity,
		ReferenceType: in.ReferenceType,
		ReferenceID:   in.ReferenceID,
		ActorID:       in.ActorID,
		Notes:         in.Notes,
	})
	if err != nil {
		return nil, nil, err
	}
	return b, m, nil
}

// Consume takes qty out of a batch, failing with InsufficientBatchStock when
// the batch holds less.
func (t *Tracker) Consume(ctx context.Context, q *store.Queries, batchID string, qty int64) error {
	if qty <= 0 {
		return domain.InvalidQuantity("quantity must be a positive whole number, got %d", qty)
	}
	ok, err := q.DecrementBatch(ctx, batchID, qty)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	b, err := q.GetBatch(ctx, batchID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.UnknownBatch(batchID)
	}
	if err != nil {
		return err
	}
	return domain.InsufficientBatchStock(batchID, qty, b.RemainingQuantity)
}

// Credit puts qty back into a batch. A batch never holds more than it was
// received with.
func (t *Tracker) Credit(ctx context.Context, q *store.Queries, batchID string, qty int64) error {
	if qty <= 0 {
		return domain.InvalidQuantity("quantity must be a positive whole number, got %d", qty)
	}
	ok, err := q.IncrementBatch(ctx, batchID, qty)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	b, err := q.GetBatch(ctx, batchID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.UnknownBatch(batchID)
	}
	if err != nil {
		return err
	}
	return domain.InvalidQuantity("cannot credit %d to batch %s: remaining %d of %d received",
		qty, batchID, b.RemainingQuantity, b.OriginalQuantity)
}

// WriteOff empties a batch and returns how much it held.
func (t *Tracker) WriteOff(ctx context.Context, q *store.Queries, batchID string) (*domain.Batch, int64, error) {
	b, err := q.GetBatch(ctx, batchID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, 0, domain.UnknownBatch(batchID)
	}
	if err != nil {
		return nil, 0, err
	}
	qty := b.RemainingQuantity
	if qty == 0 {
		return nil, 0, domain.InvalidQuantity("batch %s has no remaining stock to write off", batchID)
	}
	if err := t.Consume(ctx, q, batchID, qty); err != nil {
		return nil, 0, err
	}
	b.RemainingQuantity = 0
	return b, qty, nil
}
