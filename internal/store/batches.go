package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"hmsinventory/m/domain"
)

const batchColumns = `id, item_id, batch_number, supplier_id, original_quantity, remaining_quantity, expiry_date, received_at`

func (q *Queries) CreateBatch(ctx context.Context, b *domain.Batch) error {
	_, err := q.exec(ctx, `INSERT INTO batches (`+batchColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.ItemID, b.BatchNumber, b.SupplierID, b.OriginalQuantity, b.RemainingQuantity, b.ExpiryDate, b.ReceivedAt)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

func (q *Queries) GetBatch(ctx context.Context, id string) (*domain.Batch, error) {
	var b domain.Batch
	err := q.get(ctx, &b, `SELECT `+batchColumns+` FROM batches WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get batch %s: %w", id, err)
	}
	return &b, nil
}

// ListBatchesByItem returns every batch of an item, soonest expiry first.
func (q *Queries) ListBatchesByItem(ctx context.Context, itemID string) ([]domain.Batch, error) {
	batches := []domain.Batch{}
	err := q.selectAll(ctx, &batches, `SELECT `+batchColumns+` FROM batches
        WHERE item_id = ?
        ORDER BY expiry_date, received_at, id`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list batches for item %s: %w", itemID, err)
	}
	return batches, nil
}

// DispensableBatches returns batches with stock left that have not passed
// their expiry date, in FEFO order.
func (q *Queries) DispensableBatches(ctx context.Context, itemID string, today domain.Date) ([]domain.Batch, error) {
	batches := []domain.Batch{}
	err := q.selectAll(ctx, &batches, `SELECT `+batchColumns+` FROM batches
        WHERE item_id = ? AND remaining_quantity > 0 AND expiry_date >= ?
        ORDER BY expiry_date, received_at, id`, itemID, today)
	if err != nil {
		return nil, fmt.Errorf("list dispensable batches for item %s: %w", itemID, err)
	}
	return batches, nil
}

// DecrementBatch takes qty from a batch if it still holds at least qty.
// It reports false when the batch is short.
func (q *Queries) DecrementBatch(ctx context.Context, id string, qty int64) (bool, error) {
	n, err := q.exec(ctx, `UPDATE batches SET remaining_quantity = remaining_quantity - ?
        WHERE id = ? AND remaining_quantity >= ?`, qty, id, qty)
	if err != nil {
		return false, fmt.Errorf("decrement batch %s: %w", id, err)
	}
	return n == 1, nil
}

// IncrementBatch puts qty back into a batch unless that would exceed what was
// originally received. It reports false when the credit does not fit.
func (q *Queries) IncrementBatch(ctx context.Context, id string, qty int64) (bool, error) {
	n, err := q.exec(ctx, `UPDATE batches SET remaining_quantity = remaining_quantity + ?
        WHERE id = ? AND remaining_quantity + ? <= original_quantity`, qty, id, qty)
	if err != nil {
		return false, fmt.Errorf("increment batch %s: %w", id, err)
	}
	return n == 1, nil
}

// ExpiringBatches returns batches with stock left whose expiry is on or
// before cutoff, soonest first.
func (q *Queries) ExpiringBatches(ctx context.Context, cutoff domain.Date) ([]domain.ExpiringBatch, error) {
	rows := []domain.ExpiringBatch{}
	err := q.selectAll(ctx, &rows, `SELECT b.id, b.item_id, b.batch_number, b.supplier_id, b.original_quantity,
            b.remaining_quantity, b.expiry_date, b.received_at, i.code AS item_code, i.name AS item_name
        FROM batches b
        JOIN items i ON i.id = b.item_id
        WHERE b.remaining_quantity > 0 AND b.expiry_date <= ?
        ORDER BY b.expiry_date, b.received_at, b.id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query expiring batches: %w", err)
	}
	return rows, nil
}
