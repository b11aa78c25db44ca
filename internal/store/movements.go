package store

import (
	"context"
	"fmt"

	"hmsinventory/m/domain"
)

// Movements are append-only; this file only inserts and reads.

const movementColumns = `id, item_id, batch_id, seq, movement_type, quantity, previous_stock, resulting_stock,
    reference_type, reference_id, actor_id, notes, created_at`

func (q *Queries) InsertMovement(ctx context.Context, m *domain.Movement) error {
	_, err := q.exec(ctx, `INSERT INTO movements (`+movementColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ItemID, m.BatchID, m.Seq, string(m.Type), m.Quantity, m.PreviousStock, m.ResultingStock,
		m.ReferenceType, m.ReferenceID, m.ActorID, m.Notes, m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrStaleVersion
		}
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// ListMovements returns an item's ledger in sequence order.
func (q *Queries) ListMovements(ctx context.Context, itemID string, limit, offset int) ([]domain.Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM movements WHERE item_id = ? ORDER BY seq`
	args := []any{itemID}
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}
	movements := []domain.Movement{}
	if err := q.selectAll(ctx, &movements, query, args...); err != nil {
		return nil, fmt.Errorf("list movements for item %s: %w", itemID, err)
	}
	return movements, nil
}

func (q *Queries) ListMovementsByReference(ctx context.Context, refType, refID string) ([]domain.Movement, error) {
	movements := []domain.Movement{}
	err := q.selectAll(ctx, &movements, `SELECT `+movementColumns+` FROM movements
        WHERE reference_type = ? AND reference_id = ?
        ORDER BY created_at, item_id, seq`, refType, refID)
	if err != nil {
		return nil, fmt.Errorf("list movements for %s %s: %w", refType, refID, err)
	}
	return movements, nil
}

type LedgerTotals struct {
	Sum   int64 `db:"total"`
	Count int64 `db:"entries"`
	Last  int64 `db:"last_seq"`
}

// LedgerTotals sums an item's movements.
func (q *Queries) LedgerTotals(ctx context.Context, itemID string) (LedgerTotals, error) {
	var t LedgerTotals
	err := q.get(ctx, &t, `SELECT COALESCE(SUM(quantity), 0) AS total, COUNT(*) AS entries, COALESCE(MAX(seq), 0) AS last_seq
        FROM movements WHERE item_id = ?`, itemID)
	if err != nil {
		return t, fmt.Errorf("sum movements for item %s: %w", itemID, err)
	}
	return t, nil
}
