package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"hmsinventory/m/domain"
)

const itemColumns = `id, code, name, category, unit, reorder_level, reorder_quantity, unit_cost,
    current_stock, version, active, created_at, updated_at`

type ItemFilter struct {
	Category   domain.Category
	ActiveOnly bool
	Limit      int
	Offset     int
}

func (q *Queries) CreateItem(ctx context.Context, item *domain.Item) error {
	_, err := q.exec(ctx, `INSERT INTO items (`+itemColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Code, item.Name, string(item.Category), item.Unit, item.ReorderLevel, item.ReorderQuantity,
		item.UnitCost, item.CurrentStock, item.Version, item.Active, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (q *Queries) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	var item domain.Item
	err := q.get(ctx, &item, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return &item, nil
}

func (q *Queries) GetItemByCode(ctx context.Context, code string) (*domain.Item, error) {
	var item domain.Item
	err := q.get(ctx, &item, `SELECT `+itemColumns+` FROM items WHERE code = ?`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item by code %s: %w", code, err)
	}
	return &item, nil
}

func (q *Queries) ListItems(ctx context.Context, f ItemFilter) ([]domain.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE 1 = 1`
	var args []any
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(f.Category))
	}
	if f.ActiveOnly {
		query += ` AND active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY name, code`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	items := []domain.Item{}
	if err := q.selectAll(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// UpdateItemDetails changes descriptive fields, reorder parameters and unit
// cost. Stock and version are untouched.
func (q *Queries) UpdateItemDetails(ctx context.Context, item *domain.Item) error {
	n, err := q.exec(ctx, `UPDATE items
        SET name = ?, category = ?, unit = ?, reorder_level = ?, reorder_quantity = ?, unit_cost = ?, updated_at = ?
        WHERE id = ?`,
		item.Name, string(item.Category), item.Unit, item.ReorderLevel, item.ReorderQuantity, item.UnitCost, item.UpdatedAt, item.ID)
	if err != nil {
		return fmt.Errorf("update item %s: %w", item.ID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *Queries) SetItemActive(ctx context.Context, id string, active bool, at domain.Timestamp) error {
	n, err := q.exec(ctx, `UPDATE items SET active = ?, updated_at = ? WHERE id = ?`, active, at, id)
	if err != nil {
		return fmt.Errorf("set item %s active=%t: %w", id, active, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AdvanceItemStock stores a new stock figure and bumps the version, but only
// if nobody else has done so since expectedVersion was read.
func (q *Queries) AdvanceItemStock(ctx context.Context, id string, expectedVersion, newStock int64, at domain.Timestamp) error {
	n, err := q.exec(ctx, `UPDATE items SET current_stock = ?, version = version + 1, updated_at = ?
        WHERE id = ? AND version = ?`, newStock, at, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("advance stock for item %s: %w", id, err)
	}
	if n == 0 {
		return ErrStaleVersion
	}
	return nil
}

func (q *Queries) LowStockItems(ctx context.Context) ([]domain.LowStockAlert, error) {
	alerts := []domain.LowStockAlert{}
	err := q.selectAll(ctx, &alerts, `SELECT id, code, name, category, current_stock, reorder_level, reorder_quantity
        FROM items
        WHERE active = ? AND current_stock <= reorder_level
        ORDER BY current_stock, name, id`, true)
	if err != nil {
		return nil, fmt.Errorf("query low stock items: %w", err)
	}
	return alerts, nil
}
