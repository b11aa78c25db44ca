package domain

import "github.com/shopspring/decimal"

type Category string

const (
	CategoryDrug       Category = "drug"
	CategoryLabReagent Category = "lab_reagent"
	CategoryConsumable Category = "consumable"
	CategoryOther      Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryDrug, CategoryLabReagent, CategoryConsumable, CategoryOther:
		return true
	}
	return false
}

// Item is a catalog entry. CurrentStock and Version are owned by the stock
// ledger and change only when a movement is appended.
type Item struct {
	ID              string          `db:"id" json:"id"`
	Code            string          `db:"code" json:"code"`
	Name            string          `db:"name" json:"name"`
	Category        Category        `db:"category" json:"category"`
	Unit            string          `db:"unit" json:"unit"`
	ReorderLevel    int64           `db:"reorder_level" json:"reorder_level"`
	ReorderQuantity int64           `db:"reorder_quantity" json:"reorder_quantity"`
	UnitCost        decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	CurrentStock    int64           `db:"current_stock" json:"current_stock"`
	Version         int64           `db:"version" json:"version"`
	Active          bool            `db:"active" json:"active"`
	CreatedAt       Timestamp       `db:"created_at" json:"created_at"`
	UpdatedAt       Timestamp       `db:"updated_at" json:"updated_at"`
}

// NeedsReorder reports whether stock is at or below the reorder level.
func (i *Item) NeedsReorder() bool {
	return i.CurrentStock <= i.ReorderLevel
}

// StockValue is the current stock valued at unit cost.
func (i *Item) StockValue() decimal.Decimal {
	return i.UnitCost.Mul(decimal.NewFromInt(i.CurrentStock))
}
