package domain

type LowStockAlert struct {
	ItemID          string   `db:"id" json:"item_id"`
	Code            string   `db:"code" json:"code"`
	Name            string   `db:"name" json:"name"`
	Category        Category `db:"category" json:"category"`
	CurrentStock    int64    `db:"current_stock" json:"current_stock"`
	ReorderLevel    int64    `db:"reorder_level" json:"reorder_level"`
	ReorderQuantity int64    `db:"reorder_quantity" json:"reorder_quantity"`
}

type ExpiringBatch struct {
	Batch
	ItemCode        string `db:"item_code" json:"item_code"`
	ItemName        string `db:"item_name" json:"item_name"`
	DaysUntilExpiry int    `db:"-" json:"days_until_expiry"`
}
