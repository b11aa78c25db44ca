package domain

type BatchState string

const (
	BatchActive   BatchState = "active"
	BatchDepleted BatchState = "depleted"
	BatchExpired  BatchState = "expired"
)

// Batch is a received lot of an item. Only RemainingQuantity changes after
// receipt.
type Batch struct {
	ID                string    `db:"id" json:"id"`
	ItemID            string    `db:"item_id" json:"item_id"`
	BatchNumber       string    `db:"batch_number" json:"batch_number"`
	SupplierID        *string   `db:"supplier_id" json:"supplier_id,omitempty"`
	OriginalQuantity  int64     `db:"original_quantity" json:"original_quantity"`
	RemainingQuantity int64     `db:"remaining_quantity" json:"remaining_quantity"`
	ExpiryDate        Date      `db:"expiry_date" json:"expiry_date"`
	ReceivedAt        Timestamp `db:"received_at" json:"received_at"`
}

// IsExpired reports whether today is past the expiry date. A batch is still
// usable on its expiry date.
func (b *Batch) IsExpired(today Date) bool {
	return today.After(b.ExpiryDate)
}

// State derives the observed state; nothing about it is stored.
func (b *Batch) State(today Date) BatchState {
	if b.RemainingQuantity == 0 {
		return BatchDepleted
	}
	if b.IsExpired(today) {
		return BatchExpired
	}
	return BatchActive
}

// Dispensable reports whether the batch can be drawn from today.
func (b *Batch) Dispensable(today Date) bool {
	return b.State(today) == BatchActive
}

// BatchView is a batch with its derived state for read models.
type BatchView struct {
	Batch
	State           BatchState `json:"state"`
	DaysUntilExpiry int        `json:"days_until_expiry"`
}

func NewBatchView(b Batch, today Date) BatchView {
	return BatchView{Batch: b, State: b.State(today), DaysUntilExpiry: today.DaysUntil(b.ExpiryDate)}
}
