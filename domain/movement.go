package domain

type MovementType string

const (
	MovementIn         MovementType = "IN"
	MovementOut        MovementType = "OUT"
	MovementAdjustment MovementType = "ADJUSTMENT"
	MovementReturn     MovementType = "RETURN"
	MovementExpired    MovementType = "EXPIRED"
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementIn, MovementOut, MovementAdjustment, MovementReturn, MovementExpired:
		return true
	}
	return false
}

// Sign returns the direction a movement of this type applies to stock.
// ADJUSTMENT can go either way, so the caller states it.
func (t MovementType) Sign(decrease bool) int64 {
	switch t {
	case MovementIn, MovementReturn:
		return 1
	case MovementOut, MovementExpired:
		return -1
	case MovementAdjustment:
		if decrease {
			return -1
		}
		return 1
	}
	return 0
}

// Reference types recorded on movements.
const (
	RefPrescription = "prescription"
	RefLabOrder     = "lab_order"
	RefPurchase     = "purchase_order"
	RefStockCount   = "stock_count"
	RefExpirySweep  = "expiry_sweep"
)

// Movement is one immutable ledger entry. Quantity is the signed delta.
type Movement struct {
	ID             string       `db:"id" json:"id"`
	ItemID         string       `db:"item_id" json:"item_id"`
	BatchID        *string      `db:"batch_id" json:"batch_id,omitempty"`
	Seq            int64        `db:"seq" json:"seq"`
	Type           MovementType `db:"movement_type" json:"type"`
	Quantity       int64        `db:"quantity" json:"quantity"`
	PreviousStock  int64        `db:"previous_stock" json:"previous_stock"`
	ResultingStock int64        `db:"resulting_stock" json:"resulting_stock"`
	ReferenceType  *string      `db:"reference_type" json:"reference_type,omitempty"`
	ReferenceID    *string      `db:"reference_id" json:"reference_id,omitempty"`
	ActorID        string       `db:"actor_id" json:"actor_id"`
	Notes          *string      `db:"notes" json:"notes,omitempty"`
	CreatedAt      Timestamp    `db:"created_at" json:"created_at"`
}
