package domain

import "fmt"

// ErrorKind classifies stock failures so callers can react without parsing
// messages.
type ErrorKind string

const (
	KindInsufficientStock      ErrorKind = "insufficient_stock"
	KindInsufficientBatchStock ErrorKind = "insufficient_batch_stock"
	KindInvalidQuantity        ErrorKind = "invalid_quantity"
	KindInvalidMovementType    ErrorKind = "invalid_movement_type"
	KindUnknownItem            ErrorKind = "unknown_item"
	KindUnknownBatch           ErrorKind = "unknown_batch"
	KindInvalidExpiry          ErrorKind = "invalid_expiry"
	KindInactiveItem           ErrorKind = "inactive_item"
	KindExpiredBatch           ErrorKind = "expired_batch"
	KindDuplicateItem          ErrorKind = "duplicate_item"
	KindConcurrencyConflict    ErrorKind = "concurrency_conflict"
	KindValidation             ErrorKind = "validation"
)

// Error is a recoverable stock failure.
type Error struct {
	Kind      ErrorKind `json:"error"`
	Message   string    `json:"message"`
	ItemID    string    `json:"item_id,omitempty"`
	BatchID   string    `json:"batch_id,omitempty"`
	Requested int64     `json:"requested,omitempty"`
	Available int64     `json:"available,omitempty"`
	Err       error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInsufficientStock      = &Error{Kind: KindInsufficientStock, Message: "insufficient stock"}
	ErrInsufficientBatchStock = &Error{Kind: KindInsufficientBatchStock, Message: "insufficient batch stock"}
	ErrInvalidQuantity        = &Error{Kind: KindInvalidQuantity, Message: "invalid quantity"}
	ErrInvalidMovementType    = &Error{Kind: KindInvalidMovementType, Message: "invalid movement type"}
	ErrUnknownItem            = &Error{Kind: KindUnknownItem, Message: "unknown item"}
	ErrUnknownBatch           = &Error{Kind: KindUnknownBatch, Message: "unknown batch"}
	ErrInvalidExpiry          = &Error{Kind: KindInvalidExpiry, Message: "invalid expiry date"}
	ErrInactiveItem           = &Error{Kind: KindInactiveItem, Message: "item is inactive"}
	ErrExpiredBatch           = &Error{Kind: KindExpiredBatch, Message: "batch is expired"}
	ErrDuplicateItem          = &Error{Kind: KindDuplicateItem, Message: "item code already exists"}
	ErrConcurrencyConflict    = &Error{Kind: KindConcurrencyConflict, Message: "concurrent update conflict"}
	ErrValidation             = &Error{Kind: KindValidation, Message: "validation failed"}
)

func InsufficientStock(itemID string, requested, available int64) *Error {
	return &Error{
		Kind:      KindInsufficientStock,
		Message:   fmt.Sprintf("insufficient stock for item %s: requested %d, available %d", itemID, requested, available),
		ItemID:    itemID,
		Requested: requested,
		Available: available,
	}
}

func InsufficientBatchStock(batchID string, requested, available int64) *Error {
	return &Error{
		Kind:      KindInsufficientBatchStock,
		Message:   fmt.Sprintf("insufficient stock in batch %s: requested %d, remaining %d", batchID, requested, available),
		BatchID:   batchID,
		Requested: requested,
		Available: available,
	}
}

func InvalidQuantity(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidQuantity, Message: fmt.Sprintf(format, args...)}
}

func InvalidMovementType(t MovementType) *Error {
	return &Error{
		Kind:    KindInvalidMovementType,
		Message: fmt.Sprintf("movement type %q must be one of IN, OUT, ADJUSTMENT, RETURN, EXPIRED", t),
	}
}

func UnknownItem(itemID string) *Error {
	return &Error{Kind: KindUnknownItem, Message: fmt.Sprintf("item %s not found", itemID), ItemID: itemID}
}

func UnknownBatch(batchID string) *Error {
	return &Error{Kind: KindUnknownBatch, Message: fmt.Sprintf("batch %s not found", batchID), BatchID: batchID}
}

func InvalidExpiry(expiry, today Date) *Error {
	return &Error{
		Kind:    KindInvalidExpiry,
		Message: fmt.Sprintf("expiry date %s is before today (%s)", expiry, today),
	}
}

func InactiveItem(itemID string) *Error {
	return &Error{
		Kind:    KindInactiveItem,
		Message: fmt.Sprintf("item %s is deactivated; reactivate it before moving stock", itemID),
		ItemID:  itemID,
	}
}

func ExpiredBatch(batchID string, expiry Date) *Error {
	return &Error{
		Kind:    KindExpiredBatch,
		Message: fmt.Sprintf("batch %s expired on %s and cannot be dispensed", batchID, expiry),
		BatchID: batchID,
	}
}

func DuplicateItem(code string) *Error {
	return &Error{Kind: KindDuplicateItem, Message: fmt.Sprintf("item code %q already exists", code)}
}

func ConcurrencyConflict(itemID string, attempts int, err error) *Error {
	return &Error{
		Kind:    KindConcurrencyConflict,
		Message: fmt.Sprintf("item %s was modified concurrently; gave up after %d attempts, retry the request", itemID, attempts),
		ItemID:  itemID,
		Err:     err,
	}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}
