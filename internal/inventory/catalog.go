package inventory

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"hmsinventory/m/domain"
	"hmsinventory/m/internal/ledger"
	"hmsinventory/m/internal/store"
)

// ItemInput carries the editable fields of a catalog item. Code is only read
// on create.
type ItemInput struct {
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	Category        domain.Category `json:"category"`
	Unit            string          `json:"unit"`
	ReorderLevel    int64           `json:"reorder_level"`
	ReorderQuantity int64           `json:"reorder_quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
}

func (in *ItemInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Unit = strings.TrimSpace(in.Unit)
	if in.Name == "" {
		return domain.Validation("item name is required")
	}
	if in.Unit == "" {
		return domain.Validation("item unit is required")
	}
	if in.Category == "" {
		in.Category = domain.CategoryOther
	}
	if !in.Category.Valid() {
		return domain.Validation("unknown item category %q", in.Category)
	}
	if in.ReorderLevel < 0 || in.ReorderQuantity < 0 {
		return domain.Validation("reorder level and quantity must not be negative")
	}
	if in.UnitCost.IsNegative() {
		return domain.Validation("unit cost must not be negative")
	}
	return nil
}

// CreateItem adds a catalog entry with zero stock.
func (s *Service) CreateItem(ctx context.Context, in ItemInput) (*domain.Item, error) {
	in.Code = strings.TrimSpace(in.Code)
	if in.Code == "" {
		return nil, domain.Validation("item code is required")
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	now := domain.NewTimestamp(s.now())
	item := &domain.Item{
		ID:              uuid.NewString(),
		Code:            in.Code,
		Name:            in.Name,
		Category:        in.Category,
		Unit:            in.Unit,
		ReorderLevel:    in.ReorderLevel,
		ReorderQuantity: in.ReorderQuantity,
		UnitCost:        in.UnitCost,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Queries().CreateItem(ctx, item); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, domain.DuplicateItem(in.Code)
		}
		return nil, err
	}
	s.advisor.Invalidate(context.WithoutCancel(ctx))
	s.log.Info().Str("item_id", item.ID).Str("code", item.Code).Msg("item created")
	return item, nil
}

// UpdateItem changes descriptive fields, reorder parameters and unit cost.
// Code and stock cannot be changed here.
func (s *Service) UpdateItem(ctx context.Context, itemID string, in ItemInput) (*domain.Item, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	var item *domain.Item
	err := s.store.InTx(ctx, func(q *store.Queries) error {
		current, err := lookupItem(ctx, q, itemID)
		if err != nil {
			return err
		}
		current.Name = in.Name
		current.Category = in.Category
		current.Unit = in.Unit
		current.ReorderLevel = in.ReorderLevel
		current.ReorderQuantity = in.ReorderQuantity
		current.UnitCost = in.UnitCost
		current.UpdatedAt = domain.NewTimestamp(s.now())
		if err := q.UpdateItemDetails(ctx, current); err != nil {
			return err
		}
		item = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.advisor.Invalidate(context.WithoutCancel(ctx))
	return item, nil
}

func (s *Service) DeactivateItem(ctx context.Context, itemID string) (*domain.Item, error) {
	return s.setActive(ctx, itemID, false)
}

func (s *Service) ActivateItem(ctx context.Context, itemID string) (*domain.Item, error) {
	return s.setActive(ctx, itemID, true)
}

func (s *Service) setActive(ctx context.Context, itemID string, active bool) (*domain.Item, error) {
	q := s.store.Queries()
	err := q.SetItemActive(ctx, itemID, active, domain.NewTimestamp(s.now()))
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.UnknownItem(itemID)
	}
	if err != nil {
		return nil, err
	}
	s.advisor.Invalidate(context.WithoutCancel(ctx))
	s.log.Info().Str("item_id", itemID).Bool("active", active).Msg("item status changed")
	return lookupItem(ctx, q, itemID)
}

// ItemDetail is an item with its batches and derived figures.
type ItemDetail struct {
	domain.Item
	Batches      []domain.BatchView `json:"batches"`
	StockValue   decimal.Decimal    `json:"stock_value"`
	NeedsReorder bool               `json:"needs_reorder"`
}

func (s *Service) GetItem(ctx context.Context, itemID string) (*ItemDetail, error) {
	q := s.store.Queries()
	item, err := lookupItem(ctx, q, itemID)
	if err != nil {
		return nil, err
	}
	views, err := s.batchViews(ctx, q, itemID)
	if err != nil {
		return nil, err
	}
	return &ItemDetail{
		Item:         *item,
		Batches:      views,
		StockValue:   item.StockValue(),
		NeedsReorder: item.NeedsReorder(),
	}, nil
}

func (s *Service) ListItems(ctx context.Context, f store.ItemFilter) ([]domain.Item, error) {
	if f.Category != "" && !f.Category.Valid() {
		return nil, domain.Validation("unknown item category %q", f.Category)
	}
	if f.Limit < 0 || f.Offset < 0 {
		return nil, domain.Validation("limit and offset must not be negative")
	}
	return s.store.Queries().ListItems(ctx, f)
}

// ListBatches returns every batch of an item, soonest expiry first, with its
// state as of today.
func (s *Service) ListBatches(ctx context.Context, itemID string) ([]domain.BatchView, error) {
	q := s.store.Queries()
	if _, err := lookupItem(ctx, q, itemID); err != nil {
		return nil, err
	}
	return s.batchViews(ctx, q, itemID)
}

func (s *Service) batchViews(ctx context.Context, q *store.Queries, itemID string) ([]domain.BatchView, error) {
	list, err := q.ListBatchesByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	today := s.Today()
	views := make([]domain.BatchView, 0, len(list))
	for _, b := range list {
		views = append(views, domain.NewBatchView(b, today))
	}
	return views, nil
}

// ListMovements pages through an item's ledger in sequence order.
func (s *Service) ListMovements(ctx context.Context, itemID string, limit, offset int) ([]domain.Movement, error) {
	if limit < 0 || offset < 0 {
		return nil, domain.Validation("limit and offset must not be negative")
	}
	q := s.store.Queries()
	if _, err := lookupItem(ctx, q, itemID); err != nil {
		return nil, err
	}
	return q.ListMovements(ctx, itemID, limit, offset)
}

// MovementsForReference returns every movement booked against one
// prescription, lab order or other reference, across items.
func (s *Service) MovementsForReference(ctx context.Context, refType, refID string) ([]domain.Movement, error) {
	refType, refID = strings.TrimSpace(refType), strings.TrimSpace(refID)
	if refType == "" || refID == "" {
		return nil, domain.Validation("reference_type and reference_id are both required")
	}
	return s.store.Queries().ListMovementsByReference(ctx, refType, refID)
}

// Reconcile recomputes stock from the ledger and compares it with the stored
// figure. An inconsistent result is logged at error level.
func (s *Service) Reconcile(ctx context.Context, itemID string) (*ledger.Reconciliation, error) {
	rec, err := s.ledger.Verify(ctx, s.store.Queries(), itemID)
	if err != nil {
		return nil, err
	}
	if !rec.Consistent {
		s.log.Error().
			Str("item_id", itemID).
			Int64("projected", rec.Projected).
			Int64("ledger_sum", rec.LedgerSum).
			Int64("version", rec.Version).
			Int64("movements", rec.MovementCount).
			Msg("stock projection disagrees with ledger")
	}
	return rec, nil
}

func (s *Service) LowStock(ctx context.Context) ([]domain.LowStockAlert, error) {
	return s.advisor.LowStock(ctx)
}

func (s *Service) ExpiringBatches(ctx context.Context, horizonDays int) ([]domain.ExpiringBatch, error) {
	return s.advisor.ExpiringBatches(ctx, horizonDays)
}
