package inventory

import (
	"context"
	"errors"
	"strings"

	"hmsinventory/m/domain"
	"hmsinventory/m/internal/batches"
	"hmsinventory/m/internal/ledger"
	"hmsinventory/m/internal/store"
)

type DispenseRequest struct {
	ItemID   string
	Quantity int64
	// BatchID overrides FEFO selection with an explicit batch.
	BatchID       string
	ReferenceType string
	ReferenceID   string
	ActorID       string
	Notes         string
}

// BatchDraw is the part of a dispense served by one batch.
type BatchDraw struct {
	BatchID     string      `json:"batch_id"`
	BatchNumber string      `json:"batch_number"`
	ExpiryDate  domain.Date `json:"expiry_date"`
	Quantity    int64       `json:"quantity"`
}

type DispenseResult struct {
	ItemID         string            `json:"item_id"`
	Quantity       int64             `json:"quantity"`
	ResultingStock int64             `json:"resulting_stock"`
	Draws          []BatchDraw       `json:"draws"`
	Movements      []domain.Movement `json:"movements"`
}

// Dispense takes stock out for a prescription, lab order or similar. Without
// an explicit batch it draws first-expired-first-out across as many batches as
// needed. Either every batch draw and its OUT movement commit, or none do.
func (s *Service) Dispense(ctx context.Context, req DispenseRequest) (*DispenseResult, error) {
	if req.Quantity <= 0 {
		return nil, domain.InvalidQuantity("dispense quantity must be a positive whole number, got %d", req.Quantity)
	}

	var result *DispenseResult
	err := s.write(ctx, req.ItemID, "dispense", func(q *store.Queries) error {
		item, err := lookupItem(ctx, q, req.ItemID)
		if err != nil {
			return err
		}
		if !item.Active {
			return domain.InactiveItem(item.ID)
		}

		today := s.tracker.Today()
		var plan []batches.Allocation
		if req.BatchID != "" {
			b, err := lookupItemBatch(ctx, q, item.ID, req.BatchID)
			if err != nil {
				return err
			}
			if b.IsExpired(today) {
				return domain.ExpiredBatch(b.ID, b.ExpiryDate)
			}
			plan = []batches.Allocation{{Batch: *b, Quantity: req.Quantity}}
		} else {
			candidates, err := q.DispensableBatches(ctx, item.ID, today)
			if err != nil {
				return err
			}
			if plan, err = batches.AllocateFEFO(item.ID, candidates, req.Quantity, today); err != nil {
				return err
			}
		}

		res := &DispenseResult{ItemID: item.ID, Quantity: req.Quantity}
		for _, a := range plan {
			if err := s.tracker.Consume(ctx, q, a.Batch.ID, a.Quantity); err != nil {
				return err
			}
			m, err := s.ledger.Record(ctx, q, ledger.MovementInput{
				ItemID:        item.ID,
				BatchID:       a.Batch.ID,
				Type:          domain.MovementOut,
				Quantity:      a.Quantity,
				ReferenceType: req.ReferenceType,
				ReferenceID:   req.ReferenceID,
				ActorID:       req.ActorID,
				Notes:         req.Notes,
			})
			if err != nil {
				return err
			}
			res.Draws = append(res.Draws, BatchDraw{
				BatchID:     a.Batch.ID,
				BatchNumber: a.Batch.BatchNumber,
				ExpiryDate:  a.Batch.ExpiryDate,
				Quantity:    a.Quantity,
			})
			res.Movements = append(res.Movements, *m)
			res.ResultingStock = m.ResultingStock
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logMovements("dispense", result.Movements...)
	return result, nil
}

type ReceiveRequest = batches.ReceiveInput

type ReceiveResult struct {
	Batch    domain.Batch    `json:"batch"`
	Movement domain.Movement `json:"movement"`
}

// Receive books a delivered lot into stock.
func (s *Service) Receive(ctx context.Context, req ReceiveRequest) (*ReceiveResult, error) {
	var result *ReceiveResult
	err := s.write(ctx, req.ItemID, "receive", func(q *store.Queries) error {
		b, m, err := s.tracker.Receive(ctx, q, req)
		if err != nil {
			return err
		}
		result = &ReceiveResult{Batch: *b, Movement: *m}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logMovements("receive", result.Movement)
	return result, nil
}

type AdjustRequest struct {
	ItemID  string
	BatchID string
	// Delta is signed: negative removes stock, positive adds it.
	Delta         int64
	Reason        string
	ReferenceType string
	ReferenceID   string
	ActorID       string
}

// Adjust corrects stock, for example after a physical count. A batch, when
// given, moves by the same amount.
func (s *Service) Adjust(ctx context.Context, req AdjustRequest) (*domain.Movement, error) {
	if req.Delta == 0 {
		return nil, domain.InvalidQuantity("adjustment delta must not be zero")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, domain.Validation("a reason is required for every stock adjustment")
	}
	decrease := req.Delta < 0
	qty := req.Delta
	if decrease {
		qty = -qty
	}

	var result *domain.Movement
	err := s.write(ctx, req.ItemID, "adjust", func(q *store.Queries) error {
		item, err := lookupItem(ctx, q, req.ItemID)
		if err != nil {
			return err
		}
		if req.BatchID != "" {
			if _, err := lookupItemBatch(ctx, q, item.ID, req.BatchID); err != nil {
				return err
			}
			if decrease {
				err = s.tracker.Consume(ctx, q, req.BatchID, qty)
			} else {
				err = s.tracker.Credit(ctx, q, req.BatchID, qty)
			}
			if err != nil {
				return err
			}
		}
		m, err := s.ledger.Record(ctx, q, ledger.MovementInput{
			ItemID:        item.ID,
			BatchID:       req.BatchID,
			Type:          domain.MovementAdjustment,
			Quantity:      qty,
			Decrease:      decrease,
			ReferenceType: req.ReferenceType,
			ReferenceID:   req.ReferenceID,
			ActorID:       req.ActorID,
			Notes:         reason,
		})
		if err != nil {
			return err
		}
		result = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logMovements("adjust", *result)
	return result, nil
}

type ReturnRequest struct {
	ItemID        string
	BatchID       string
	Quantity      int64
	ReferenceType string
	ReferenceID   string
	ActorID       string
	Notes         string
}

// ReturnStock puts unused stock back, crediting the batch when one is given.
func (s *Service) ReturnStock(ctx context.Context, req ReturnRequest) (*domain.Movement, error) {
	if req.Quantity <= 0 {
		return nil, domain.InvalidQuantity("return quantity must be a positive whole number, got %d", req.Quantity)
	}

	var result *domain.Movement
	err := s.write(ctx, req.ItemID, "return", func(q *store.Queries) error {
		item, err := lookupItem(ctx, q, req.ItemID)
		if err != nil {
			return err
		}
		if req.BatchID != "" {
			if _, err := lookupItemBatch(ctx, q, item.ID, req.BatchID); err != nil {
				return err
			}
			if err := s.tracker.Credit(ctx, q, req.BatchID, req.Quantity); err != nil {
				return err
			}
		}
		m, err := s.ledger.Record(ctx, q, ledger.MovementInput{
			ItemID:        item.ID,
			BatchID:       req.BatchID,
			Type:          domain.MovementReturn,
			Quantity:      req.Quantity,
			ReferenceType: req.ReferenceType,
			ReferenceID:   req.ReferenceID,
			ActorID:       req.ActorID,
			Notes:         req.Notes,
		})
		if err != nil {
			return err
		}
		result = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logMovements("return", *result)
	return result, nil
}

type ExpireResult struct {
	Batch    domain.Batch    `json:"batch"`
	Movement domain.Movement `json:"movement"`
}

// ExpireOff writes off everything left in a batch with an EXPIRED movement.
func (s *Service) ExpireOff(ctx context.Context, batchID, actorID string) (*ExpireResult, error) {
	b, err := s.store.Queries().GetBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.UnknownBatch(batchID)
		}
		return nil, err
	}

	var result *ExpireResult
	err = s.write(ctx, b.ItemID, "expire", func(q *store.Queries) error {
		written, qty, err := s.tracker.WriteOff(ctx, q, batchID)
		if err != nil {
			return err
		}
		m, err := s.ledger.Record(ctx, q, ledger.MovementInput{
			ItemID:        written.ItemID,
			BatchID:       written.ID,
			Type:          domain.MovementExpired,
			Quantity:      qty,
			ReferenceType: domain.RefExpirySweep,
			ReferenceID:   written.ID,
			ActorID:       actorID,
			Notes:         "batch " + written.BatchNumber + " expired " + written.ExpiryDate.String(),
		})
		if err != nil {
			return err
		}
		result = &ExpireResult{Batch: *written, Movement: *m}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logMovements("expire", result.Movement)
	return result, nil
}
