package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hmsinventory/m/domain"
	"hmsinventory/m/internal/dbtest"
	"hmsinventory/m/internal/store"
)

type harness struct {
	svc   *Service
	st    *store.Store
	clock *dbtest.Clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := store.New(dbtest.Open(t))
	clock := dbtest.NewClock(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	svc := NewService(st, Options{Now: clock.Now, Logger: zerolog.Nop()})
	return &harness{svc: svc, st: st, clock: clock}
}

func (h *harness) item(t *testing.T, code string, reorderLevel int64) *domain.Item {
	t.Helper()
	item, err := h.svc.CreateItem(context.Background(), ItemInput{
		Code: code, Name: code + " name", Category: domain.CategoryDrug, Unit: "unit",
		ReorderLevel: reorderLevel, ReorderQuantity: 100, UnitCost: decimal.RequireFromString("1.25"),
	})
	require.NoError(t, err)
	return item
}

func (h *harness) receive(t *testing.T, itemID, number string, qty int64, expiry domain.Date) domain.Batch {
	t.Helper()
	res, err := h.svc.Receive(context.Background(), ReceiveRequest{
		ItemID: itemID, BatchNumber: number, Quantity: qty, ExpiryDate: expiry, ActorID: "u-store",
	})
	require.NoError(t, err)
	return res.Batch
}

func (h *harness) remaining(t *testing.T, batchID string) int64 {
	t.Helper()
	b, err := h.st.Queries().GetBatch(context.Background(), batchID)
	require.NoError(t, err)
	return b.RemainingQuantity
}

func (h *harness) stock(t *testing.T, itemID string) int64 {
	t.Helper()
	item, err := h.st.Queries().GetItem(context.Background(), itemID)
	require.NoError(t, err)
	return item.CurrentStock
}

func (h *harness) assertConsistent(t *testing.T, itemID string) {
	t.Helper()
	rec, err := h.svc.Reconcile(context.Background(), itemID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent, "projection %d, ledger %d", rec.Projected, rec.LedgerSum)
}

func TestAmoxicillinLowStockAndExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	amox := h.item(t, "AMX-500", 20)

	batch := h.receive(t, amox.ID, "AMX-2406", 100, h.svc.Today().AddDays(10))
	assert.Equal(t, int64(100), h.stock(t, amox.ID))

	res, err := h.svc.Dispense(ctx, DispenseRequest{
		ItemID: amox.ID, Quantity: 85, ReferenceType: domain.RefPrescription, ReferenceID: "RX-1", ActorID: "u-pharm",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(15), res.ResultingStock)
	assert.Equal(t, int64(15), h.stock(t, amox.ID))

	low, err := h.svc.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, amox.ID, low[0].ItemID)

	expiring, err := h.svc.ExpiringBatches(ctx, 30)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, batch.ID, expiring[0].ID)
	assert.Equal(t, 10, expiring[0].DaysUntilExpiry)

	h.assertConsistent(t, amox.ID)
}

func TestDispenseFollowsFEFOAcrossBatches(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := h.item(t, "PCM-500", 0)

	later := h.receive(t, item.ID, "B2", 50, domain.NewDate(2024, 12, 31))
	sooner := h.receive(t, item.ID, "B1", 30, domain.NewDate(2024, 6, 30))

	res, err := h.svc.Dispense(ctx, DispenseRequest{ItemID: item.ID, Quantity: 40, ActorID: "u-pharm"})
	require.NoError(t, err)
	require.Len(t, res.Draws, 2)
	assert.Equal(t, sooner.ID, res.Draws[0].BatchID)
	assert.Equal(t, int64(30), res.Draws[0].Quantity)
	assert.Equal(t, later.ID, res.Draws[1].BatchID)
	assert.Equal(t, int64(10), res.Draws[1].Quantity)

	require.Len(t, res.Movements, 2)
	for _, m := range res.Movements {
		assert.Equal(t, domain.MovementOut, m.Type)
		require.NotNil(t, m.BatchID)
	}
	assert.Equal(t, int64(0), h.remaining(t, sooner.ID))
	assert.Equal(t, int64(40), h.remaining(t, later.ID))
	assert.Equal(t, int64(40), h.stock(t, item.ID))
	h.assertConsistent(t, item.ID)
}

func TestDispenseFailingMidwayChangesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := h.item(t, "PCM-500", 0)

	b1 := h.receive(t, item.ID, "B1", 30, domain.NewDate(2024, 6, 30))
	b2 := h.receive(t, item.ID, "B2", 50, domain.NewDate(2024, 12, 31))

	// The second batch draw blows up after the first has been written.
	_, err := h.st.DB().ExecContext(ctx, `CREATE TRIGGER fail_second_draw BEFORE INSERT ON movements
        WHEN NEW.batch_id = '`+b2.ID+`' AND NEW.movement_type = 'OUT'
        BEGIN SELECT RAISE(ABORT, 'storage failure'); END`)
	require.NoError(t, err)

	_, err = h.svc.Dispense(ctx, DispenseRequest{ItemID: item.ID, Quantity: 40, ActorID: "u-pharm"})
	require.Error(t, err)

	assert.Equal(t, int64(30), h.remaining(t, b1.ID))
	assert.Equal(t, int64(50), h.remaining(t, b2.ID))
	assert.Equal(t, int64(80), h.stock(t, item.ID))
	movements, err := h.svc.ListMovements(ctx, item.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, movements, 2)
	h.assertConsistent(t, item.ID)
}

func TestDispenseInsufficientReportsAvailable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := h.item(t, "PCM-500", 0)
	h.receive(t, item.ID, "B1", 30, domain.NewDate(2024, 6, 30))

	_, err := h.svc.Dispense(ctx, DispenseRequest{ItemID: item.ID, Quantity: 31, ActorID: "u-pharm"})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, int64(30), derr.Available)
	assert.Equal(t, int64(30), h.stock(t, item.ID))
}

func TestDispenseIgnoresExpiredStock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := h.item(t, "PCM-500", 0)
	old := h.receive(t, item.ID, "OLD", 20, domain.NewDate(2024, 6, 5))
	fresh := h.receive(t, item.ID, "NEW", 5, domain.NewDate(2025, 6, 5))

	h.clock.Advance(10 * 24 * time.Hour)

	_, err := h.svc.Dispense(ctx, DispenseRequest{ItemID: item.ID, Quantity: 6, ActorID: "u-pharm"})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, int64(5), derr.Available)

	_, err = h.svc.Dispense(ctx, DispenseRequest{ItemID: item.ID, Quantity: 1, BatchID: old.ID, ActorID: "u-pharm"})
	assert.ErrorIs(t, err, domain.ErrExpiredBatch)

	res, err := h.svc.Dispense(ctx, DispenseRequest{ItemID: item.ID, Quantity: 5, ActorID: "u-pharm"})
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, res.Draws[0].BatchID)
	assert.Equal(t, int64(20), h.stock(t, item.ID), "expired stock stays on the books until written off")
}

func TestDispenseExplicitBatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := h.item(t, "PCM-500", 0)
	other := h.item(t, "IBU-400", 0)
	sooner := h.receive(t, item.ID, "B1", 30, domain.NewDate(2024, 6, 30))
	later := h.receive(t, item.ID, "B2", 50, domain.NewDate(2024, 12, 31))
	foreign := h.receive(t, other.ID, "X1", 10, domain.NewDate(2024, 12, 31))

	res, err := h.svc.Dispense(ctx, DispenseRequest{ItemID: item.ID, Quantity: 5, BatchID: later.ID, ActorID: "u-pharm"})
	require.NoError(t, err)
	require.Len(t, res.Draws, 1)
	assert.Equal(t, later.ID, res.Draws[0].BatchID)
	assert.Equal(t, int64(30), h.remaining(t, sooner.ID))

	_, err = h.svc.Dispense(ctx, DispenseRequest{ItemID: item.ID, Quantity: 31, BatchID: sooner.ID, ActorID: "u-pharm"})
	assert.ErrorIs(t, err, domain.ErrInsufficientBatchStock)

	_, err = h.svc.Dispense(ctx, DispenseRequest{ItemID: item.ID, Quantity: 1, BatchID: foreign.ID, ActorID: "u-pharm"})
	assert.ErrorIs(t, err, domain.ErrUnknownBatch)

	_, err = h.svc.Dispense(ctx, DispenseRequest{ItemID: item.ID, Quantity: 1, BatchID: "missing", ActorID: "u-pharm"})
	assert.ErrorIs(t, err, domain.ErrUnknownBatch)
	h.assertConsistent(t, item.ID)
}

func TestDispenseValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := h.item(t, "PCM-500", 0)
	h.receive(t, item.ID, "B1", 30, domain.NewDate(2024, 6, 30))

	_, err := h.svc.Dispense(ctx, DispenseRequest{ItemID: item.ID, Quantity: 0, ActorID: "u"})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = h.svc.Dispense(ctx, DispenseRequest{ItemID: "ghost", Quantity: 1, ActorID: "u"})
	assert.ErrorIs(t, err, domain.ErrUnknownItem)

	_, err = h.svc.Dispense(ctx, DispenseRequest{ItemID: item.ID, Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrValidation, "actor is required")

	_, err = h.svc.DeactivateItem(ctx, item.ID)
	require.NoError(t, err)
	_, err = h.svc.Dispense(ctx, DispenseRequest{ItemID: item.ID, Quantity: 1, ActorID: "u"})
	assert.ErrorIs(t, err, domain.ErrInactiveItem)
}

func TestConcurrentDispensesNeverOverdraw(t *testing.T) {
	tests := []struct {
		name          string
		received      int64
		explicitBatch bool
		wantFailures  int
		wantRemaining int64
		wantErr       error
	}{
		{"both fit", 12, false, 0, 0, nil},
		{"one fits via FEFO", 10, false, 1, 4, domain.ErrInsufficientStock},
		{"one fits via explicit batch", 10, true, 1, 4, domain.ErrInsufficientBatchStock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			item := h.item(t, "PCM-500", 0)
			b := h.receive(t, item.ID, "B1", tt.received, domain.NewDate(2024, 12, 31))

			req := DispenseRequest{ItemID: item.ID, Quantity: 6, ActorID: "u-pharm"}
			if tt.explicitBatch {
				req.BatchID = b.ID
			}

			var wg sync.WaitGroup
			errs := make([]error, 2)
			for i := range errs {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = h.svc.Dispense(context.Background(), req)
				}(i)
			}
			wg.Wait()

			failures := 0
			for _, err := range errs {
				if err != nil {
					failures++
					assert.ErrorIs(t, err, tt.wantErr)
				}
			}
			assert.Equal(t, tt.wantFailures, failures)
			assert.Equal(t, tt.wantRemaining, h.remaining(t, b.ID))
			assert.Equal(t, tt.wantRemaining, h.stock(t, item.ID))
			h.assertConsistent(t, item.ID)
			assert.Equal(t, 0, h.svc.locks.size())
		})
	}
}

func TestWriteGivesUpAfterRetries(t *testing.T) {
	h := newHarness(t)
	attempts := 0
	err := h.svc.write(context.Background(), "item-x", "test", func(q *store.Queries) error {
		attempts++
		return store.ErrStaleVersion
	})
	require.ErrorIs(t, err, domain.ErrConcurrencyConflict)
	assert.True(t, errors.Is(err, store.ErrStaleVersion))
	assert.Equal(t, defaultMaxRetries, attempts)
}

func TestWriteRetriesThenSucceeds(t *testing.T) {
	h := newHarness(t)
	attempts := 0
	err := h.svc.write(context.Background(), "item-x", "test", func(q *store.Queries) error {
		attempts++
		if attempts < 2 {
			return store.ErrStaleVersion
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestWriteDoesNotRetryDomainErrors(t *testing.T) {
	h := newHarness(t)
	attempts := 0
	err := h.svc.write(context.Background(), "item-x", "test", func(q *store.Queries) error {
		attempts++
		return domain.InsufficientStock("item-x", 5, 1)
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 1, attempts)
}
