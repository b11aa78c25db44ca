package batches

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hmsinventory/m/domain"
)

var today = domain.NewDate(2024, 6, 1)

func batch(id string, remaining int64, expiry domain.Date, receivedDay int) domain.Batch {
	return domain.Batch{
		ID:                id,
		ItemID:            "amox",
		BatchNumber:       "LOT-" + id,
		OriginalQuantity:  100,
		RemainingQuantity: remaining,
		ExpiryDate:        expiry,
		ReceivedAt:        domain.NewTimestamp(time.Date(2024, 1, receivedDay, 9, 0, 0, 0, time.UTC)),
	}
}

func TestAllocateFEFOSplitsAcrossBatches(t *testing.T) {
	b1 := batch("b1", 30, domain.NewDate(2024, 6, 30), 1)
	b2 := batch("b2", 50, domain.NewDate(2024, 12, 31), 2)

	plan, err := AllocateFEFO("amox", []domain.Batch{b2, b1}, 40, today)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, "b1", plan[0].Batch.ID)
	assert.Equal(t, int64(30), plan[0].Quantity)
	assert.Equal(t, "b2", plan[1].Batch.ID)
	assert.Equal(t, int64(10), plan[1].Quantity)
}

func TestAllocateFEFOSingleBatchWhenEnough(t *testing.T) {
	b1 := batch("b1", 30, domain.NewDate(2024, 6, 30), 1)
	b2 := batch("b2", 50, domain.NewDate(2024, 12, 31), 2)

	plan, err := AllocateFEFO("amox", []domain.Batch{b1, b2}, 30, today)
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, "b1", plan[0].Batch.ID)
}

func TestAllocateFEFOSkipsExpiredAndEmptyBatches(t *testing.T) {
	expired := batch("old", 500, domain.NewDate(2024, 5, 31), 1)
	empty := batch("empty", 0, domain.NewDate(2024, 6, 10), 1)
	lastDay := batch("lastday", 5, today, 3)
	later := batch("later", 20, domain.NewDate(2025, 1, 1), 2)

	plan, err := AllocateFEFO("amox", []domain.Batch{expired, empty, later, lastDay}, 8, today)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, "lastday", plan[0].Batch.ID, "a batch is usable on its expiry date")
	assert.Equal(t, int64(5), plan[0].Quantity)
	assert.Equal(t, "later", plan[1].Batch.ID)
	assert.Equal(t, int64(3), plan[1].Quantity)
}

func TestAllocateFEFOTieBreaksOnReceiptThenID(t *testing.T) {
	expiry := domain.NewDate(2024, 9, 1)
	first := batch("z-first", 10, expiry, 1)
	second := batch("a-second", 10, expiry, 2)
	sameTimeB := batch("b", 10, expiry, 3)
	sameTimeA := batch("a", 10, expiry, 3)

	list := []domain.Batch{sameTimeB, second, sameTimeA, first}
	SortFEFO(list)

	ids := make([]string, len(list))
	for i, b := range list {
		ids[i] = b.ID
	}
	assert.Equal(t, []string{"z-first", "a-second", "a", "b"}, ids)
}

func TestAllocateFEFOInsufficientAllocatesNothing(t *testing.T) {
	b1 := batch("b1", 30, domain.NewDate(2024, 6, 30), 1)
	expired := batch("old", 100, domain.NewDate(2024, 1, 1), 1)

	plan, err := AllocateFEFO("amox", []domain.Batch{b1, expired}, 31, today)
	assert.Nil(t, plan)
	require.Error(t, err)

	var derr *domain.Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, domain.KindInsufficientStock, derr.Kind)
	assert.Equal(t, int64(31), derr.Requested)
	assert.Equal(t, int64(30), derr.Available, "expired stock is not available")
}

func TestAllocateFEFORejectsNonPositive(t *testing.T) {
	_, err := AllocateFEFO("amox", nil, 0, today)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}
