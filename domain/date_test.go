package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateScanAndValue(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan("2024-06-30"))
	assert.Equal(t, "2024-06-30", d.String())

	require.NoError(t, d.Scan([]byte("2025-01-02T00:00:00Z")))
	assert.Equal(t, "2025-01-02", d.String())

	v, err := d.Value()
	require.NoError(t, err)
	assert.Equal(t, "2025-01-02", v)

	assert.Error(t, d.Scan(42))
}

func TestDateArithmetic(t *testing.T) {
	today := NewDate(2024, 2, 27)
	assert.Equal(t, "2024-03-01", today.AddDays(3).String())
	assert.Equal(t, 3, today.DaysUntil(today.AddDays(3)))
	assert.Equal(t, -1, today.DaysUntil(today.AddDays(-1)))
}

func TestDateOfUsesLocalCalendarDay(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	instant := time.Date(2024, 6, 30, 22, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-07-01", DateOf(instant.In(loc)).String())
}

func TestDateJSON(t *testing.T) {
	var payload struct {
		Expiry Date `json:"expiry"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"expiry":"2026-12-31"}`), &payload))
	assert.Equal(t, NewDate(2026, 12, 31), payload.Expiry)

	assert.Error(t, json.Unmarshal([]byte(`{"expiry":"31/12/2026"}`), &payload))
}

func TestTimestampRoundTripsThroughText(t *testing.T) {
	ts := NewTimestamp(time.Date(2024, 6, 1, 8, 30, 15, 123456789, time.UTC))
	v, err := ts.Value()
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01T08:30:15.123456Z", v)

	var back Timestamp
	require.NoError(t, back.Scan(v))
	assert.True(t, ts.Equal(back.Time))
}
