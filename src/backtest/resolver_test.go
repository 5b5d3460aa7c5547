package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func axis(start time.Time, n int) []time.Time {
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}
	return dates
}

func TestResolveAdjusted(t *testing.T) {
	d0 := day(2020, time.January, 1)
	table, err := NewPriceTable(axis(d0, 3))
	require.NoError(t, err)

	t.Run("symbol with no data returns zeros", func(t *testing.T) {
		pr := ResolveAdjusted(table, d0, "GHOST")
		assert.Equal(t, AdjustedPrice{}, pr)
	})

	t.Run("date outside the axis returns zeros", func(t *testing.T) {
		table.Set(d0, "SPY", FieldClose, 100)
		pr := ResolveAdjusted(table, day(1999, time.June, 1), "SPY")
		assert.Equal(t, AdjustedPrice{}, pr)
	})

	t.Run("no corporate action distortion", func(t *testing.T) {
		// rawClose == rawOpen == adjClose implies adjOpen == rawOpen.
		table.Set(d0, "QQQ", FieldOpen, 250)
		table.Set(d0, "QQQ", FieldClose, 250)
		table.Set(d0, "QQQ", FieldAdjClose, 250)
		pr := ResolveAdjusted(table, d0, "QQQ")
		assert.InDelta(t, 250.0, pr.AdjOpen, 1e-12)
		assert.InDelta(t, 250.0, pr.AdjClose, 1e-12)
	})

	t.Run("open scaled by adjustment factor", func(t *testing.T) {
		table.Set(d0, "VT", FieldOpen, 100)
		table.Set(d0, "VT", FieldClose, 110)
		table.Set(d0, "VT", FieldAdjClose, 55)
		pr := ResolveAdjusted(table, d0, "VT")
		assert.InDelta(t, 55.0, pr.AdjClose, 1e-12)
		assert.InDelta(t, 50.0, pr.AdjOpen, 1e-12)
	})

	t.Run("adjusted close falls back to close then open", func(t *testing.T) {
		d1 := d0.AddDate(0, 0, 1)
		table.Set(d1, "VT", FieldClose, 80)
		pr := ResolveAdjusted(table, d1, "VT")
		assert.InDelta(t, 80.0, pr.AdjClose, 1e-12)
		// rawOpen missing: adjusted open collapses to the adjusted close.
		assert.InDelta(t, 80.0, pr.AdjOpen, 1e-12)

		d2 := d0.AddDate(0, 0, 2)
		table.Set(d2, "VT", FieldOpen, 70)
		pr = ResolveAdjusted(table, d2, "VT")
		assert.InDelta(t, 70.0, pr.AdjClose, 1e-12)
		assert.InDelta(t, 70.0, pr.AdjOpen, 1e-12)
	})

	t.Run("zero raw close does not divide", func(t *testing.T) {
		d1 := d0.AddDate(0, 0, 1)
		table.Set(d1, "ZRO", FieldOpen, 10)
		table.Set(d1, "ZRO", FieldClose, 0)
		table.Set(d1, "ZRO", FieldAdjClose, 5)
		pr := ResolveAdjusted(table, d1, "ZRO")
		assert.InDelta(t, 5.0, pr.AdjClose, 1e-12)
		assert.InDelta(t, 10.0, pr.AdjOpen, 1e-12)
	})

	t.Run("nil table returns zeros", func(t *testing.T) {
		assert.Equal(t, AdjustedPrice{}, ResolveAdjusted(nil, d0, "SPY"))
	})
}
