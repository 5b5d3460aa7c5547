package services

import (
	"math"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/galculator/backend/src/backtest"
)

func histWith(t *testing.T, bars map[string][3]float64) *symbolHistory {
	t.Helper()
	hist := newSymbolHistory()
	for date, ohc := range bars {
		hist.open[date] = ohc[0]
		hist.close[date] = ohc[1]
		hist.adjClose[date] = ohc[2]
	}
	return hist
}

func TestBuildPriceTableUnionsDates(t *testing.T) {
	histories := map[string]*symbolHistory{
		"AAA": histWith(t, map[string][3]float64{
			"2020-01-02": {10, 11, 11},
			"2020-01-03": {11, 12, 12},
		}),
		"BBB": histWith(t, map[string][3]float64{
			"2020-01-03": {20, 21, 21},
			"2020-01-06": {21, 22, 22},
		}),
	}

	table, err := buildPriceTable(histories)
	require.NoError(t, err)

	dates := table.Dates()
	require.Len(t, dates, 3)
	assert.Equal(t, "2020-01-02", dates[0].Format("2006-01-02"))
	assert.Equal(t, "2020-01-06", dates[2].Format("2006-01-02"))

	// BBB never traded on the first axis date, so its cell is NaN.
	assert.True(t, math.IsNaN(table.Value(dates[0], "BBB", backtest.FieldAdjClose)))
	assert.Equal(t, 11.0, table.Value(dates[0], "AAA", backtest.FieldAdjClose))
	assert.Equal(t, 21.0, table.Value(dates[1], "BBB", backtest.FieldAdjClose))
	assert.Equal(t, 20.0, table.Value(dates[1], "BBB", backtest.FieldOpen))
}

func TestBuildPriceTableEmpty(t *testing.T) {
	_, err := buildPriceTable(map[string]*symbolHistory{
		"AAA": newSymbolHistory(),
	})
	assert.ErrorIs(t, err, ErrNoMarketData)
}

func TestHistoryToRows(t *testing.T) {
	hist := newSymbolHistory()
	hist.open["2020-01-02"] = 10
	hist.close["2020-01-02"] = 11
	hist.adjClose["2020-01-02"] = 11
	// A bar with only a close, as Yahoo sometimes returns.
	hist.close["2020-01-03"] = 12

	rows := historyToRows("AAA", hist)
	require.Len(t, rows, 2)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })

	full := rows[0]
	assert.Equal(t, "AAA", full.Symbol)
	assert.True(t, full.Open.Valid)
	assert.True(t, full.AdjClose.Valid)
	assert.Equal(t, 11.0, full.AdjClose.Float64)

	partial := rows[1]
	assert.False(t, partial.Open.Valid)
	assert.False(t, partial.AdjClose.Valid)
	assert.True(t, partial.Close.Valid)
	assert.Equal(t, 12.0, partial.Close.Float64)
}

func TestBuildPriceTableFeedsResolver(t *testing.T) {
	histories := map[string]*symbolHistory{
		"AAA": histWith(t, map[string][3]float64{
			"2020-01-02": {100, 110, 55},
		}),
	}
	table, err := buildPriceTable(histories)
	require.NoError(t, err)

	day := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	price := backtest.ResolveAdjusted(table, day, "AAA")
	assert.Equal(t, 55.0, price.AdjClose)
	// open scaled by the adjustment ratio 55/110
	assert.InDelta(t, 50.0, price.AdjOpen, 1e-9)
}
