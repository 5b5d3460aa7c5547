package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/galculator/backend/src/models"
)

// flatTable builds a table where every listed symbol trades at a constant
// price (open == close == adjusted close) on every axis day.
func flatTable(t *testing.T, dates []time.Time, prices map[string]float64) *PriceTable {
	t.Helper()
	table, err := NewPriceTable(dates)
	require.NoError(t, err)
	for sym, p := range prices {
		for _, d := range dates {
			table.Set(d, sym, FieldOpen, p)
			table.Set(d, sym, FieldClose, p)
			table.Set(d, sym, FieldAdjClose, p)
		}
	}
	return table
}

// monthStarts returns the first day of n consecutive months.
func monthStarts(start time.Time, n int) []time.Time {
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = start.AddDate(0, i, 0)
	}
	return dates
}

func singleAsset(name, symbol string) models.PortfolioDefinition {
	return models.PortfolioDefinition{
		Name:   name,
		Assets: []models.Asset{{Symbol: symbol, WeightPercent: 100}},
	}
}

func TestSimulationPureCashHoldsValue(t *testing.T) {
	dates := monthStarts(day(2010, time.January, 4), 36)
	table, err := NewPriceTable(dates)
	require.NoError(t, err)

	res, err := RunSimulation(table, singleAsset("cash", CashSymbol), dates, 50000, 0, true)
	require.NoError(t, err)
	require.Len(t, res.History, len(dates))
	for _, row := range res.History {
		assert.Equal(t, 50000.0, row.TotalValue, "cash sleeve has no price exposure on %s", row.Date)
	}
	assert.Equal(t, 50000.0, res.TotalInvested)
}

func TestSimulationEmptyAxis(t *testing.T) {
	table, err := NewPriceTable(nil)
	require.NoError(t, err)
	_, err = RunSimulation(table, singleAsset("p", "SPY"), nil, 1000, 100, false)
	assert.ErrorIs(t, err, ErrEmptyDateAxis)
}

func TestSimulationIntegerShareQuantization(t *testing.T) {
	dates := monthStarts(day(2020, time.January, 2), 2)
	table := flatTable(t, dates, map[string]float64{"SPY": 300})

	t.Run("contribution below one share stays in the cash bucket", func(t *testing.T) {
		res, err := RunSimulation(table, singleAsset("p", "SPY"), dates[:1], 0, 250, false)
		require.NoError(t, err)
		// 250 < 300: no share bought, value is the undeployed cash.
		assert.Equal(t, 250.0, res.History[0].TotalValue)
	})

	t.Run("remainder carries into the next month", func(t *testing.T) {
		res, err := RunSimulation(table, singleAsset("p", "SPY"), dates, 0, 250, false)
		require.NoError(t, err)
		// Month 2: bucket holds 500, one share at 300 bought, 200 remains.
		assert.Equal(t, 500.0, res.History[1].TotalValue)
		assert.Equal(t, 500.0, res.History[1].InvestedCapital)
	})

	t.Run("initial capital buys whole shares", func(t *testing.T) {
		res, err := RunSimulation(table, singleAsset("p", "SPY"), dates[:1], 1000, 0, false)
		require.NoError(t, err)
		// 3 shares at 300 plus 100 residue.
		assert.Equal(t, 1000.0, res.History[0].TotalValue)
		assert.Equal(t, 1000.0, res.TotalInvested)
	})
}

func TestSimulationZeroPriceSkipsConversion(t *testing.T) {
	dates := monthStarts(day(2020, time.January, 2), 1)
	table, err := NewPriceTable(dates)
	require.NoError(t, err)
	// Symbol present with zero prices: conversion must be skipped, not fail.
	table.Set(dates[0], "DEAD", FieldOpen, 0)
	table.Set(dates[0], "DEAD", FieldClose, 0)
	table.Set(dates[0], "DEAD", FieldAdjClose, 0)

	res, err := RunSimulation(table, singleAsset("p", "DEAD"), dates, 1000, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, res.History[0].TotalValue)
}

func TestSimulationBuyDaysAreMonthBoundaries(t *testing.T) {
	// Ten consecutive trading days spanning a month boundary.
	dates := axis(day(2020, time.January, 27), 10)
	table := flatTable(t, dates, map[string]float64{"SPY": 100})

	res, err := RunSimulation(table, singleAsset("p", "SPY"), dates, 0, 1000, false)
	require.NoError(t, err)

	// Contributions only on the first processed day of each month.
	var contributions int
	for _, f := range res.CashFlows {
		if f.Amount < 0 {
			contributions++
		}
	}
	assert.Equal(t, 2, contributions)
	assert.Equal(t, 2000.0, res.TotalInvested)
}

func TestRebalanceFirstYearExemption(t *testing.T) {
	// Start mid-January: the very first January is within year zero and the
	// drifted allocation must be left alone regardless of the price move.
	dates := []time.Time{
		day(2020, time.January, 15),
		day(2020, time.February, 3),
	}
	table, err := NewPriceTable(dates)
	require.NoError(t, err)
	for _, sym := range []string{"AAA", "BBB"} {
		table.Set(dates[0], sym, FieldOpen, 100)
		table.Set(dates[0], sym, FieldClose, 100)
		table.Set(dates[0], sym, FieldAdjClose, 100)
	}
	// AAA doubles, BBB halves.
	table.Set(dates[1], "AAA", FieldOpen, 200)
	table.Set(dates[1], "AAA", FieldClose, 200)
	table.Set(dates[1], "AAA", FieldAdjClose, 200)
	table.Set(dates[1], "BBB", FieldOpen, 50)
	table.Set(dates[1], "BBB", FieldClose, 50)
	table.Set(dates[1], "BBB", FieldAdjClose, 50)

	def := models.PortfolioDefinition{
		Name: "5050",
		Assets: []models.Asset{
			{Symbol: "AAA", WeightPercent: 50},
			{Symbol: "BBB", WeightPercent: 50},
		},
	}
	res, err := RunSimulation(table, def, dates, 10000, 0, true)
	require.NoError(t, err)
	// Day 1: 50 AAA + 50 BBB. Day 2 without rebalancing: 50*200 + 50*50.
	assert.Equal(t, 12500.0, res.History[1].TotalValue)
}

func TestRebalanceRestoresTargetWeights(t *testing.T) {
	// Year boundary: January of year 1 is a rebalance day.
	dates := []time.Time{
		day(2020, time.June, 1),
		day(2020, time.July, 1),
		day(2021, time.January, 4),
	}
	table, err := NewPriceTable(dates)
	require.NoError(t, err)
	set := func(d time.Time, sym string, p float64) {
		table.Set(d, sym, FieldOpen, p)
		table.Set(d, sym, FieldClose, p)
		table.Set(d, sym, FieldAdjClose, p)
	}
	set(dates[0], "AAA", 100)
	set(dates[0], "BBB", 100)
	set(dates[1], "AAA", 100)
	set(dates[1], "BBB", 100)
	set(dates[2], "AAA", 300)
	set(dates[2], "BBB", 100)

	def := models.PortfolioDefinition{
		Name: "5050",
		Assets: []models.Asset{
			{Symbol: "AAA", WeightPercent: 50},
			{Symbol: "BBB", WeightPercent: 50},
		},
	}
	res, err := RunSimulation(table, def, dates, 20000, 0, true)
	require.NoError(t, err)

	// Before rebalancing day 3: 100 AAA * 300 + 100 BBB * 100 = 40000.
	// After the single sell-then-buy pass each sleeve must sit within one
	// share's value of its 20000 target.
	total := res.History[2].TotalValue
	require.Equal(t, 40000.0, total)

	// Derive the post-rebalance sleeve values from an independent closed-form
	// computation: AAA sells floor(excess/300) shares, BBB buys at 100.
	// AAA: value 30000, target 20000, sells floor(10000/300)=33 -> 67 shares.
	// BBB: deficit 10000, cash 9900 -> buys 99 shares -> 199 shares.
	aaa := 67 * 300.0
	bbb := 199 * 100.0
	assert.InDelta(t, 20000, aaa, 300, "AAA within one share of target")
	assert.InDelta(t, 20000, bbb, 100, "BBB within one share of target")
}

func TestWithdrawalMechanics(t *testing.T) {
	def := models.PortfolioDefinition{
		Name:                  "retire",
		Assets:                []models.Asset{{Symbol: "SPY", WeightPercent: 100}},
		WithdrawalEnabled:     true,
		WithdrawalRatePercent: 12, // budget/12 means 1% of the starting value per month
		InflationRatePercent:  0,
		WithdrawalStartYear:   1,
	}

	dates := monthStarts(day(2020, time.January, 2), 3)
	table := flatTable(t, dates, map[string]float64{"SPY": 100})

	res, err := RunSimulation(table, def, dates, 12000, 0, false)
	require.NoError(t, err)

	// Budget set on day one from the starting value: 12000 * 12% = 1440,
	// monthly target 120.
	for i, row := range res.History {
		assert.InDelta(t, 120.0, row.Withdrawal, 1e-9, "month %d", i)
	}
	assert.InDelta(t, 360.0, res.TotalWithdrawn, 1e-9)

	// Withdrawals are positive investor inflows in the cash-flow list.
	var inflows int
	for _, f := range res.CashFlows {
		if f.Amount > 0 {
			inflows++
			assert.InDelta(t, 120.0, f.Amount, 1e-9)
		}
	}
	assert.Equal(t, 3, inflows)
}

func TestWithdrawalLiquidatesShares(t *testing.T) {
	def := models.PortfolioDefinition{
		Name:                  "forced-sale",
		Assets:                []models.Asset{{Symbol: "SPY", WeightPercent: 100}},
		WithdrawalEnabled:     true,
		WithdrawalRatePercent: 12,
		WithdrawalStartYear:   1,
	}
	dates := monthStarts(day(2020, time.January, 2), 2)
	table := flatTable(t, dates, map[string]float64{"SPY": 100})

	// All capital converts to 120 shares on day one; month two's 1440/12=120
	// withdrawal must come from a forced whole-share sale.
	res, err := RunSimulation(table, def, dates, 12000, 0, false)
	require.NoError(t, err)

	require.Len(t, res.History, 2)
	assert.InDelta(t, 120.0, res.History[1].Withdrawal, 1e-9)
	// Total value drops by exactly the withdrawal each month (flat prices).
	assert.InDelta(t, res.History[0].TotalValue-120.0, res.History[1].TotalValue, 1e-9)
}

func TestWithdrawalBudgetInflation(t *testing.T) {
	def := models.PortfolioDefinition{
		Name:                  "inflating",
		Assets:                []models.Asset{{Symbol: CashSymbol, WeightPercent: 100}},
		WithdrawalEnabled:     true,
		WithdrawalRatePercent: 12,
		InflationRatePercent:  10,
		WithdrawalStartYear:   1,
	}
	dates := []time.Time{
		day(2020, time.January, 2),
		day(2020, time.February, 3),
		day(2021, time.January, 4),
	}
	table, err := NewPriceTable(dates)
	require.NoError(t, err)

	res, err := RunSimulation(table, def, dates, 12000, 0, false)
	require.NoError(t, err)

	// Year 0 budget: 1440, monthly 120. Year 1 budget inflates by 10%:
	// 1584, monthly 132.
	assert.InDelta(t, 120.0, res.History[0].Withdrawal, 1e-9)
	assert.InDelta(t, 120.0, res.History[1].Withdrawal, 1e-9)
	assert.InDelta(t, 132.0, res.History[2].Withdrawal, 1e-9)
}

func TestWithdrawalDeferredStartYear(t *testing.T) {
	def := models.PortfolioDefinition{
		Name:                  "deferred",
		Assets:                []models.Asset{{Symbol: CashSymbol, WeightPercent: 100}},
		WithdrawalEnabled:     true,
		WithdrawalRatePercent: 12,
		WithdrawalStartYear:   2,
	}
	dates := []time.Time{
		day(2020, time.March, 2),
		day(2021, time.January, 4),
	}
	table, err := NewPriceTable(dates)
	require.NoError(t, err)

	res, err := RunSimulation(table, def, dates, 12000, 0, false)
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.History[0].Withdrawal, "not yet eligible in year 0")
	assert.InDelta(t, 120.0, res.History[1].Withdrawal, 1e-9, "budget set at first eligibility")
}

func TestSimulationValueNeverNaN(t *testing.T) {
	// A symbol that never has data resolves to zeros throughout; arithmetic
	// must stay total.
	dates := monthStarts(day(2020, time.January, 2), 6)
	table, err := NewPriceTable(dates)
	require.NoError(t, err)

	res, err := RunSimulation(table, singleAsset("ghost", "GHOST"), dates, 1000, 100, true)
	require.NoError(t, err)
	for _, row := range res.History {
		assert.False(t, math.IsNaN(row.TotalValue))
	}
}
