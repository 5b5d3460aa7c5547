package services

import (
	"errors"
	"time"

	"github.com/username/galculator/backend/src/backtest"
)

// Define common service errors
var (
	ErrNoMarketData = errors.New("no market data available for requested symbols")
	ErrEmptyHistory = errors.New("no history points to draw")
)

// MarketDataService fetches daily price history for a set of symbols.
// Implementations must satisfy backtest.PriceFetcher so the engine can use
// them directly.
type MarketDataService interface {
	backtest.PriceFetcher

	// ArchivedPriceCount reports how many daily price rows are persisted
	// locally. Used by the admin stats endpoint.
	ArchivedPriceCount() (int64, error)
}

// EquitySeries is one named line on a comparison chart.
type EquitySeries struct {
	Name   string
	Dates  []time.Time
	Values []float64
}

// AnnualSeries is one named group of calendar-year return fractions.
type AnnualSeries struct {
	Name    string
	Returns map[int]float64
}

// ChartService renders portfolio trajectories as images.
type ChartService interface {
	// RenderEquityCurves draws one line per series over a shared date axis
	// and returns the encoded PNG.
	RenderEquityCurves(title string, series []EquitySeries) ([]byte, error)

	// RenderAnnualReturns draws grouped per-year return bars, one group of
	// bars per year and one bar per series, and returns the encoded PNG.
	RenderAnnualReturns(title string, series []AnnualSeries) ([]byte, error)
}
