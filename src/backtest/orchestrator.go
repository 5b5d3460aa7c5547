package backtest

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/username/galculator/backend/src/logger"
	"github.com/username/galculator/backend/src/models"
)

var (
	// ErrNoValidAsset means the request carried no symbol to price and no
	// CASH0 sleeve anywhere.
	ErrNoValidAsset = errors.New("no valid asset in request")
	// ErrNoPriceData means no requested symbol yielded a single valid
	// observation in the fetched range.
	ErrNoPriceData = errors.New("no valid price data for any requested symbol")
)

// PriceFetcher is the market-data collaborator boundary: given a symbol set
// and a date range it returns a calendar-indexed price table (not yet
// forward-filled).
type PriceFetcher interface {
	FetchDailyPrices(symbols []string, start, end time.Time) (*PriceTable, error)
}

// Engine resolves the common start date across all requested symbols, runs
// the simulator once per portfolio, and assembles the presentation-ready
// result.
type Engine struct {
	fetcher PriceFetcher
}

func NewEngine(fetcher PriceFetcher) *Engine {
	return &Engine{fetcher: fetcher}
}

// Run executes the whole backtest batch. Per-portfolio simulation failures
// (an empty date axis after common-start filtering) skip that portfolio only;
// data unavailability aborts the batch with no partial results.
func (e *Engine) Run(req models.BacktestRequest, start, end time.Time) (*models.BacktestResult, error) {
	symbols, hasCash := collectSymbols(req.Portfolios)
	if len(symbols) == 0 && !hasCash {
		return nil, ErrNoValidAsset
	}

	var table *PriceTable
	if len(symbols) > 0 {
		var err error
		table, err = e.fetcher.FetchDailyPrices(symbols, start, end)
		if err != nil {
			return nil, fmt.Errorf("fetching market data: %w", err)
		}
	} else {
		// Pure-cash request: synthesize a monthly axis so the simulator
		// still has trading days to walk.
		var err error
		table, err = NewPriceTable(monthlyAxis(start, end))
		if err != nil {
			return nil, err
		}
	}
	table.ForwardFill()

	firstValid := make(map[string]string, len(symbols))
	var commonStart time.Time
	for _, sym := range symbols {
		fv, ok := table.FirstValidDate(sym)
		if !ok {
			logger.L.Warn("Symbol has no valid observations in range", "symbol", sym)
			continue
		}
		firstValid[sym] = fv.Format("2006-01-02")
		if fv.After(commonStart) {
			commonStart = fv
		}
	}
	if len(symbols) > 0 && len(firstValid) == 0 {
		return nil, ErrNoPriceData
	}
	if commonStart.IsZero() && len(table.Dates()) > 0 {
		commonStart = table.Dates()[0]
	}

	dates := table.DatesFrom(commonStart)

	result := &models.BacktestResult{
		CommonStartDate: commonStart.Format("2006-01-02"),
		FirstValidDates: firstValid,
	}
	for _, def := range req.Portfolios {
		sim, err := RunSimulation(table, def, dates, req.InitialCapital, req.MonthlyContribution, req.RebalanceEnabled)
		if err != nil {
			logger.L.Warn("Skipping portfolio", "portfolio", def.Name, "error", err)
			continue
		}
		result.Portfolios = append(result.Portfolios, buildReport(def, sim, dates))
	}
	return result, nil
}

func collectSymbols(portfolios []models.PortfolioDefinition) ([]string, bool) {
	seen := make(map[string]bool)
	hasCash := false
	var symbols []string
	for _, p := range portfolios {
		for _, a := range p.Assets {
			if a.Symbol == CashSymbol {
				hasCash = true
				continue
			}
			if !seen[a.Symbol] {
				seen[a.Symbol] = true
				symbols = append(symbols, a.Symbol)
			}
		}
	}
	sort.Strings(symbols)
	return symbols, hasCash
}

// monthlyAxis builds the date axis for price-free simulations: the start
// date itself, then the first of every following month. Anchoring the steps
// on day 1 keeps AddDate from normalizing short months away (Jan 31 plus one
// month would land on Mar 2 and skip February's cycle).
func monthlyAxis(start, end time.Time) []time.Time {
	var dates []time.Time
	first := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	if !first.After(end) {
		dates = append(dates, first)
	}
	d := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	for !d.After(end) {
		dates = append(dates, d)
		d = d.AddDate(0, 1, 0)
	}
	return dates
}

func buildReport(def models.PortfolioDefinition, sim *SimulationResult, dates []time.Time) models.PortfolioReport {
	history := sim.History
	first := history[0].Date
	last := history[len(history)-1].Date
	finalValue := sim.FinalValue()

	flows := sim.CashFlows
	if finalValue > 0 {
		flows = append(flows, CashFlow{Date: dates[len(dates)-1], Amount: finalValue})
	}

	values := make([]float64, len(history))
	histDates := make([]time.Time, len(history))
	daily := make([]models.DailyPoint, len(history))
	for i, row := range history {
		values[i] = row.TotalValue
		histDates[i] = row.Date
		daily[i] = models.DailyPoint{
			Date:            row.Date.Format("2006-01-02"),
			TotalValue:      row.TotalValue,
			InvestedCapital: row.InvestedCapital,
			Withdrawal:      row.Withdrawal,
		}
	}

	summary := models.PortfolioSummary{
		Name:           def.Name,
		Duration:       durationDescription(first, last),
		TotalInvested:  sim.TotalInvested,
		FinalValue:     finalValue,
		TotalWithdrawn: sim.TotalWithdrawn,
		TotalGainLoss:  (finalValue + sim.TotalWithdrawn) - sim.TotalInvested,
		XIRRPercent:    XIRR(flows) * 100,
		MaxDrawdown:    drawdownDescription(MaxDrawdown(histDates, values)),
	}

	return models.PortfolioReport{
		Summary:       summary,
		Daily:         daily,
		Monthly:       resampleMonthly(history),
		AnnualReturns: annualReturns(history),
	}
}

func durationDescription(first, last time.Time) string {
	years := last.Sub(first).Hours() / 24.0 / 365.25
	return fmt.Sprintf("%.1f years (%s ~ %s)", years, first.Format("2006-01"), last.Format("2006-01"))
}

func drawdownDescription(d Drawdown) string {
	if d.MaxDrawdown >= 0 {
		return "0.00%"
	}
	if d.Recovered {
		recoveryDays := int(d.Recovery.Sub(d.Trough).Hours() / 24)
		return fmt.Sprintf("%.2f%% (%s -> %s, recovered %s, %d days)",
			d.MaxDrawdown*100, d.Peak.Format("2006-01"), d.Trough.Format("2006-01"),
			d.Recovery.Format("2006-01"), recoveryDays)
	}
	return fmt.Sprintf("%.2f%% (%s -> %s, not yet recovered)",
		d.MaxDrawdown*100, d.Peak.Format("2006-01"), d.Trough.Format("2006-01"))
}

// resampleMonthly keeps the last total value and invested capital of each
// month and sums the withdrawals drawn during it.
func resampleMonthly(history []SimulationDay) []models.MonthlyPoint {
	var out []models.MonthlyPoint
	for _, row := range history {
		month := row.Date.Format("2006-01")
		if len(out) == 0 || out[len(out)-1].Month != month {
			out = append(out, models.MonthlyPoint{Month: month})
		}
		p := &out[len(out)-1]
		p.TotalValue = row.TotalValue
		p.InvestedCapital = row.InvestedCapital
		p.Withdrawal += row.Withdrawal
	}
	return out
}

// annualReturns measures the account-balance trajectory per calendar year:
// last value of the year over the last value of the prior year (or the first
// value of the year when there is no prior), minus one. Withdrawals drawn
// during the year do not count toward this figure.
func annualReturns(history []SimulationDay) map[int]float64 {
	byYear := make(map[int][]SimulationDay)
	var years []int
	for _, row := range history {
		y := row.Date.Year()
		if _, ok := byYear[y]; !ok {
			years = append(years, y)
		}
		byYear[y] = append(byYear[y], row)
	}
	sort.Ints(years)

	out := make(map[int]float64, len(years))
	for i, y := range years {
		rows := byYear[y]
		endValue := rows[len(rows)-1].TotalValue
		var startValue float64
		if i == 0 {
			startValue = rows[0].TotalValue
		} else {
			prev := byYear[years[i-1]]
			startValue = prev[len(prev)-1].TotalValue
		}
		if startValue > 0 {
			out[y] = endValue/startValue - 1
		} else {
			out[y] = 0
		}
	}
	return out
}
