package models

// Asset is one sleeve of a portfolio definition. Weight is an integer
// percentage; the weights of a portfolio must sum to exactly 100.
type Asset struct {
	Symbol        string `json:"symbol"`
	WeightPercent int    `json:"weight_percent"`
}

// PortfolioDefinition describes one portfolio to simulate. The reserved
// symbol CASH0 denotes an uninvested cash sleeve and never triggers a price
// lookup. Validation (weights sum to 100, symbol format, asset count) happens
// in the request layer before the engine runs.
type PortfolioDefinition struct {
	Name                  string  `json:"name"`
	Assets                []Asset `json:"assets"`
	WithdrawalEnabled     bool    `json:"withdrawal_enabled"`
	WithdrawalRatePercent float64 `json:"withdrawal_rate_percent"`
	InflationRatePercent  float64 `json:"inflation_rate_percent"`
	WithdrawalStartYear   int     `json:"withdrawal_start_year"`
}

// BacktestRequest is the full input to the backtest engine. Dates are
// "YYYY-MM-DD" strings as sent by the frontend.
type BacktestRequest struct {
	InitialCapital      float64               `json:"initial_capital"`
	MonthlyContribution float64               `json:"monthly_contribution"`
	StartDate           string                `json:"start_date"`
	EndDate             string                `json:"end_date"`
	RebalanceEnabled    bool                  `json:"rebalance_enabled"`
	Portfolios          []PortfolioDefinition `json:"portfolios"`
}

// PortfolioSummary is the headline result row for one portfolio.
type PortfolioSummary struct {
	Name           string  `json:"name"`
	Duration       string  `json:"duration"`
	TotalInvested  float64 `json:"total_invested"`
	FinalValue     float64 `json:"final_value"`
	TotalWithdrawn float64 `json:"total_withdrawn"`
	TotalGainLoss  float64 `json:"total_gain_loss"`
	XIRRPercent    float64 `json:"xirr_percent"`
	MaxDrawdown    string  `json:"max_drawdown"`
}

// DailyPoint is one row of the simulated daily history.
type DailyPoint struct {
	Date            string  `json:"date"`
	TotalValue      float64 `json:"total_value"`
	InvestedCapital float64 `json:"invested_capital"`
	Withdrawal      float64 `json:"withdrawal"`
}

// MonthlyPoint is the monthly resample of the daily history: last value of
// the month for totals and invested capital, sum for withdrawals.
type MonthlyPoint struct {
	Month           string  `json:"month"`
	TotalValue      float64 `json:"total_value"`
	InvestedCapital float64 `json:"invested_capital"`
	Withdrawal      float64 `json:"withdrawal"`
}

// PortfolioReport bundles everything the frontend renders for one portfolio.
// AnnualReturns maps calendar year to a return fraction computed from account
// balances only; withdrawals drawn during the year do not count. XIRR is the
// money-weighted complement.
type PortfolioReport struct {
	Summary       PortfolioSummary `json:"summary"`
	Daily         []DailyPoint     `json:"daily"`
	Monthly       []MonthlyPoint   `json:"monthly"`
	AnnualReturns map[int]float64  `json:"annual_returns"`
}

// BacktestResult is the full output of one engine run.
type BacktestResult struct {
	CommonStartDate string            `json:"common_start_date"`
	FirstValidDates map[string]string `json:"first_valid_dates"`
	Portfolios      []PortfolioReport `json:"portfolios"`
}
