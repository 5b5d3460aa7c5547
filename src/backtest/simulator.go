package backtest

import (
	"errors"
	"math"
	"time"

	"github.com/username/galculator/backend/src/models"
)

// ErrEmptyDateAxis means a portfolio had no trading days to simulate after
// common-start filtering.
var ErrEmptyDateAxis = errors.New("no trading days to simulate")

// SimulationDay is one appended row of a portfolio's daily history.
type SimulationDay struct {
	Date            time.Time
	TotalValue      float64
	InvestedCapital float64
	Withdrawal      float64
}

// SimulationResult is the complete outcome of one portfolio simulation:
// the daily history, the investor cash flows accumulated along the way
// (without the terminal inflow), and the running totals.
type SimulationResult struct {
	History        []SimulationDay
	CashFlows      []CashFlow
	TotalInvested  float64
	TotalWithdrawn float64
}

// FinalValue returns the last recorded total value, or 0 for an empty history.
func (r *SimulationResult) FinalValue() float64 {
	if len(r.History) == 0 {
		return 0
	}
	return r.History[len(r.History)-1].TotalValue
}

// holdingState is the mutable per-symbol position: a whole-share count plus a
// cash sub-bucket holding fractional remainders awaiting the next conversion.
// For CASH0 only the cash bucket is meaningful.
type holdingState struct {
	shares int64
	cash   float64
}

type simulator struct {
	table   *PriceTable
	def     models.PortfolioDefinition
	symbols []string
	alloc   map[string]float64
	hold    map[string]*holdingState

	rebalanceEnabled    bool
	monthlyContribution float64

	cashAccount    float64
	totalInvested  float64
	currentYear    int
	yearsElapsed   int
	annualBudget   float64
	totalWithdrawn float64
	previousMonth  time.Month
}

// RunSimulation walks the date axis for one portfolio, applying withdrawal,
// rebalancing, and contribution rules in a fixed per-day order, and returns
// the daily history. Contributions, withdrawals, and rebalancing trades
// execute at the adjusted open of the first trading day of each month;
// valuation always uses the adjusted close. Shares are integer-quantized:
// purchases round down and fractional proceeds stay in the holding's cash
// bucket.
func RunSimulation(
	table *PriceTable,
	def models.PortfolioDefinition,
	dates []time.Time,
	initialCapital float64,
	monthlyContribution float64,
	rebalanceEnabled bool,
) (*SimulationResult, error) {
	if len(dates) == 0 {
		return nil, ErrEmptyDateAxis
	}

	s := &simulator{
		table:               table,
		def:                 def,
		alloc:               make(map[string]float64, len(def.Assets)),
		hold:                make(map[string]*holdingState, len(def.Assets)),
		rebalanceEnabled:    rebalanceEnabled,
		monthlyContribution: monthlyContribution,
		cashAccount:         initialCapital,
		totalInvested:       initialCapital,
	}
	for _, a := range def.Assets {
		if _, seen := s.hold[a.Symbol]; !seen {
			s.symbols = append(s.symbols, a.Symbol)
			s.hold[a.Symbol] = &holdingState{}
		}
		s.alloc[a.Symbol] = float64(a.WeightPercent) / 100.0
	}

	res := &SimulationResult{TotalInvested: initialCapital}
	if initialCapital > 0 {
		res.CashFlows = append(res.CashFlows, CashFlow{Date: dates[0], Amount: -initialCapital})
	}

	for _, d := range dates {
		s.stepYearBoundary(d)

		isBuyDay := d.Month() != s.previousMonth
		if isBuyDay {
			s.previousMonth = d.Month()
		}

		var todaysWithdrawal float64
		if isBuyDay && def.WithdrawalEnabled && s.annualBudget > 0 {
			todaysWithdrawal = s.withdraw(d)
			s.totalWithdrawn += todaysWithdrawal
			if todaysWithdrawal > 0 {
				res.CashFlows = append(res.CashFlows, CashFlow{Date: d, Amount: todaysWithdrawal})
			}
		}

		if isBuyDay && s.rebalanceEnabled && d.Month() == time.January && s.yearsElapsed > 0 {
			s.rebalance(d)
		}

		if isBuyDay {
			if s.monthlyContribution > 0 {
				s.cashAccount += s.monthlyContribution
				s.totalInvested += s.monthlyContribution
				res.CashFlows = append(res.CashFlows, CashFlow{Date: d, Amount: -s.monthlyContribution})
			}
			s.allocate(d)
		}

		res.History = append(res.History, SimulationDay{
			Date:            d,
			TotalValue:      s.totalValueAtClose(d),
			InvestedCapital: s.totalInvested,
			Withdrawal:      todaysWithdrawal,
		})
	}

	res.TotalInvested = s.totalInvested
	res.TotalWithdrawn = s.totalWithdrawn
	return res, nil
}

// stepYearBoundary advances the year counter and the withdrawal budget. An
// already-set budget inflates once per year boundary; the budget itself is
// first set at withdrawal eligibility as a fraction of the portfolio value on
// that day and stays fixed until the next boundary.
func (s *simulator) stepYearBoundary(d time.Time) {
	if d.Year() == s.currentYear {
		return
	}
	if s.currentYear != 0 {
		s.yearsElapsed++
		if s.annualBudget > 0 {
			s.annualBudget *= 1 + s.def.InflationRatePercent/100.0
		}
	}
	s.currentYear = d.Year()
	if s.def.WithdrawalEnabled && s.yearsElapsed+1 >= s.def.WithdrawalStartYear && s.annualBudget == 0 {
		s.annualBudget = s.totalValueAtClose(d) * s.def.WithdrawalRatePercent / 100.0
	}
}

// withdraw draws one month's share of the annual budget: portfolio-level cash
// first, then each holding's cash bucket, then whole-share liquidation at the
// adjusted open (ceiling of the shares needed, capped at the position), with
// any liquidation overshoot credited back to the cash account.
func (s *simulator) withdraw(d time.Time) float64 {
	target := s.annualBudget / 12.0
	if s.cashAccount >= target {
		s.cashAccount -= target
		return target
	}

	need := target - s.cashAccount
	withdrawn := s.cashAccount
	s.cashAccount = 0

	for _, sym := range s.symbols {
		if need <= 0 {
			break
		}
		h := s.hold[sym]
		if h.cash >= need {
			h.cash -= need
			withdrawn += need
			need = 0
			continue
		}
		need -= h.cash
		withdrawn += h.cash
		h.cash = 0

		if sym == CashSymbol {
			continue
		}
		pr := ResolveAdjusted(s.table, d, sym)
		if pr.AdjOpen <= 0 {
			continue
		}
		sell := int64(math.Ceil(need / pr.AdjOpen))
		if sell > h.shares {
			sell = h.shares
		}
		if sell <= 0 {
			continue
		}
		proceeds := float64(sell) * pr.AdjOpen
		h.shares -= sell
		if proceeds >= need {
			s.cashAccount += proceeds - need
			withdrawn += need
			need = 0
		} else {
			withdrawn += proceeds
			need -= proceeds
		}
	}
	return withdrawn
}

// rebalance trades every holding back toward its target weight using one
// shared snapshot of the total portfolio value at the adjusted open. All
// sells resolve before any buys; a single pass, no iteration to convergence.
// The first calendar year is exempt (callers guard on yearsElapsed > 0).
func (s *simulator) rebalance(d time.Time) {
	currentValue := make(map[string]float64, len(s.symbols))
	openPrice := make(map[string]float64, len(s.symbols))
	total := s.cashAccount
	for _, sym := range s.symbols {
		h := s.hold[sym]
		v := h.cash
		if sym != CashSymbol {
			pr := ResolveAdjusted(s.table, d, sym)
			openPrice[sym] = pr.AdjOpen
			v += float64(h.shares) * pr.AdjOpen
		}
		currentValue[sym] = v
		total += v
	}

	for _, sym := range s.symbols {
		excess := currentValue[sym] - total*s.alloc[sym]
		if excess <= 0 {
			continue
		}
		h := s.hold[sym]
		if sym == CashSymbol {
			amt := math.Min(excess, h.cash)
			h.cash -= amt
			s.cashAccount += amt
		} else if openPrice[sym] > 0 {
			n := int64(excess / openPrice[sym])
			if n > h.shares {
				n = h.shares
			}
			if n > 0 {
				h.shares -= n
				s.cashAccount += float64(n) * openPrice[sym]
			}
		}
	}

	for _, sym := range s.symbols {
		deficit := total*s.alloc[sym] - currentValue[sym]
		if deficit <= 0 {
			continue
		}
		h := s.hold[sym]
		if sym == CashSymbol {
			amt := math.Min(deficit, s.cashAccount)
			h.cash += amt
			s.cashAccount -= amt
		} else if openPrice[sym] > 0 {
			amt := math.Min(deficit, s.cashAccount)
			n := int64(amt / openPrice[sym])
			if n > 0 {
				h.shares += n
				s.cashAccount -= float64(n) * openPrice[sym]
			}
		}
	}
}

// allocate distributes the whole cash account proportionally by target weight
// into the holdings' cash buckets and converts as many whole shares as each
// non-cash bucket affords at the adjusted open. Fractional remainders stay in
// the holding's bucket for future top-up, not in the portfolio-level account.
func (s *simulator) allocate(d time.Time) {
	pot := s.cashAccount
	s.cashAccount = 0
	for _, sym := range s.symbols {
		h := s.hold[sym]
		h.cash += pot * s.alloc[sym]
		if sym == CashSymbol {
			continue
		}
		pr := ResolveAdjusted(s.table, d, sym)
		if pr.AdjOpen <= 0 {
			continue
		}
		n := int64(h.cash / pr.AdjOpen)
		if n > 0 {
			h.shares += n
			h.cash -= float64(n) * pr.AdjOpen
		}
	}
}

// totalValueAtClose prices the whole portfolio at the day's adjusted close.
func (s *simulator) totalValueAtClose(d time.Time) float64 {
	total := s.cashAccount
	for _, sym := range s.symbols {
		h := s.hold[sym]
		total += h.cash
		if sym != CashSymbol {
			pr := ResolveAdjusted(s.table, d, sym)
			total += float64(h.shares) * pr.AdjClose
		}
	}
	return total
}
