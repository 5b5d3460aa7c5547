package validation

import (
	"fmt"
	"strings"

	"github.com/username/galculator/backend/src/backtest"
	"github.com/username/galculator/backend/src/models"
)

// ValidateBacktestRequest checks the whole simulation request before the
// engine sees it: date ordering, amount signs, portfolio and asset counts,
// symbol formats and the weights-sum-to-100 rule. It returns sanitized
// portfolio names in place.
func ValidateBacktestRequest(req *models.BacktestRequest) error {
	start, err := ValidateDateString(req.StartDate, "Start date")
	if err != nil {
		return err
	}
	end, err := ValidateDateString(req.EndDate, "End date")
	if err != nil {
		return err
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: start date must be before end date", ErrValidationFailed)
	}

	if err := ValidateNonNegative(req.InitialCapital, "Initial capital"); err != nil {
		return err
	}
	if err := ValidateNonNegative(req.MonthlyContribution, "Monthly contribution"); err != nil {
		return err
	}

	if len(req.Portfolios) == 0 {
		return fmt.Errorf("%w: at least one portfolio is required", ErrValidationFailed)
	}
	if len(req.Portfolios) > MaxPortfolios {
		return fmt.Errorf("%w: at most %d portfolios are allowed", ErrValidationFailed, MaxPortfolios)
	}

	for i := range req.Portfolios {
		if err := validatePortfolio(&req.Portfolios[i], i); err != nil {
			return err
		}
	}
	return nil
}

func validatePortfolio(def *models.PortfolioDefinition, idx int) error {
	def.Name = SanitizeText(strings.TrimSpace(def.Name))
	if def.Name == "" {
		def.Name = fmt.Sprintf("Portfolio %d", idx+1)
	}
	if err := ValidateStringMaxLength(def.Name, MaxPortfolioNameLength, "Portfolio name"); err != nil {
		return err
	}

	if len(def.Assets) == 0 {
		return fmt.Errorf("%w: portfolio %q has no assets", ErrValidationFailed, def.Name)
	}
	if len(def.Assets) > MaxAssetsPerPortfolio {
		return fmt.Errorf("%w: portfolio %q has more than %d assets", ErrValidationFailed, def.Name, MaxAssetsPerPortfolio)
	}

	weightSum := 0
	for i := range def.Assets {
		asset := &def.Assets[i]
		asset.Symbol = strings.ToUpper(StripUnprintable(strings.TrimSpace(asset.Symbol)))
		if asset.Symbol != backtest.CashSymbol {
			if err := ValidateSymbol(asset.Symbol); err != nil {
				return fmt.Errorf("portfolio %q: %w", def.Name, err)
			}
		}
		if asset.WeightPercent < 0 || asset.WeightPercent > 100 {
			return fmt.Errorf("%w: portfolio %q: weight for %s must be between 0 and 100", ErrValidationFailed, def.Name, asset.Symbol)
		}
		weightSum += asset.WeightPercent
	}
	if weightSum != 100 {
		return fmt.Errorf("%w: portfolio %q: asset weights must sum to 100, got %d", ErrValidationFailed, def.Name, weightSum)
	}

	if def.WithdrawalEnabled {
		if err := ValidateFloatRange(def.WithdrawalRatePercent, "Withdrawal rate", 0, 100); err != nil {
			return fmt.Errorf("portfolio %q: %w", def.Name, err)
		}
		if err := ValidateFloatRange(def.InflationRatePercent, "Inflation rate", 0, 20); err != nil {
			return fmt.Errorf("portfolio %q: %w", def.Name, err)
		}
		if def.WithdrawalStartYear < 1 {
			return fmt.Errorf("%w: portfolio %q: withdrawal start year must be at least 1", ErrValidationFailed, def.Name)
		}
	}
	return nil
}
