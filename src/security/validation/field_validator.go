package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/username/galculator/backend/src/logger"
)

// ErrValidationFailed remains the same
var ErrValidationFailed = fmt.Errorf("validation failed")

// Constants for lengths and limits remain here
const (
	DefaultMaxStringLength = 255
	MaxSymbolLength        = 12
	MaxPortfolioNameLength = 60
	MaxPortfolios          = 10
	MaxAssetsPerPortfolio  = 10
)

// --- String Validators ---

// ValidateStringNotEmpty checks if a string is not empty after trimming.
func ValidateStringNotEmpty(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrValidationFailed, fieldName)
	}
	return nil
}

// ValidateStringMaxLength checks if a string's UTF-8 character count is within max bounds.
func ValidateStringMaxLength(s string, maxLength int, fieldName string) error {
	if utf8.RuneCountInString(s) > maxLength {
		return fmt.Errorf("%w: %s exceeds maximum length of %d characters", ErrValidationFailed, fieldName, maxLength)
	}
	return nil
}

// ValidateStringRegex checks if a string matches a given regex pattern.
func ValidateStringRegex(s string, pattern *regexp.Regexp, fieldName, formatDescription string) error {
	if !pattern.MatchString(s) {
		return fmt.Errorf("%w: %s ('%s') is not in the expected format (%s)", ErrValidationFailed, fieldName, s, formatDescription)
	}
	return nil
}

// --- Numeric Validators ---

// ValidateFloatRange checks if a value is within an inclusive range.
func ValidateFloatRange(val float64, fieldName string, minVal, maxVal float64) error {
	if val < minVal || val > maxVal {
		logger.L.Warn("Float value out of range", "field", fieldName, "value", val, "min", minVal, "max", maxVal)
		return fmt.Errorf("%w: %s must be between %.2f and %.2f, got %.2f", ErrValidationFailed, fieldName, minVal, maxVal, val)
	}
	return nil
}

// ValidateNonNegative rejects negative amounts.
func ValidateNonNegative(val float64, fieldName string) error {
	if val < 0 {
		logger.L.Warn("Negative value not allowed for field", "field", fieldName, "value", val)
		return fmt.Errorf("%w: %s cannot be negative", ErrValidationFailed, fieldName)
	}
	return nil
}

// --- Date Validator ---

// ValidateDateString checks if a string is a valid date in "YYYY-MM-DD" format.
func ValidateDateString(s, fieldName string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if err := ValidateStringNotEmpty(trimmed, fieldName); err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse("2006-01-02", trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s ('%s') is not a valid date (expected YYYY-MM-DD): %v", ErrValidationFailed, fieldName, s, err)
	}
	if t.Format("2006-01-02") != trimmed {
		return time.Time{}, fmt.Errorf("%w: %s ('%s') is an invalid date (e.g., day/month mismatch)", ErrValidationFailed, fieldName, s)
	}
	return t, nil
}

// --- Specific Format Validators ---

var symbolRegex = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-^=]{0,11}$`)

// ValidateSymbol checks a ticker symbol: uppercase alphanumerics plus the
// punctuation Yahoo uses for exchanges and indices (BRK-B, VWRA.L, ^GSPC).
func ValidateSymbol(s string) error {
	trimmed := strings.TrimSpace(s)
	if err := ValidateStringNotEmpty(trimmed, "Symbol"); err != nil {
		return err
	}
	if err := ValidateStringMaxLength(trimmed, MaxSymbolLength, "Symbol"); err != nil {
		return err
	}
	return ValidateStringRegex(trimmed, symbolRegex, "Symbol", "uppercase ticker such as SPY, BRK-B or VWRA.L")
}
