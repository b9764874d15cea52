package processors

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/username/cryptocgt/backend/src/models"
)

var (
	// ErrMixedAssets is returned when a single-asset matching pass receives
	// transactions for more than one asset symbol.
	ErrMixedAssets = errors.New("transaction set mixes multiple assets")

	// ErrInvalidTaxYear is returned when the requested tax year is outside
	// the supported range.
	ErrInvalidTaxYear = errors.New("invalid tax year")

	// ErrInvalidTaxConfig is returned when tax rate, exemption or carryover
	// inputs are negative.
	ErrInvalidTaxConfig = errors.New("invalid tax configuration")
)

// CGTProcessor calculates capital gains tax reports from normalized
// transactions.
type CGTProcessor interface {
	CalculateTaxYear(transactions []models.Transaction, taxYear int, priorLossCarryover decimal.Decimal) (*models.TaxYearReport, error)
	CalculateAllYears(transactions []models.Transaction) ([]*models.TaxYearReport, error)
}

// PortfolioProcessor aggregates holdings and valuation per asset.
type PortfolioProcessor interface {
	Summarize(transactions []models.Transaction, taxYear int) *models.PortfolioSummary
}
