package processors

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/cryptocgt/backend/src/logger"
	"github.com/username/cryptocgt/backend/src/models"
)

// Supported tax year bounds; anything outside is a configuration error.
const (
	minTaxYear = 1990
	maxTaxYear = 2100
)

// CGTCalculator produces per-tax-year capital gains reports by running the
// FIFO matcher once per asset and applying carryover, exemption and the flat
// rate on top.
type CGTCalculator struct {
	taxRate          decimal.Decimal
	annualExemption  decimal.Decimal
	fiscalStartMonth time.Month
	fiscalStartDay   int
	fifo             *FIFOProcessor
}

func NewCGTCalculator(taxRate, annualExemption decimal.Decimal, fiscalStartMonth time.Month, fiscalStartDay int) *CGTCalculator {
	return &CGTCalculator{
		taxRate:          taxRate,
		annualExemption:  annualExemption,
		fiscalStartMonth: fiscalStartMonth,
		fiscalStartDay:   fiscalStartDay,
		fifo:             NewFIFOProcessor(),
	}
}

// CalculateTaxYear builds the report for one tax year. Pure over its inputs:
// running it twice on the same transaction set yields identical reports.
// priorLossCarryover is the unused net-loss balance from earlier years; it is
// consumed before the annual exemption and only when the year nets a gain.
func (c *CGTCalculator) CalculateTaxYear(transactions []models.Transaction, taxYear int, priorLossCarryover decimal.Decimal) (*models.TaxYearReport, error) {
	if taxYear < minTaxYear || taxYear > maxTaxYear {
		return nil, fmt.Errorf("%w: %d (supported range %d-%d)", ErrInvalidTaxYear, taxYear, minTaxYear, maxTaxYear)
	}
	if c.taxRate.IsNegative() {
		return nil, fmt.Errorf("%w: negative tax rate %s", ErrInvalidTaxConfig, c.taxRate)
	}
	if c.annualExemption.IsNegative() {
		return nil, fmt.Errorf("%w: negative annual exemption %s", ErrInvalidTaxConfig, c.annualExemption)
	}
	if priorLossCarryover.IsNegative() {
		return nil, fmt.Errorf("%w: negative loss carryover %s", ErrInvalidTaxConfig, priorLossCarryover)
	}

	logger.L.Debug("Calculating CGT", "taxYear", taxYear, "transactionCount", len(transactions))

	var yearTxs, taxableTxs []models.Transaction
	for _, tx := range transactions {
		if tx.TaxYear != taxYear {
			continue
		}
		yearTxs = append(yearTxs, tx)
		if tx.IsTaxable && !tx.IsTransfer() {
			taxableTxs = append(taxableTxs, tx)
		}
	}

	assetGains, err := c.calculateAssetGains(taxableTxs)
	if err != nil {
		return nil, err
	}

	totalGains := decimal.Zero
	totalLosses := decimal.Zero
	for _, ag := range assetGains {
		if ag.Gain.IsPositive() {
			totalGains = totalGains.Add(ag.Gain)
		} else {
			totalLosses = totalLosses.Add(ag.Gain.Abs())
		}
		if ag.Unmatched.IsPositive() {
			logger.L.Warn("Disposal quantity exceeds acquisition history",
				"taxYear", taxYear, "asset", ag.Asset, "unmatchedQuantity", ag.Unmatched)
		}
	}
	netGains := totalGains.Sub(totalLosses)

	// Loss carryover offsets gains before the exemption and is only consumed
	// when the year nets a gain.
	carryoverUsed := decimal.Zero
	carryoverRemaining := priorLossCarryover
	taxableGains := decimal.Zero
	if netGains.IsPositive() {
		carryoverUsed = decimal.Min(priorLossCarryover, netGains)
		carryoverRemaining = priorLossCarryover.Sub(carryoverUsed)
		taxableGains = netGains.Sub(carryoverUsed)
	}

	taxableGains = decimal.Max(decimal.Zero, taxableGains.Sub(c.annualExemption))
	taxDue := taxableGains.Mul(c.taxRate)

	start, end := FiscalYearRange(taxYear, c.fiscalStartMonth, c.fiscalStartDay)

	report := &models.TaxYearReport{
		ID:      fmt.Sprintf("cgt_report_%d", taxYear),
		TaxYear: taxYear,
		Status:  models.ReportStatusDraft,

		TotalGains:      totalGains.Round(2),
		TotalLosses:     totalLosses.Round(2),
		NetGains:        netGains.Round(2),
		AnnualExemption: c.annualExemption,
		TaxableGains:    taxableGains.Round(2),
		TaxRate:         c.taxRate,
		TaxDue:          taxDue.Round(2),

		LossCarryoverUsed:      carryoverUsed.Round(2),
		LossCarryoverRemaining: carryoverRemaining.Round(2),

		TotalTransactions:   len(yearTxs),
		TaxableTransactions: len(taxableTxs),

		StartDate: start,
		EndDate:   end,

		AssetGains: assetGains,

		CalculatedAt: time.Now().UTC(),
	}

	logger.L.Info("CGT calculation complete",
		"taxYear", taxYear, "netGains", report.NetGains, "taxDue", report.TaxDue)

	return report, nil
}

// CalculateAllYears computes a report for every tax year present in the
// transaction set, in ascending order, threading the loss carryover balance
// from year to year: a year ending in a net loss adds to the balance, a year
// netting a gain consumes from it.
func (c *CGTCalculator) CalculateAllYears(transactions []models.Transaction) ([]*models.TaxYearReport, error) {
	yearSet := make(map[int]bool)
	for _, tx := range transactions {
		if tx.TaxYear != 0 {
			yearSet[tx.TaxYear] = true
		}
	}
	years := make([]int, 0, len(yearSet))
	for y := range yearSet {
		years = append(years, y)
	}
	sort.Ints(years)

	carryover := decimal.Zero
	reports := make([]*models.TaxYearReport, 0, len(years))
	for _, year := range years {
		report, err := c.CalculateTaxYear(transactions, year, carryover)
		if err != nil {
			return nil, err
		}
		if report.NetGains.IsNegative() {
			carryover = carryover.Add(report.NetGains.Abs())
		} else {
			carryover = report.LossCarryoverRemaining
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// calculateAssetGains partitions by asset (alphabetical, so the per-asset
// breakdown ordering is reproducible) and runs one matching pass per asset.
func (c *CGTCalculator) calculateAssetGains(transactions []models.Transaction) ([]models.AssetGain, error) {
	byAsset := make(map[string][]models.Transaction)
	for _, tx := range transactions {
		byAsset[tx.Asset] = append(byAsset[tx.Asset], tx)
	}

	assets := make([]string, 0, len(byAsset))
	for asset := range byAsset {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	gains := make([]models.AssetGain, 0, len(assets))
	for _, asset := range assets {
		result, err := c.fifo.MatchAsset(byAsset[asset])
		if err != nil {
			return nil, fmt.Errorf("matching asset %s: %w", asset, err)
		}
		gains = append(gains, models.AssetGain{
			Asset:     asset,
			Gain:      result.Gain,
			Unmatched: result.Unmatched,
		})
	}
	return gains, nil
}
