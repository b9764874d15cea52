package processors

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/username/cryptocgt/backend/src/models"
)

// portfolioProcessorImpl implements the PortfolioProcessor interface.
type portfolioProcessorImpl struct{}

func NewPortfolioProcessor() PortfolioProcessor {
	return &portfolioProcessorImpl{}
}

var oneHundred = decimal.NewFromInt(100)

// Summarize sums signed quantities and EUR values per asset over the taxable
// transactions, optionally restricted to one tax year (taxYear == 0 means all
// years). Allocation percentages are computed against the total of positive
// asset values; assets with a non-positive net value get zero allocation.
func (p *portfolioProcessorImpl) Summarize(transactions []models.Transaction, taxYear int) *models.PortfolioSummary {
	quantities := make(map[string]decimal.Decimal)
	values := make(map[string]decimal.Decimal)

	total := 0
	taxable := 0
	for _, tx := range transactions {
		if taxYear != 0 && tx.TaxYear != taxYear {
			continue
		}
		total++
		if !tx.IsTaxable || tx.IsTransfer() {
			continue
		}
		taxable++
		quantities[tx.Asset] = quantities[tx.Asset].Add(tx.Quantity)
		values[tx.Asset] = values[tx.Asset].Add(tx.SignedEURValue())
	}

	totalValue := decimal.Zero
	for _, v := range values {
		if v.IsPositive() {
			totalValue = totalValue.Add(v)
		}
	}

	assets := make([]string, 0, len(quantities))
	for asset := range quantities {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	holdings := make([]models.AssetHolding, 0, len(assets))
	for _, asset := range assets {
		allocation := decimal.Zero
		if totalValue.IsPositive() && values[asset].IsPositive() {
			allocation = values[asset].Div(totalValue).Mul(oneHundred).Round(2)
		}
		holdings = append(holdings, models.AssetHolding{
			Asset:         asset,
			Quantity:      quantities[asset],
			ValueEUR:      values[asset].Round(2),
			AllocationPct: allocation,
		})
	}

	return &models.PortfolioSummary{
		TotalValueEUR:       totalValue.Round(2),
		Holdings:            holdings,
		TotalTransactions:   total,
		TaxableTransactions: taxable,
	}
}
