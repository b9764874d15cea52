package processors

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/cryptocgt/backend/src/models"
)

// acquisitionLot tracks the unsold remainder of one acquisition during a
// matching pass. UnitCost folds the acquisition fee into the price
// proportionally. Lots live only for the duration of one MatchAsset call.
type acquisitionLot struct {
	txID      string
	date      time.Time
	remaining decimal.Decimal
	unitCost  decimal.Decimal
}

// DisposalMatch holds the figures computed for one disposal transaction.
type DisposalMatch struct {
	TxID      string          `json:"tx_id"`
	CostBasis decimal.Decimal `json:"cost_basis"`
	Proceeds  decimal.Decimal `json:"proceeds"`
	Gain      decimal.Decimal `json:"gain"`
	Unmatched decimal.Decimal `json:"unmatched"`
}

// MatchResult is the outcome of one single-asset matching pass.
type MatchResult struct {
	Asset     string
	Gain      decimal.Decimal // net realized gain/loss across all disposals
	Unmatched decimal.Decimal // disposal quantity with no acquisition history
	Disposals []DisposalMatch
}

// FIFOProcessor consumes acquisition lots oldest-first to realize gains on
// disposals of a single asset.
type FIFOProcessor struct{}

func NewFIFOProcessor() *FIFOProcessor { return &FIFOProcessor{} }

// MatchAsset computes realized gains for one asset. The input may arrive in
// any order; acquisitions and disposals are sorted by timestamp internally.
// Only buy/sell/swap records participate; custody transfers are ignored.
//
// Each disposal consumes the oldest remaining lot first. A lot smaller than
// the open disposal quantity is consumed whole and removed; a larger lot is
// decremented in place and stays at the front for the next disposal. Disposal
// quantity left over once the queue is empty is reported as Unmatched and
// yields no further gain.
//
// Acquisition fees raise the lot's unit cost; disposal fees reduce proceeds,
// prorated over the matched quantity. Fees must already be expressed in the
// reporting currency.
//
// Each disposal record gets its CostBasis and RealizedGain fields filled in
// as part of the pass; acquisition records are left untouched.
func (p *FIFOProcessor) MatchAsset(transactions []models.Transaction) (*MatchResult, error) {
	asset := ""
	for i := range transactions {
		if asset == "" {
			asset = transactions[i].Asset
			continue
		}
		if transactions[i].Asset != asset {
			return nil, fmt.Errorf("%w: %q and %q", ErrMixedAssets, asset, transactions[i].Asset)
		}
	}

	var buys, sells []*models.Transaction
	for i := range transactions {
		tx := &transactions[i]
		switch {
		case tx.IsBuy():
			buys = append(buys, tx)
		case tx.IsSell():
			sells = append(sells, tx)
		}
	}
	sortByDate(buys)
	sortByDate(sells)

	lots := make([]*acquisitionLot, 0, len(buys))
	for _, buy := range buys {
		qty := buy.Quantity
		unitCost := buy.PriceEUR
		if buy.Fee.IsPositive() && qty.IsPositive() {
			unitCost = unitCost.Add(buy.Fee.Div(qty))
		}
		lots = append(lots, &acquisitionLot{
			txID:      buy.ID,
			date:      buy.Date,
			remaining: qty,
			unitCost:  unitCost,
		})
	}

	result := &MatchResult{Asset: asset, Gain: decimal.Zero, Unmatched: decimal.Zero}

	for _, sell := range sells {
		sellQty := sell.Quantity.Abs()
		remaining := sellQty

		match := DisposalMatch{
			TxID:      sell.ID,
			CostBasis: decimal.Zero,
			Proceeds:  decimal.Zero,
			Unmatched: decimal.Zero,
		}

		for remaining.IsPositive() && len(lots) > 0 {
			lot := lots[0]
			matched := decimal.Min(remaining, lot.remaining)

			match.CostBasis = match.CostBasis.Add(matched.Mul(lot.unitCost))
			match.Proceeds = match.Proceeds.Add(matched.Mul(sell.PriceEUR))

			remaining = remaining.Sub(matched)
			lot.remaining = lot.remaining.Sub(matched)
			if lot.remaining.IsZero() {
				lots = lots[1:]
			}
		}

		// Disposal fee reduces proceeds, prorated over the part that matched.
		matchedQty := sellQty.Sub(remaining)
		if sell.Fee.IsPositive() && matchedQty.IsPositive() {
			match.Proceeds = match.Proceeds.Sub(sell.Fee.Mul(matchedQty).Div(sellQty))
		}

		match.Gain = match.Proceeds.Sub(match.CostBasis)
		match.Unmatched = remaining

		sell.CostBasis = decimal.NewNullDecimal(match.CostBasis)
		sell.RealizedGain = decimal.NewNullDecimal(match.Gain)

		result.Gain = result.Gain.Add(match.Gain)
		result.Unmatched = result.Unmatched.Add(remaining)
		result.Disposals = append(result.Disposals, match)
	}

	return result, nil
}

func sortByDate(txs []*models.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].Date.Equal(txs[j].Date) {
			return txs[i].ID < txs[j].ID
		}
		return txs[i].Date.Before(txs[j].Date)
	})
}
