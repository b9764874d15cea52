package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action kinds for a normalized transaction. A swap is a crypto-to-crypto trade
// and appears as an acquisition or a disposal depending on the sign of Quantity.
const (
	ActionBuy        = "buy"
	ActionSell       = "sell"
	ActionSwap       = "swap"
	ActionTransfer   = "transfer"
	ActionDeposit    = "deposit"
	ActionWithdrawal = "withdrawal"
)

// Transaction source kinds.
const (
	SourceCSV = "csv"
	SourceAPI = "api"
)

// Transaction is the normalized representation of one economic event, produced
// by an exchange importer (CSV parser or API client). Quantity is signed:
// positive increases holdings, negative decreases them; its magnitude is never
// zero. PriceEUR is the unit price in the reporting currency at transaction
// time. CostBasis and RealizedGain stay unset until a calculation pass fills
// them in.
type Transaction struct {
	ID       string          `json:"id"`
	Date     time.Time       `json:"date"` // always UTC
	Exchange string          `json:"exchange"`
	Asset    string          `json:"asset"`
	Action   string          `json:"action"`
	Quantity decimal.Decimal `json:"quantity"`
	PriceEUR decimal.Decimal `json:"price_eur"`
	Fee      decimal.Decimal `json:"fee"`
	FeeAsset string          `json:"fee_asset"`
	TxID     string          `json:"tx_id,omitempty"`
	Source   string          `json:"source"`

	IsTaxable    bool                `json:"is_taxable"`
	TaxYear      int                 `json:"tax_year,omitempty"` // 0 until assigned
	CostBasis    decimal.NullDecimal `json:"cost_basis,omitempty"`
	RealizedGain decimal.NullDecimal `json:"realized_gain,omitempty"`

	Description string `json:"description,omitempty"`
}

// IsBuy reports whether the transaction acquires an asset for gain purposes.
func (t *Transaction) IsBuy() bool {
	return (t.Action == ActionBuy || t.Action == ActionSwap) && t.Quantity.IsPositive()
}

// IsSell reports whether the transaction disposes of an asset for gain purposes.
func (t *Transaction) IsSell() bool {
	return (t.Action == ActionSell || t.Action == ActionSwap) && t.Quantity.IsNegative()
}

// IsTransfer reports whether the transaction only moves custody (non-taxable).
func (t *Transaction) IsTransfer() bool {
	return t.Action == ActionTransfer || t.Action == ActionDeposit || t.Action == ActionWithdrawal
}

// EURValue returns |quantity| x unit price.
func (t *Transaction) EURValue() decimal.Decimal {
	return t.Quantity.Abs().Mul(t.PriceEUR)
}

// SignedEURValue returns quantity x unit price, keeping the sign of the quantity.
func (t *Transaction) SignedEURValue() decimal.Decimal {
	return t.Quantity.Mul(t.PriceEUR)
}
