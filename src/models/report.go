package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Report statuses. Transitions are advisory only and have no effect on the
// computed figures: draft -> final -> submitted.
const (
	ReportStatusDraft     = "draft"
	ReportStatusFinal     = "final"
	ReportStatusSubmitted = "submitted"
)

// AssetGain is the realized result for one asset within a tax year. Unmatched
// records disposal quantity that exceeded the known acquisition history; it is
// a data-quality signal, not a tax figure.
type AssetGain struct {
	Asset     string          `json:"asset"`
	Gain      decimal.Decimal `json:"gain"`
	Unmatched decimal.Decimal `json:"unmatched,omitempty"`
}

// TaxYearReport is the capital gains result for one fiscal year. Monetary
// fields are rounded to cents; the invariant tax_due = max(0, net_gains -
// carryover_used - exemption) x tax_rate holds and TaxDue is never negative.
type TaxYearReport struct {
	ID      string `json:"id"`
	TaxYear int    `json:"tax_year"`
	Status  string `json:"status"`

	TotalGains      decimal.Decimal `json:"total_gains"`
	TotalLosses     decimal.Decimal `json:"total_losses"`
	NetGains        decimal.Decimal `json:"net_gains"`
	AnnualExemption decimal.Decimal `json:"annual_exemption"`
	TaxableGains    decimal.Decimal `json:"taxable_gains"`
	TaxRate         decimal.Decimal `json:"tax_rate"`
	TaxDue          decimal.Decimal `json:"tax_due"`

	LossCarryoverUsed      decimal.Decimal `json:"loss_carryover_used"`
	LossCarryoverRemaining decimal.Decimal `json:"loss_carryover_remaining"`

	TotalTransactions   int `json:"total_transactions"`
	TaxableTransactions int `json:"taxable_transactions"`

	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`

	AssetGains []AssetGain `json:"asset_gains"`

	CalculatedAt time.Time `json:"calculated_at"`
}

// MarkFinal moves a draft report to final.
func (r *TaxYearReport) MarkFinal() error {
	if r.Status != ReportStatusDraft {
		return fmt.Errorf("cannot finalize report in status %q", r.Status)
	}
	r.Status = ReportStatusFinal
	return nil
}

// MarkSubmitted moves a final report to submitted.
func (r *TaxYearReport) MarkSubmitted() error {
	if r.Status != ReportStatusFinal {
		return fmt.Errorf("cannot submit report in status %q", r.Status)
	}
	r.Status = ReportStatusSubmitted
	return nil
}

// HasTaxLiability reports whether any tax is due.
func (r *TaxYearReport) HasTaxLiability() bool {
	return r.TaxDue.IsPositive()
}

// TotalUnmatched sums the unmatched disposal quantities across assets.
func (r *TaxYearReport) TotalUnmatched() decimal.Decimal {
	total := decimal.Zero
	for _, ag := range r.AssetGains {
		total = total.Add(ag.Unmatched)
	}
	return total
}

// AssetHolding is one line of a portfolio summary.
type AssetHolding struct {
	Asset         string          `json:"asset"`
	Quantity      decimal.Decimal `json:"quantity"`
	ValueEUR      decimal.Decimal `json:"value_eur"`
	AllocationPct decimal.Decimal `json:"allocation_pct"`
}

// PortfolioSummary is the additive holdings view over a transaction set.
// No lot matching is involved.
type PortfolioSummary struct {
	TotalValueEUR       decimal.Decimal `json:"total_value_eur"`
	Holdings            []AssetHolding  `json:"holdings"`
	TotalTransactions   int             `json:"total_transactions"`
	TaxableTransactions int             `json:"taxable_transactions"`
}
