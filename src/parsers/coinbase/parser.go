package coinbase

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/cryptocgt/backend/src/logger"
	"github.com/username/cryptocgt/backend/src/models"
)

// CoinbaseParser handles Coinbase transaction history exports. Prices come
// straight from the "EUR Spot Price at Transaction" column so no currency
// conversion is needed.
type CoinbaseParser struct{}

func NewParser() *CoinbaseParser {
	return &CoinbaseParser{}
}

func (p *CoinbaseParser) Parse(file io.Reader) ([]models.Transaction, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols := indexColumns(header)
	for _, required := range []string{"Timestamp", "Transaction Type", "Asset", "Quantity Transacted", "EUR Spot Price at Transaction"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("coinbase CSV missing column %q", required)
		}
	}

	var transactions []models.Transaction
	rowNum := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		rowNum++

		action, sellSide, ok := classify(field(record, cols, "Transaction Type"))
		if !ok {
			logger.L.Warn("Skipping Coinbase row with unsupported type", "row", rowNum, "type", field(record, cols, "Transaction Type"))
			continue
		}

		quantity, err := decimal.NewFromString(field(record, cols, "Quantity Transacted"))
		if err != nil || quantity.IsZero() {
			logger.L.Warn("Skipping Coinbase row with invalid quantity", "row", rowNum)
			continue
		}
		quantity = quantity.Abs()
		if sellSide {
			quantity = quantity.Neg()
		}

		price, err := decimal.NewFromString(field(record, cols, "EUR Spot Price at Transaction"))
		if err != nil {
			logger.L.Warn("Skipping Coinbase row with invalid price", "row", rowNum)
			continue
		}

		date, err := parseTime(field(record, cols, "Timestamp"))
		if err != nil {
			logger.L.Warn("Skipping Coinbase row with invalid timestamp", "row", rowNum, "timestamp", field(record, cols, "Timestamp"))
			continue
		}

		fee := decimal.Zero
		if raw := field(record, cols, "EUR Fees"); raw != "" {
			if parsed, err := decimal.NewFromString(raw); err == nil {
				fee = parsed.Abs()
			}
		}

		asset := field(record, cols, "Asset")
		description := field(record, cols, "Notes")
		if description == "" {
			description = fmt.Sprintf("Coinbase %s %s %s", action, quantity.Abs(), asset)
		}

		taxable := action != models.ActionDeposit && action != models.ActionWithdrawal

		id := fmt.Sprintf("coinbase_%d", rowNum)
		transactions = append(transactions, models.Transaction{
			ID:          id,
			Date:        date,
			Exchange:    "coinbase",
			Asset:       asset,
			Action:      action,
			Quantity:    quantity,
			PriceEUR:    price,
			Fee:         fee,
			FeeAsset:    "EUR",
			TxID:        id,
			Source:      models.SourceCSV,
			IsTaxable:   taxable,
			Description: description,
		})
	}

	return transactions, nil
}

// classify maps a Coinbase transaction type onto a normalized action and
// reports whether the quantity should carry a negative sign.
func classify(txType string) (action string, sellSide, ok bool) {
	switch strings.ToLower(txType) {
	case "buy", "advanced trade buy":
		return models.ActionBuy, false, true
	case "sell", "advanced trade sell":
		return models.ActionSell, true, true
	case "convert":
		return models.ActionSwap, true, true
	case "receive":
		return models.ActionDeposit, false, true
	case "send":
		return models.ActionWithdrawal, true, true
	default:
		return "", false, false
	}
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, col := range header {
		if i == 0 {
			col = strings.TrimPrefix(col, "\uFEFF")
		}
		cols[strings.TrimSpace(col)] = i
	}
	return cols
}

func field(record []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func parseTime(value string) (time.Time, error) {
	if strings.Contains(value, "T") {
		return time.Parse(time.RFC3339, value)
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
