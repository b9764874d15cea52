package revolut

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

// RevolutParser handles Revolut account statement exports. Only EXCHANGE rows
// describe crypto trades; everything else (top-ups, card payments) is skipped.
type RevolutParser struct{}

func NewParser() *RevolutParser {
	return &RevolutParser{}
}

func (p *RevolutParser) Parse(file io.Reader) ([]models.Transaction, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols := indexColumns(header)
	for _, required := range []string{"Type", "Started Date", "Amount", "Currency", "Fiat amount (ex. fees)"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("revolut CSV missing column %q", required)
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

		if field(record, cols, "Type") != "EXCHANGE" {
			continue
		}

		quantity, err := decimal.NewFromString(field(record, cols, "Amount"))
		if err != nil || quantity.IsZero() {
			logger.L.Warn("Skipping Revolut row with invalid amount", "row", rowNum, "amount", field(record, cols, "Amount"))
			continue
		}

		fiatExFees, err := decimal.NewFromString(field(record, cols, "Fiat amount (ex. fees)"))
		if err != nil {
			logger.L.Warn("Skipping Revolut row with invalid fiat amount", "row", rowNum)
			continue
		}

		date, err := parseTime(field(record, cols, "Started Date"))
		if err != nil {
			logger.L.Warn("Skipping Revolut row with invalid date", "row", rowNum, "date", field(record, cols, "Started Date"))
			continue
		}

		// The trade direction comes from the sign of the crypto amount; a
		// positive amount bought the asset, a negative one sold it.
		action := models.ActionBuy
		if quantity.IsNegative() {
			action = models.ActionSell
		}

		price := fiatExFees.Abs().Div(quantity.Abs())

		fee := decimal.Zero
		if raw := field(record, cols, "Fee"); raw != "" {
			if parsed, err := decimal.NewFromString(raw); err == nil {
				fee = parsed.Abs()
			}
		}

		asset := field(record, cols, "Currency")
		description := field(record, cols, "Description")
		if description == "" {
			description = fmt.Sprintf("Revolut %s %s %s", action, quantity.Abs(), asset)
		}

		id := fmt.Sprintf("revolut_%d", rowNum)
		transactions = append(transactions, models.Transaction{
			ID:          id,
			Date:        date,
			Exchange:    "revolut",
			Asset:       asset,
			Action:      action,
			Quantity:    quantity,
			PriceEUR:    price,
			Fee:         fee,
			FeeAsset:    "EUR",
			TxID:        id,
			Source:      models.SourceCSV,
			IsTaxable:   true,
			Description: description,
		})
	}

	return transactions, nil
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
