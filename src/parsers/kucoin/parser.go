package kucoin

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/cryptocgt/backend/src/config"
	"github.com/username/cryptocgt/backend/src/logger"
	"github.com/username/cryptocgt/backend/src/models"
)

// KuCoinParser handles KuCoin filled-order exports. KuCoin quotes most pairs
// in USDT, so prices and USDT fees are converted to EUR with the configured
// fallback rate.
type KuCoinParser struct{}

func NewParser() *KuCoinParser {
	return &KuCoinParser{}
}

func (p *KuCoinParser) Parse(file io.Reader) ([]models.Transaction, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols := indexColumns(header)
	for _, required := range []string{"UID", "Order Type", "Symbol", "Amount", "Order Price", "Created Time"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("kucoin CSV missing column %q", required)
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

		symbol := field(record, cols, "Symbol")
		baseAsset, quoteAsset, ok := strings.Cut(symbol, "-")
		if !ok || baseAsset == "" {
			logger.L.Warn("Skipping KuCoin row with invalid symbol", "row", rowNum, "symbol", symbol)
			continue
		}

		quantity, err := decimal.NewFromString(field(record, cols, "Amount"))
		if err != nil || quantity.IsZero() {
			logger.L.Warn("Skipping KuCoin row with invalid amount", "row", rowNum)
			continue
		}

		action := strings.ToLower(field(record, cols, "Order Type"))
		switch action {
		case models.ActionBuy:
			quantity = quantity.Abs()
		case models.ActionSell:
			quantity = quantity.Abs().Neg()
		default:
			logger.L.Warn("Skipping KuCoin row with unsupported order type", "row", rowNum, "orderType", action)
			continue
		}

		price, err := decimal.NewFromString(field(record, cols, "Order Price"))
		if err != nil {
			logger.L.Warn("Skipping KuCoin row with invalid price", "row", rowNum)
			continue
		}
		price = toEUR(price, quoteAsset)

		date, err := time.Parse("2006-01-02 15:04:05", field(record, cols, "Created Time"))
		if err != nil {
			logger.L.Warn("Skipping KuCoin row with invalid time", "row", rowNum, "time", field(record, cols, "Created Time"))
			continue
		}

		fee := decimal.Zero
		if raw := field(record, cols, "Fee"); raw != "" {
			if parsed, err := decimal.NewFromString(raw); err == nil {
				feeCurrency := field(record, cols, "Fee Currency")
				if feeCurrency == "" {
					feeCurrency = "USDT"
				}
				fee = toEUR(parsed.Abs(), feeCurrency)
			}
		}

		// The UID column holds the account ID, identical on every row, so
		// the order ID is the only usable per-row identifier.
		txID := field(record, cols, "Order ID")
		if txID == "" {
			txID = fmt.Sprintf("%d", rowNum)
		}

		transactions = append(transactions, models.Transaction{
			ID:          fmt.Sprintf("kucoin_%s", txID),
			Date:        date,
			Exchange:    "kucoin",
			Asset:       baseAsset,
			Action:      action,
			Quantity:    quantity,
			PriceEUR:    price,
			Fee:         fee,
			FeeAsset:    "EUR",
			TxID:        txID,
			Source:      models.SourceCSV,
			IsTaxable:   true,
			Description: fmt.Sprintf("KuCoin %s %s %s", action, quantity.Abs(), baseAsset),
		})
	}

	return transactions, nil
}

func toEUR(amount decimal.Decimal, currency string) decimal.Decimal {
	switch strings.ToUpper(currency) {
	case "USDT", "USD", "USDC":
		return amount.Mul(config.Cfg.USDTToEURRate)
	default:
		return amount
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
