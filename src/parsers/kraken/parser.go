package kraken

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/cryptocgt/backend/src/logger"
	"github.com/username/cryptocgt/backend/src/models"
)

// KrakenParser handles Kraken trade history exports. Pairs use Kraken's
// legacy asset codes (XXBTZEUR for BTC/EUR) and timestamps are unix seconds
// with a fractional part.
type KrakenParser struct{}

func NewParser() *KrakenParser {
	return &KrakenParser{}
}

func (p *KrakenParser) Parse(file io.Reader) ([]models.Transaction, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols := indexColumns(header)
	for _, required := range []string{"txid", "pair", "time", "type", "price", "vol"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("kraken CSV missing column %q", required)
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

		txID := field(record, cols, "txid")
		asset := pairToAsset(field(record, cols, "pair"))
		if asset == "" {
			logger.L.Warn("Skipping Kraken row with unrecognized pair", "row", rowNum, "pair", field(record, cols, "pair"))
			continue
		}

		quantity, err := decimal.NewFromString(field(record, cols, "vol"))
		if err != nil || quantity.IsZero() {
			logger.L.Warn("Skipping Kraken row with invalid volume", "row", rowNum)
			continue
		}

		action := strings.ToLower(field(record, cols, "type"))
		switch action {
		case models.ActionBuy:
			quantity = quantity.Abs()
		case models.ActionSell:
			quantity = quantity.Abs().Neg()
		default:
			logger.L.Warn("Skipping Kraken row with unsupported type", "row", rowNum, "type", action)
			continue
		}

		price, err := decimal.NewFromString(field(record, cols, "price"))
		if err != nil {
			logger.L.Warn("Skipping Kraken row with invalid price", "row", rowNum)
			continue
		}

		date, err := parseTime(field(record, cols, "time"))
		if err != nil {
			logger.L.Warn("Skipping Kraken row with invalid time", "row", rowNum, "time", field(record, cols, "time"))
			continue
		}

		fee := decimal.Zero
		if raw := field(record, cols, "fee"); raw != "" {
			if parsed, err := decimal.NewFromString(raw); err == nil {
				fee = parsed.Abs()
			}
		}

		transactions = append(transactions, models.Transaction{
			ID:          fmt.Sprintf("kraken_%s", txID),
			Date:        date,
			Exchange:    "kraken",
			Asset:       asset,
			Action:      action,
			Quantity:    quantity,
			PriceEUR:    price,
			Fee:         fee,
			FeeAsset:    "EUR",
			TxID:        txID,
			Source:      models.SourceCSV,
			IsTaxable:   true,
			Description: fmt.Sprintf("Kraken %s %s %s", action, quantity.Abs(), asset),
		})
	}

	return transactions, nil
}

// Kraken's legacy codes for assets that predate its current naming.
var legacyAssets = map[string]string{
	"XBT": "BTC",
	"XDG": "DOGE",
}

// pairToAsset strips the EUR quote side and Kraken's X prefixes from a pair
// code: XXBTZEUR -> BTC, XETHZEUR -> ETH, ADAEUR -> ADA.
func pairToAsset(pair string) string {
	base := strings.TrimSuffix(pair, "ZEUR")
	base = strings.TrimSuffix(base, "EUR")
	if base == "" || base == pair {
		return ""
	}
	if len(base) == 4 && strings.HasPrefix(base, "X") {
		base = base[1:]
	}
	if mapped, ok := legacyAssets[base]; ok {
		return mapped
	}
	return base
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

// parseTime accepts unix seconds with an optional fractional part, which is
// what Kraken's ledger export uses, and falls back to the human-readable
// format some exports carry instead.
func parseTime(value string) (time.Time, error) {
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		sec, frac := math.Modf(seconds)
		return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC(), nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
