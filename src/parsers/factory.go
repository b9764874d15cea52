package parsers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/username/cryptocgt/backend/src/models"
	"github.com/username/cryptocgt/backend/src/parsers/coinbase"
	"github.com/username/cryptocgt/backend/src/parsers/kraken"
	"github.com/username/cryptocgt/backend/src/parsers/kucoin"
	"github.com/username/cryptocgt/backend/src/parsers/revolut"
)

// Header signatures used to recognize an exchange export. Detection checks
// them in order and picks the first format whose required columns are all
// present.
var signatures = []struct {
	source  string
	columns []string
}{
	{"revolut", []string{"Type", "Product", "Started Date", "Amount", "Currency"}},
	{"coinbase", []string{"Timestamp", "Transaction Type", "Asset", "Quantity Transacted"}},
	{"kucoin", []string{"UID", "Order Type", "Symbol", "Amount", "Order Price"}},
	{"kraken", []string{"txid", "pair", "time", "type", "price", "vol"}},
}

func GetParser(source string) (Parser, error) {
	switch source {
	case "revolut":
		return revolut.NewParser(), nil
	case "coinbase":
		return coinbase.NewParser(), nil
	case "kucoin":
		return kucoin.NewParser(), nil
	case "kraken":
		return kraken.NewParser(), nil
	default:
		return nil, fmt.Errorf("no parser available for source: %s", source)
	}
}

// DetectSource identifies the exchange from a CSV header row.
func DetectSource(header []string) (string, error) {
	present := make(map[string]bool, len(header))
	for i, col := range header {
		if i == 0 {
			col = strings.TrimPrefix(col, "\uFEFF")
		}
		present[strings.TrimSpace(col)] = true
	}

	for _, sig := range signatures {
		matched := true
		for _, col := range sig.columns {
			if !present[col] {
				matched = false
				break
			}
		}
		if matched {
			return sig.source, nil
		}
	}
	return "", fmt.Errorf("unsupported CSV format: no known exchange matches columns %v", header)
}

// DetectAndParse reads the file once, detects the exchange from its header
// and runs the matching parser over the full content.
func DetectAndParse(file io.Reader) (string, []models.Transaction, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read CSV content: %w", err)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return "", nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	source, err := DetectSource(header)
	if err != nil {
		return "", nil, err
	}

	parser, err := GetParser(source)
	if err != nil {
		return "", nil, err
	}

	transactions, err := parser.Parse(bytes.NewReader(data))
	if err != nil {
		return source, nil, err
	}
	return source, transactions, nil
}
