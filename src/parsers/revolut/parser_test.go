package revolut

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/cryptocgt/backend/src/logger"
	"github.com/username/cryptocgt/backend/src/models"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

func TestParseDerivesActionFromSign(t *testing.T) {
	csv := `Type,Product,Started Date,Amount,Currency,Fiat amount (ex. fees),Fee,Description
EXCHANGE,Current,2023-06-01 10:00:00,2,ETH,3600,5,Exchanged to ETH
EXCHANGE,Current,2023-07-01 10:00:00,-1,ETH,2000,3,Exchanged to EUR
`
	p := NewParser()
	txs, err := p.Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, txs, 2)

	buy := txs[0]
	assert.Equal(t, models.ActionBuy, buy.Action)
	assert.True(t, buy.Quantity.Equal(decimal.RequireFromString("2")))
	assert.True(t, buy.PriceEUR.Equal(decimal.RequireFromString("1800")), "price %s", buy.PriceEUR)
	assert.Equal(t, time.Date(2023, time.June, 1, 10, 0, 0, 0, time.UTC), buy.Date)

	sell := txs[1]
	assert.Equal(t, models.ActionSell, sell.Action)
	assert.True(t, sell.Quantity.Equal(decimal.RequireFromString("-1")))
	assert.True(t, sell.PriceEUR.Equal(decimal.RequireFromString("2000")))
}

func TestParseSkipsNonExchangeAndBadRows(t *testing.T) {
	csv := `Type,Product,Started Date,Amount,Currency,Fiat amount (ex. fees),Fee,Description
TOPUP,Current,2023-06-01 09:00:00,500,EUR,500,0,Top-Up
EXCHANGE,Current,2023-06-01 10:00:00,not-a-number,BTC,15000,0,Broken row
EXCHANGE,Current,2023-06-01 11:00:00,0.5,BTC,15000,0,Good row
`
	p := NewParser()
	txs, err := p.Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "BTC", txs[0].Asset)
	assert.Equal(t, models.SourceCSV, txs[0].Source)
	assert.Equal(t, 0, txs[0].TaxYear)
}

func TestParseRFC3339Timestamps(t *testing.T) {
	csv := `Type,Product,Started Date,Amount,Currency,Fiat amount (ex. fees),Fee,Description
EXCHANGE,Current,2023-06-01T10:00:00Z,0.5,BTC,15000,0,ISO timestamp
`
	p := NewParser()
	txs, err := p.Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, time.Date(2023, time.June, 1, 10, 0, 0, 0, time.UTC), txs[0].Date)
}
