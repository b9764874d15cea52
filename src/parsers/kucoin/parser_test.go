package kucoin

import (
	"os"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/cryptocgt/backend/src/config"
	"github.com/username/cryptocgt/backend/src/logger"
	"github.com/username/cryptocgt/backend/src/models"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	config.Cfg = &config.AppConfig{USDTToEURRate: decimal.RequireFromString("0.9")}
	os.Exit(m.Run())
}

func TestParseConvertsUSDTPrices(t *testing.T) {
	csv := `UID,Order ID,Symbol,Order Type,Order Price,Amount,Fee,Fee Currency,Created Time
9001,ORD1,BTC-USDT,buy,40000,0.5,10,USDT,2023-06-01 10:00:00
`
	p := NewParser()
	txs, err := p.Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, txs, 1)

	tx := txs[0]
	assert.Equal(t, "BTC", tx.Asset)
	assert.Equal(t, "kucoin_ORD1", tx.ID)
	assert.Equal(t, "ORD1", tx.TxID)
	assert.True(t, tx.PriceEUR.Equal(decimal.RequireFromString("36000")), "price %s", tx.PriceEUR)
	assert.True(t, tx.Fee.Equal(decimal.RequireFromString("9")), "fee %s", tx.Fee)
	assert.Equal(t, "EUR", tx.FeeAsset)
}

func TestParseEURQuotedPairPassesThrough(t *testing.T) {
	csv := `UID,Order ID,Symbol,Order Type,Order Price,Amount,Fee,Fee Currency,Created Time
9001,ORD2,BTC-EUR,sell,36000,0.25,5,EUR,2023-07-01 10:00:00
`
	p := NewParser()
	txs, err := p.Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, txs, 1)

	tx := txs[0]
	assert.Equal(t, models.ActionSell, tx.Action)
	assert.True(t, tx.Quantity.Equal(decimal.RequireFromString("-0.25")))
	assert.True(t, tx.PriceEUR.Equal(decimal.RequireFromString("36000")))
	assert.True(t, tx.Fee.Equal(decimal.RequireFromString("5")))
}

func TestParseSkipsBadSymbolAndOrderType(t *testing.T) {
	csv := `UID,Order ID,Symbol,Order Type,Order Price,Amount,Fee,Fee Currency,Created Time
9001,ORD3,BTCUSDT,buy,40000,0.5,0,USDT,2023-06-01 10:00:00
9001,ORD4,BTC-USDT,margin,40000,0.5,0,USDT,2023-06-01 10:00:00
9001,ORD5,ETH-USDT,buy,2000,1,0,USDT,2023-06-01 10:00:00
`
	p := NewParser()
	txs, err := p.Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "ETH", txs[0].Asset)
}
