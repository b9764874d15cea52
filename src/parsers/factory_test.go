package parsers

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
	config.Cfg = &config.AppConfig{USDTToEURRate: decimal.RequireFromString("0.85")}
	os.Exit(m.Run())
}

const revolutCSV = `Type,Product,Started Date,Completed Date,Description,Amount,Currency,Fiat amount,Fiat amount (ex. fees),Fee,Base currency,State,Balance
EXCHANGE,Current,2023-06-01 10:00:00,2023-06-01 10:00:01,Exchanged to BTC,0.5,BTC,15100,15000,100,EUR,COMPLETED,0.5
TOPUP,Current,2023-06-01 09:00:00,2023-06-01 09:00:01,Top-Up by card,500,EUR,500,500,0,EUR,COMPLETED,500
EXCHANGE,Current,2023-07-01 10:00:00,2023-07-01 10:00:01,Exchanged to EUR,-0.25,BTC,8050,8000,50,EUR,COMPLETED,0.25
`

const coinbaseCSV = `Timestamp,Transaction Type,Asset,Quantity Transacted,EUR Spot Price at Transaction,EUR Subtotal,EUR Total (inclusive of fees),EUR Fees,Notes
2023-06-01T10:00:00Z,Buy,BTC,0.5,30000,15000,15010,10,Bought 0.5 BTC
2023-07-01T10:00:00Z,Sell,BTC,0.25,32000,8000,7990,10,Sold 0.25 BTC
`

const krakenCSV = `txid,ordertxid,pair,time,type,ordertype,price,cost,fee,vol
TX1,OX1,XXBTZEUR,1685613600.5,buy,limit,30000,15000,5,0.5
TX2,OX2,XETHZEUR,1688205600.0,sell,market,1800,900,2,0.5
`

const kucoinCSV = `UID,Order ID,Symbol,Order Type,Order Price,Amount,Fee,Fee Currency,Created Time
9001,ORD1,BTC-USDT,buy,35000,0.5,10,USDT,2023-06-01 10:00:00
9001,ORD2,BTC-USDT,sell,36000,0.25,5,USDT,2023-07-01 10:00:00
`

func TestDetectSource(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		want   string
	}{
		{"revolut", []string{"Type", "Product", "Started Date", "Completed Date", "Description", "Amount", "Currency", "Fiat amount", "Fiat amount (ex. fees)", "Fee", "Base currency", "State", "Balance"}, "revolut"},
		{"coinbase", []string{"Timestamp", "Transaction Type", "Asset", "Quantity Transacted", "EUR Spot Price at Transaction"}, "coinbase"},
		{"kucoin", []string{"UID", "Order ID", "Symbol", "Order Type", "Order Price", "Amount", "Created Time"}, "kucoin"},
		{"kraken", []string{"txid", "ordertxid", "pair", "time", "type", "ordertype", "price", "cost", "fee", "vol"}, "kraken"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, err := DetectSource(tt.header)
			require.NoError(t, err)
			assert.Equal(t, tt.want, source)
		})
	}

	t.Run("bom on first column", func(t *testing.T) {
		source, err := DetectSource([]string{"\uFEFFtxid", "pair", "time", "type", "price", "vol"})
		require.NoError(t, err)
		assert.Equal(t, "kraken", source)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := DetectSource([]string{"Date", "Thing", "Stuff"})
		assert.Error(t, err)
	})
}

func TestGetParserUnknownSource(t *testing.T) {
	_, err := GetParser("degiro")
	assert.Error(t, err)
}

func TestDetectAndParseRevolut(t *testing.T) {
	source, txs, err := DetectAndParse(strings.NewReader(revolutCSV))
	require.NoError(t, err)
	assert.Equal(t, "revolut", source)
	require.Len(t, txs, 2)

	buy := txs[0]
	assert.Equal(t, models.ActionBuy, buy.Action)
	assert.Equal(t, "BTC", buy.Asset)
	assert.True(t, buy.Quantity.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, buy.PriceEUR.Equal(decimal.RequireFromString("30000")), "price %s", buy.PriceEUR)
	assert.True(t, buy.Fee.Equal(decimal.RequireFromString("100")))

	sell := txs[1]
	assert.Equal(t, models.ActionSell, sell.Action)
	assert.True(t, sell.Quantity.Equal(decimal.RequireFromString("-0.25")))
	assert.True(t, sell.PriceEUR.Equal(decimal.RequireFromString("32000")), "price %s", sell.PriceEUR)
}

func TestDetectAndParseCoinbase(t *testing.T) {
	source, txs, err := DetectAndParse(strings.NewReader(coinbaseCSV))
	require.NoError(t, err)
	assert.Equal(t, "coinbase", source)
	require.Len(t, txs, 2)

	assert.Equal(t, models.ActionBuy, txs[0].Action)
	assert.True(t, txs[0].Quantity.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, txs[0].PriceEUR.Equal(decimal.RequireFromString("30000")))
	assert.Equal(t, "Bought 0.5 BTC", txs[0].Description)

	assert.Equal(t, models.ActionSell, txs[1].Action)
	assert.True(t, txs[1].Quantity.Equal(decimal.RequireFromString("-0.25")))
}

func TestDetectAndParseKraken(t *testing.T) {
	source, txs, err := DetectAndParse(strings.NewReader(krakenCSV))
	require.NoError(t, err)
	assert.Equal(t, "kraken", source)
	require.Len(t, txs, 2)

	assert.Equal(t, "BTC", txs[0].Asset)
	assert.Equal(t, "kraken_TX1", txs[0].ID)
	assert.Equal(t, 2023, txs[0].Date.Year())
	assert.Equal(t, "ETH", txs[1].Asset)
	assert.True(t, txs[1].Quantity.IsNegative())
}

func TestDetectAndParseKuCoin(t *testing.T) {
	source, txs, err := DetectAndParse(strings.NewReader(kucoinCSV))
	require.NoError(t, err)
	assert.Equal(t, "kucoin", source)
	require.Len(t, txs, 2)

	buy := txs[0]
	assert.Equal(t, "BTC", buy.Asset)
	assert.Equal(t, "kucoin_ORD1", buy.ID)
	// 35000 USDT at the 0.85 fallback rate.
	assert.True(t, buy.PriceEUR.Equal(decimal.RequireFromString("29750")), "price %s", buy.PriceEUR)
	assert.True(t, buy.Fee.Equal(decimal.RequireFromString("8.5")), "fee %s", buy.Fee)
}

func TestDetectAndParseBOMPrefixedFile(t *testing.T) {
	// Exports from Windows tooling often start with a UTF-8 byte order mark.
	source, txs, err := DetectAndParse(strings.NewReader("\ufeff" + krakenCSV))
	require.NoError(t, err)
	assert.Equal(t, "kraken", source)
	require.Len(t, txs, 2)
	assert.Equal(t, "kraken_TX1", txs[0].ID)
}

func TestDetectAndParseEmptyInput(t *testing.T) {
	_, _, err := DetectAndParse(strings.NewReader(""))
	assert.Error(t, err)
}
