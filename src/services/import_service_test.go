package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/cryptocgt/backend/src/config"
	"github.com/username/cryptocgt/backend/src/database"
	"github.com/username/cryptocgt/backend/src/logger"
	"github.com/username/cryptocgt/backend/src/models"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	config.Cfg = &config.AppConfig{
		TaxRate:              decimal.RequireFromString("0.33"),
		AnnualExemption:      decimal.RequireFromString("1270"),
		FiscalYearStartMonth: time.April,
		FiscalYearStartDay:   6,
		USDTToEURRate:        decimal.RequireFromString("0.85"),
	}

	dbPath := filepath.Join(os.TempDir(), fmt.Sprintf("cryptocgt_services_test_%d.db", time.Now().UnixNano()))
	database.InitDB(dbPath)

	code := m.Run()
	database.DB.Close()
	os.Remove(dbPath)
	os.Exit(code)
}

func newTestImportService() ImportService {
	return NewImportService(cache.New(DefaultCacheExpiration, CacheCleanupInterval), nil)
}

// krakenTradesCSV has two buys and one sell of BTC in the 2023 Irish tax year.
const krakenTradesCSV = `txid,ordertxid,pair,time,type,ordertype,price,cost,fee,vol
T1,O1,XXBTZEUR,2023-05-10 10:00:00,buy,limit,20000,10000,10,0.5
T2,O2,XXBTZEUR,2023-06-15 10:00:00,buy,limit,24000,6000,6,0.25
T3,O3,XXBTZEUR,2023-08-20 10:00:00,sell,limit,30000,9000,9,0.3
`

func TestImportCSVAndFetch(t *testing.T) {
	svc := newTestImportService()
	userID := int64(101)

	summary, err := svc.ImportCSV(strings.NewReader(krakenTradesCSV), userID)
	require.NoError(t, err)
	assert.Equal(t, "kraken", summary.Source)
	assert.Equal(t, 3, summary.Imported)
	assert.Equal(t, 0, summary.Duplicates)
	assert.Equal(t, 3, summary.Total)

	txs, err := svc.GetTransactions(userID)
	require.NoError(t, err)
	require.Len(t, txs, 3)

	// Stored decimals survive the TEXT roundtrip exactly.
	assert.True(t, txs[0].Quantity.Equal(decimal.RequireFromString("0.5")), "got %s", txs[0].Quantity)
	assert.True(t, txs[0].PriceEUR.Equal(decimal.RequireFromString("20000")))
	assert.Equal(t, "BTC", txs[0].Asset)
	assert.Equal(t, "kraken", txs[0].Exchange)

	// Fiscal years were assigned on import (May 2023 is inside the year
	// starting 6 April 2023).
	for _, tx := range txs {
		assert.Equal(t, 2023, tx.TaxYear)
	}

	// The sell carries a negative quantity.
	assert.True(t, txs[2].Quantity.IsNegative())
}

func TestImportCSVDeduplicatesOnReimport(t *testing.T) {
	svc := newTestImportService()
	userID := int64(102)

	first, err := svc.ImportCSV(strings.NewReader(krakenTradesCSV), userID)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Imported)

	second, err := svc.ImportCSV(strings.NewReader(krakenTradesCSV), userID)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, 3, second.Duplicates)
	assert.Equal(t, 3, second.Total)

	txs, err := svc.GetTransactions(userID)
	require.NoError(t, err)
	assert.Len(t, txs, 3)
}

func TestImportCSVRejectsGarbage(t *testing.T) {
	svc := newTestImportService()

	_, err := svc.ImportCSV(strings.NewReader("this,is,not\na,known,format\n"), int64(103))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParsingFailed)
}

func TestSyncBinanceUnconfigured(t *testing.T) {
	svc := newTestImportService()

	_, err := svc.SyncBinance(context.Background(), int64(104), time.Now().Add(-time.Hour), time.Now())
	assert.ErrorIs(t, err, ErrBinanceNotConfigured)
}

func TestDeleteAllTransactions(t *testing.T) {
	svc := newTestImportService()
	userID := int64(105)

	_, err := svc.ImportCSV(strings.NewReader(krakenTradesCSV), userID)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAllTransactions(userID))

	txs, err := svc.GetTransactions(userID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestPrepareTransactionsSanitizesDescriptions(t *testing.T) {
	txs := []models.Transaction{{
		ID:          "kraken_T1",
		Date:        time.Date(2023, time.May, 10, 10, 0, 0, 0, time.UTC),
		Asset:       "BTC",
		Action:      models.ActionBuy,
		Quantity:    decimal.RequireFromString("0.5"),
		Description: "=cmd()\x00payload",
	}}

	prepareTransactions(txs)
	assert.Equal(t, "'=cmd()payload", txs[0].Description)
	assert.Equal(t, 2023, txs[0].TaxYear)
}
