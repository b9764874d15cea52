package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"database/sql"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/cryptocgt/backend/src/binance"
	"github.com/username/cryptocgt/backend/src/config"
	"github.com/username/cryptocgt/backend/src/database"
	"github.com/username/cryptocgt/backend/src/logger"
	"github.com/username/cryptocgt/backend/src/models"
	"github.com/username/cryptocgt/backend/src/parsers"
	"github.com/username/cryptocgt/backend/src/processors"
	"github.com/username/cryptocgt/backend/src/security/validation"
)

const (
	transactionsCacheKeyFormat = "res_transactions_user_%d"
	reportsCacheKeyFormat      = "res_cgt_reports_user_%d"
	portfolioCacheKeyFormat    = "res_portfolio_user_%d_year_%d"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

type importServiceImpl struct {
	cache       *cache.Cache
	binanceSync *binance.SyncService
}

// NewImportService creates an ImportService. binanceSync may be nil when no
// API credentials are configured; SyncBinance then fails with
// ErrBinanceNotConfigured.
func NewImportService(cacheInstance *cache.Cache, binanceSync *binance.SyncService) ImportService {
	if cacheInstance == nil {
		logger.L.Error("FATAL: NewImportService called with nil cache instance")
		panic("NewImportService requires a non-nil cache instance")
	}
	return &importServiceImpl{
		cache:       cacheInstance,
		binanceSync: binanceSync,
	}
}

func (s *importServiceImpl) ImportCSV(file io.Reader, userID int64) (*ImportSummary, error) {
	source, txs, err := parsers.DetectAndParse(file)
	if err != nil {
		logger.L.Error("CSV parsing failed during import", "userID", userID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	if len(txs) == 0 {
		return nil, ErrNoTransactions
	}

	prepareTransactions(txs)

	imported, duplicates, err := insertTransactions(userID, txs)
	if err != nil {
		return nil, fmt.Errorf("failed to store transactions for user %d: %w", userID, err)
	}

	s.invalidateUserCache(userID)
	logger.L.Info("CSV import completed",
		"userID", userID, "source", source, "imported", imported, "duplicates", duplicates)

	return &ImportSummary{
		Source:     source,
		Imported:   imported,
		Duplicates: duplicates,
		Total:      len(txs),
	}, nil
}

func (s *importServiceImpl) SyncBinance(ctx context.Context, userID int64, start, end time.Time) (*ImportSummary, error) {
	if s.binanceSync == nil {
		return nil, ErrBinanceNotConfigured
	}

	txs, err := s.binanceSync.SyncTransactions(ctx, start, end)
	if err != nil {
		logger.L.Error("Binance sync failed", "userID", userID, "error", err)
		return nil, fmt.Errorf("binance sync failed for user %d: %w", userID, err)
	}
	if len(txs) == 0 {
		logger.L.Info("Binance sync returned no transactions", "userID", userID)
		return &ImportSummary{Source: "binance"}, nil
	}

	prepareTransactions(txs)

	imported, duplicates, err := insertTransactions(userID, txs)
	if err != nil {
		return nil, fmt.Errorf("failed to store synced transactions for user %d: %w", userID, err)
	}

	s.invalidateUserCache(userID)
	logger.L.Info("Binance sync completed",
		"userID", userID, "imported", imported, "duplicates", duplicates)

	return &ImportSummary{
		Source:     "binance",
		Imported:   imported,
		Duplicates: duplicates,
		Total:      len(txs),
	}, nil
}

func (s *importServiceImpl) GetTransactions(userID int64) ([]models.Transaction, error) {
	cacheKey := fmt.Sprintf(transactionsCacheKeyFormat, userID)
	if cached, found := s.cache.Get(cacheKey); found {
		if txs, ok := cached.([]models.Transaction); ok {
			logger.L.Debug("Cache hit for user transactions", "userID", userID)
			return txs, nil
		}
		logger.L.Warn("Invalid data type in transactions cache, refetching", "userID", userID)
		s.cache.Delete(cacheKey)
	}

	txs, err := fetchUserTransactions(userID)
	if err != nil {
		return nil, err
	}

	s.cache.Set(cacheKey, txs, DefaultCacheExpiration)
	return txs, nil
}

func (s *importServiceImpl) DeleteAllTransactions(userID int64) error {
	_, err := database.DB.Exec(`DELETE FROM transactions WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete transactions for user %d: %w", userID, err)
	}
	s.invalidateUserCache(userID)
	logger.L.Info("Deleted all transactions for user", "userID", userID)
	return nil
}

// invalidateUserCache drops every cached result derived from the user's
// transaction history.
func (s *importServiceImpl) invalidateUserCache(userID int64) {
	s.cache.Delete(fmt.Sprintf(transactionsCacheKeyFormat, userID))
	s.cache.Delete(fmt.Sprintf(reportsCacheKeyFormat, userID))
	portfolioPrefix := fmt.Sprintf("res_portfolio_user_%d_year_", userID)
	for key := range s.cache.Items() {
		if strings.HasPrefix(key, portfolioPrefix) {
			s.cache.Delete(key)
		}
	}
	logger.L.Debug("Invalidated caches for user", "userID", userID)
}

// prepareTransactions assigns fiscal years and sanitizes free-text fields
// before storage.
func prepareTransactions(txs []models.Transaction) {
	for i := range txs {
		txs[i].TaxYear = processors.AssignTaxYear(
			txs[i].Date, config.Cfg.FiscalYearStartMonth, config.Cfg.FiscalYearStartDay)
		txs[i].Description = validation.SanitizeForFormulaInjection(
			validation.StripUnprintable(txs[i].Description))
	}
}

// insertTransactions writes the batch inside one database transaction. Rows
// already present for the user (same tx_key) are counted as duplicates and
// skipped; any other failure aborts the whole batch.
func insertTransactions(userID int64, txs []models.Transaction) (imported, duplicates int, err error) {
	dbTx, err := database.DB.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin database transaction: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.Prepare(`
		INSERT INTO transactions
		(user_id, tx_key, date, exchange, asset, action, quantity, price_eur, fee, fee_asset, tx_id, source, is_taxable, tax_year, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for _, t := range txs {
		_, execErr := stmt.Exec(
			userID,
			t.ID,
			t.Date.UTC().Format(time.RFC3339Nano),
			t.Exchange,
			t.Asset,
			t.Action,
			t.Quantity.String(),
			t.PriceEUR.String(),
			t.Fee.String(),
			t.FeeAsset,
			t.TxID,
			t.Source,
			t.IsTaxable,
			t.TaxYear,
			t.Description,
		)
		if execErr != nil {
			if strings.Contains(strings.ToLower(execErr.Error()), "unique constraint failed") {
				duplicates++
				continue
			}
			return 0, 0, fmt.Errorf("failed to insert transaction %s: %w", t.ID, execErr)
		}
		imported++
	}

	if err := dbTx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit transaction batch: %w", err)
	}
	return imported, duplicates, nil
}

func fetchUserTransactions(userID int64) ([]models.Transaction, error) {
	rows, err := database.DB.Query(`
		SELECT tx_key, date, exchange, asset, action, quantity, price_eur, fee, fee_asset, tx_id, source, is_taxable, tax_year, description
		FROM transactions
		WHERE user_id = ?
		ORDER BY date ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions for user %d: %w", userID, err)
	}
	defer rows.Close()

	txs := make([]models.Transaction, 0)
	for rows.Next() {
		var (
			t           models.Transaction
			dateStr     string
			quantityStr string
			priceStr    string
			feeStr      string
			feeAsset    sql.NullString
			txID        sql.NullString
			description sql.NullString
		)
		err := rows.Scan(
			&t.ID, &dateStr, &t.Exchange, &t.Asset, &t.Action,
			&quantityStr, &priceStr, &feeStr, &feeAsset, &txID,
			&t.Source, &t.IsTaxable, &t.TaxYear, &description,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}

		t.Date, err = time.Parse(time.RFC3339Nano, dateStr)
		if err != nil {
			return nil, fmt.Errorf("invalid stored date %q for transaction %s: %w", dateStr, t.ID, err)
		}
		t.Quantity, err = decimal.NewFromString(quantityStr)
		if err != nil {
			return nil, fmt.Errorf("invalid stored quantity %q for transaction %s: %w", quantityStr, t.ID, err)
		}
		t.PriceEUR, err = decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("invalid stored price %q for transaction %s: %w", priceStr, t.ID, err)
		}
		t.Fee, err = decimal.NewFromString(feeStr)
		if err != nil {
			return nil, fmt.Errorf("invalid stored fee %q for transaction %s: %w", feeStr, t.ID, err)
		}
		t.FeeAsset = feeAsset.String
		t.TxID = txID.String
		t.Description = description.String

		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return txs, nil
}
