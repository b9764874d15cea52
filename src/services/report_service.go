package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/cryptocgt/backend/src/config"
	"github.com/username/cryptocgt/backend/src/database"
	"github.com/username/cryptocgt/backend/src/logger"
	"github.com/username/cryptocgt/backend/src/models"
	"github.com/username/cryptocgt/backend/src/processors"
)

type reportServiceImpl struct {
	cache         *cache.Cache
	importService ImportService
	calculator    processors.CGTProcessor
	portfolio     processors.PortfolioProcessor
}

// NewReportService creates a ReportService backed by the configured tax
// parameters. Transactions are read through the ImportService so both layers
// share one cache.
func NewReportService(cacheInstance *cache.Cache, importService ImportService) ReportService {
	if cacheInstance == nil {
		logger.L.Error("FATAL: NewReportService called with nil cache instance")
		panic("NewReportService requires a non-nil cache instance")
	}
	return &reportServiceImpl{
		cache:         cacheInstance,
		importService: importService,
		calculator: processors.NewCGTCalculator(
			config.Cfg.TaxRate,
			config.Cfg.AnnualExemption,
			config.Cfg.FiscalYearStartMonth,
			config.Cfg.FiscalYearStartDay,
		),
		portfolio: processors.NewPortfolioProcessor(),
	}
}

func (s *reportServiceImpl) GetAllReports(userID int64) ([]*models.TaxYearReport, error) {
	cacheKey := fmt.Sprintf(reportsCacheKeyFormat, userID)
	if cached, found := s.cache.Get(cacheKey); found {
		if reports, ok := cached.([]*models.TaxYearReport); ok {
			logger.L.Debug("Cache hit for user reports", "userID", userID)
			return reports, nil
		}
		logger.L.Warn("Invalid data type in reports cache, recalculating", "userID", userID)
		s.cache.Delete(cacheKey)
	}

	txs, err := s.importService.GetTransactions(userID)
	if err != nil {
		return nil, err
	}

	reports, err := s.calculator.CalculateAllYears(txs)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate reports for user %d: %w", userID, err)
	}

	statuses, err := storedReportStatuses(userID)
	if err != nil {
		return nil, err
	}
	for _, report := range reports {
		if status, ok := statuses[report.TaxYear]; ok {
			report.Status = status
		}
		if err := persistReport(userID, report); err != nil {
			return nil, err
		}
	}

	s.cache.Set(cacheKey, reports, DefaultCacheExpiration)
	return reports, nil
}

func (s *reportServiceImpl) GetTaxYearReport(userID int64, taxYear int) (*models.TaxYearReport, error) {
	reports, err := s.GetAllReports(userID)
	if err != nil {
		return nil, err
	}
	for _, report := range reports {
		if report.TaxYear == taxYear {
			return report, nil
		}
	}
	return nil, fmt.Errorf("%w: user %d has no activity in tax year %d", ErrReportNotFound, userID, taxYear)
}

func (s *reportServiceImpl) UpdateReportStatus(userID int64, taxYear int, status string) (*models.TaxYearReport, error) {
	report, err := s.GetTaxYearReport(userID, taxYear)
	if err != nil {
		return nil, err
	}

	switch status {
	case models.ReportStatusFinal:
		err = report.MarkFinal()
	case models.ReportStatusSubmitted:
		err = report.MarkSubmitted()
	default:
		err = fmt.Errorf("unknown target status %q", status)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStatusTransition, err)
	}

	if err := persistReport(userID, report); err != nil {
		return nil, err
	}

	// Cached reports hold stale statuses now.
	s.cache.Delete(fmt.Sprintf(reportsCacheKeyFormat, userID))
	logger.L.Info("Report status updated",
		"userID", userID, "taxYear", taxYear, "status", report.Status)
	return report, nil
}

func (s *reportServiceImpl) GetPortfolio(userID int64, taxYear int) (*models.PortfolioSummary, error) {
	cacheKey := fmt.Sprintf(portfolioCacheKeyFormat, userID, taxYear)
	if cached, found := s.cache.Get(cacheKey); found {
		if summary, ok := cached.(*models.PortfolioSummary); ok {
			logger.L.Debug("Cache hit for user portfolio", "userID", userID, "taxYear", taxYear)
			return summary, nil
		}
		logger.L.Warn("Invalid data type in portfolio cache, recalculating", "userID", userID)
		s.cache.Delete(cacheKey)
	}

	txs, err := s.importService.GetTransactions(userID)
	if err != nil {
		return nil, err
	}

	summary := s.portfolio.Summarize(txs, taxYear)
	s.cache.Set(cacheKey, summary, DefaultCacheExpiration)
	return summary, nil
}

// storedReportStatuses returns the persisted status per tax year so freshly
// recalculated figures never reset a finalized or submitted report to draft.
func storedReportStatuses(userID int64) (map[int]string, error) {
	rows, err := database.DB.Query(`SELECT tax_year, status FROM cgt_reports WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query report statuses for user %d: %w", userID, err)
	}
	defer rows.Close()

	statuses := make(map[int]string)
	for rows.Next() {
		var (
			taxYear int
			status  string
		)
		if err := rows.Scan(&taxYear, &status); err != nil {
			return nil, fmt.Errorf("failed to scan report status row: %w", err)
		}
		statuses[taxYear] = status
	}
	return statuses, rows.Err()
}

// persistReport upserts the report payload for the user's tax year.
func persistReport(userID int64, report *models.TaxYearReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report for tax year %d: %w", report.TaxYear, err)
	}

	_, err = database.DB.Exec(`
		INSERT INTO cgt_reports (user_id, report_id, tax_year, status, payload, calculated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, tax_year) DO UPDATE SET
			report_id = excluded.report_id,
			status = excluded.status,
			payload = excluded.payload,
			calculated_at = excluded.calculated_at,
			updated_at = CURRENT_TIMESTAMP`,
		userID, report.ID, report.TaxYear, report.Status, string(payload),
		report.CalculatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to persist report for user %d tax year %d: %w", userID, report.TaxYear, err)
	}
	return nil
}
