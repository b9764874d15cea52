package services

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/username/cryptocgt/backend/src/models"
)

var (
	ErrParsingFailed           = errors.New("failed to parse transaction file")
	ErrNoTransactions          = errors.New("no transactions found")
	ErrBinanceNotConfigured    = errors.New("binance API is not configured")
	ErrReportNotFound          = errors.New("report not found")
	ErrInvalidStatusTransition = errors.New("invalid report status transition")
)

// ImportSummary describes the outcome of one import run, either a CSV upload
// or an API sync. Duplicates are rows already present for the user.
type ImportSummary struct {
	Source     string `json:"source"`
	Imported   int    `json:"imported"`
	Duplicates int    `json:"duplicates"`
	Total      int    `json:"total"`
}

// ImportService ingests exchange data into a user's transaction history.
type ImportService interface {
	ImportCSV(file io.Reader, userID int64) (*ImportSummary, error)
	SyncBinance(ctx context.Context, userID int64, start, end time.Time) (*ImportSummary, error)
	GetTransactions(userID int64) ([]models.Transaction, error)
	DeleteAllTransactions(userID int64) error
}

// ReportService computes and persists capital gains reports and portfolio
// summaries over a user's transaction history.
type ReportService interface {
	GetTaxYearReport(userID int64, taxYear int) (*models.TaxYearReport, error)
	GetAllReports(userID int64) ([]*models.TaxYearReport, error)
	UpdateReportStatus(userID int64, taxYear int, status string) (*models.TaxYearReport, error)
	GetPortfolio(userID int64, taxYear int) (*models.PortfolioSummary, error)
}
