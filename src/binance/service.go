package binance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/cryptocgt/backend/src/logger"
	"github.com/username/cryptocgt/backend/src/models"
)

// Quote currencies Binance pairs end in, checked longest first so that
// BTCUSDT resolves to BTC and not BTCUSD+T.
var quoteSuffixes = []string{"USDT", "USDC", "BUSD", "EUR"}

// SyncService pulls an account's history from Binance and normalizes it into
// transactions. Trades become buys and sells; deposits and withdrawals become
// non-taxable custody moves.
type SyncService struct {
	client        *Client
	symbols       []string
	usdtToEURRate decimal.Decimal
}

func NewSyncService(client *Client, symbols []string, usdtToEURRate decimal.Decimal) *SyncService {
	return &SyncService{
		client:        client,
		symbols:       symbols,
		usdtToEURRate: usdtToEURRate,
	}
}

// SyncTransactions fetches trades for every configured symbol plus the
// deposit and withdrawal history inside the window. A symbol the account
// never traded yields an empty page, not an error.
func (s *SyncService) SyncTransactions(ctx context.Context, start, end time.Time) ([]models.Transaction, error) {
	logger.L.Info("Starting Binance sync", "symbols", s.symbols, "start", start, "end", end)

	if err := s.client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("binance connectivity check failed: %w", err)
	}

	var transactions []models.Transaction

	for _, symbol := range s.symbols {
		trades, err := s.client.MyTrades(ctx, symbol, start, end)
		if err != nil {
			return nil, err
		}
		for _, trade := range trades {
			transactions = append(transactions, s.normalizeTrade(trade))
		}
	}

	deposits, err := s.client.DepositHistory(ctx, start, end)
	if err != nil {
		return nil, err
	}
	for _, deposit := range deposits {
		transactions = append(transactions, s.normalizeDeposit(deposit))
	}

	withdrawals, err := s.client.WithdrawalHistory(ctx, start, end)
	if err != nil {
		return nil, err
	}
	for _, withdrawal := range withdrawals {
		tx, err := s.normalizeWithdrawal(withdrawal)
		if err != nil {
			logger.L.Warn("Skipping Binance withdrawal", "id", withdrawal.ID, "error", err)
			continue
		}
		transactions = append(transactions, tx)
	}

	logger.L.Info("Binance sync complete", "transactionCount", len(transactions))
	return transactions, nil
}

func (s *SyncService) normalizeTrade(trade Trade) models.Transaction {
	baseAsset, quoteAsset := splitSymbol(trade.Symbol)

	action := models.ActionBuy
	quantity := trade.Qty.Abs()
	if !trade.IsBuyer {
		action = models.ActionSell
		quantity = quantity.Neg()
	}

	price := s.toEUR(trade.Price, quoteAsset)
	fee, feeAsset := s.convert(trade.Commission, trade.CommissionAsset)

	return models.Transaction{
		ID:          fmt.Sprintf("binance_%d", trade.ID),
		Date:        time.UnixMilli(trade.Time).UTC(),
		Exchange:    "binance",
		Asset:       baseAsset,
		Action:      action,
		Quantity:    quantity,
		PriceEUR:    price,
		Fee:         fee,
		FeeAsset:    feeAsset,
		TxID:        fmt.Sprintf("%d", trade.ID),
		Source:      models.SourceAPI,
		IsTaxable:   true,
		Description: fmt.Sprintf("Binance %s %s %s", action, quantity.Abs(), baseAsset),
	}
}

// Deposits carry no EUR price: custody moves never enter the gain
// computation, so valuing them would only invite confusion.
func (s *SyncService) normalizeDeposit(deposit Deposit) models.Transaction {
	return models.Transaction{
		ID:          fmt.Sprintf("binance_deposit_%s", deposit.TxID),
		Date:        time.UnixMilli(deposit.InsertTime).UTC(),
		Exchange:    "binance",
		Asset:       deposit.Coin,
		Action:      models.ActionDeposit,
		Quantity:    deposit.Amount.Abs(),
		PriceEUR:    decimal.Zero,
		Fee:         decimal.Zero,
		FeeAsset:    "EUR",
		TxID:        deposit.TxID,
		Source:      models.SourceAPI,
		IsTaxable:   false,
		Description: fmt.Sprintf("Binance deposit %s %s", deposit.Amount.Abs(), deposit.Coin),
	}
}

func (s *SyncService) normalizeWithdrawal(withdrawal Withdrawal) (models.Transaction, error) {
	date, err := time.Parse("2006-01-02 15:04:05", withdrawal.ApplyTime)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("invalid applyTime %q: %w", withdrawal.ApplyTime, err)
	}

	return models.Transaction{
		ID:          fmt.Sprintf("binance_withdrawal_%s", withdrawal.ID),
		Date:        date,
		Exchange:    "binance",
		Asset:       withdrawal.Coin,
		Action:      models.ActionWithdrawal,
		Quantity:    withdrawal.Amount.Abs().Neg(),
		PriceEUR:    decimal.Zero,
		Fee:         withdrawal.TransactionFee,
		FeeAsset:    withdrawal.Coin,
		TxID:        withdrawal.TxID,
		Source:      models.SourceAPI,
		IsTaxable:   false,
		Description: fmt.Sprintf("Binance withdrawal %s %s", withdrawal.Amount.Abs(), withdrawal.Coin),
	}, nil
}

func (s *SyncService) toEUR(amount decimal.Decimal, currency string) decimal.Decimal {
	converted, _ := s.convert(amount, currency)
	return converted
}

// convert translates dollar-pegged amounts into EUR at the configured rate.
// Anything else (a base-asset commission like BTC, or BNB fee discounts)
// passes through unconverted, labeled with its own currency.
func (s *SyncService) convert(amount decimal.Decimal, currency string) (decimal.Decimal, string) {
	upper := strings.ToUpper(currency)
	switch upper {
	case "USDT", "USD", "USDC", "BUSD":
		return amount.Mul(s.usdtToEURRate), "EUR"
	case "EUR":
		return amount, "EUR"
	default:
		return amount, upper
	}
}

func splitSymbol(symbol string) (base, quote string) {
	for _, suffix := range quoteSuffixes {
		if strings.HasSuffix(symbol, suffix) && len(symbol) > len(suffix) {
			return strings.TrimSuffix(symbol, suffix), suffix
		}
	}
	return symbol, ""
}
