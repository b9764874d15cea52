package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/username/cryptocgt/backend/src/logger"
	"github.com/username/cryptocgt/backend/src/services"
	"github.com/username/cryptocgt/backend/src/utils"
)

type BinanceHandler struct {
	importService services.ImportService
}

func NewBinanceHandler(importService services.ImportService) *BinanceHandler {
	return &BinanceHandler{importService: importService}
}

// HandleSync pulls trades, deposits and withdrawals from the configured
// Binance account and imports them for the authenticated user. The optional
// request body narrows the time window; it defaults to the last three months.
func (h *BinanceHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	var requestBody struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
			utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	end := time.Now().UTC()
	if requestBody.EndDate != "" {
		parsed, err := parseSyncDate(requestBody.EndDate)
		if err != nil {
			utils.SendJSONError(w, fmt.Sprintf("Invalid end_date %q", requestBody.EndDate), http.StatusBadRequest)
			return
		}
		end = parsed
	}

	start := end.AddDate(0, -3, 0)
	if requestBody.StartDate != "" {
		parsed, err := parseSyncDate(requestBody.StartDate)
		if err != nil {
			utils.SendJSONError(w, fmt.Sprintf("Invalid start_date %q", requestBody.StartDate), http.StatusBadRequest)
			return
		}
		start = parsed
	}

	if !start.Before(end) {
		utils.SendJSONError(w, "start_date must be before end_date", http.StatusBadRequest)
		return
	}

	summary, err := h.importService.SyncBinance(r.Context(), userID, start, end)
	if err != nil {
		if errors.Is(err, services.ErrBinanceNotConfigured) {
			utils.SendJSONError(w, "Binance API credentials are not configured on this server", http.StatusServiceUnavailable)
			return
		}
		logger.L.Error("Binance sync request failed", "userID", userID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Binance sync failed: %v", err), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		logger.L.Error("Error encoding JSON response for binance sync", "userID", userID, "error", err)
	}
}

// parseSyncDate accepts either a full RFC 3339 timestamp or a bare date.
func parseSyncDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
