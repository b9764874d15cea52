package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/username/cryptocgt/backend/src/logger"
	"github.com/username/cryptocgt/backend/src/models"
	"github.com/username/cryptocgt/backend/src/services"
	"github.com/username/cryptocgt/backend/src/utils"
)

type TransactionHandler struct {
	importService services.ImportService
}

func NewTransactionHandler(importService services.ImportService) *TransactionHandler {
	return &TransactionHandler{importService: importService}
}

// HandleGetTransactions returns the user's normalized transaction history in
// chronological order.
func (h *TransactionHandler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	txs, err := h.importService.GetTransactions(userID)
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("Error querying transactions for userID %d: %v", userID, err), http.StatusInternalServerError)
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(txs); err != nil {
		logger.L.Error("Error generating JSON response for transactions", "userID", userID, "error", err)
	}
}

// HandleDeleteAllTransactions removes the user's entire imported history.
func (h *TransactionHandler) HandleDeleteAllTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	if err := h.importService.DeleteAllTransactions(userID); err != nil {
		utils.SendJSONError(w, fmt.Sprintf("Error deleting transactions for userID %d: %v", userID, err), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
