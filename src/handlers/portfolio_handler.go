package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/username/cryptocgt/backend/src/services"
	"github.com/username/cryptocgt/backend/src/utils"
)

type PortfolioHandler struct {
	reportService services.ReportService
}

func NewPortfolioHandler(reportService services.ReportService) *PortfolioHandler {
	return &PortfolioHandler{reportService: reportService}
}

// HandleGetPortfolio returns the additive holdings summary. An optional
// "year" query parameter restricts it to transactions of that tax year;
// absent means the whole history.
func (h *PortfolioHandler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	taxYear := 0
	if yearParam := r.URL.Query().Get("year"); yearParam != "" {
		parsed, err := strconv.Atoi(yearParam)
		if err != nil {
			utils.SendJSONError(w, fmt.Sprintf("Invalid tax year %q", yearParam), http.StatusBadRequest)
			return
		}
		taxYear = parsed
	}

	summary, err := h.reportService.GetPortfolio(userID, taxYear)
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("Error building portfolio summary for userID %d: %v", userID, err), http.StatusInternalServerError)
		return
	}

	writeJSONWithETag(w, r, userID, summary)
}
