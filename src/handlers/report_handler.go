package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/username/cryptocgt/backend/src/logger"
	"github.com/username/cryptocgt/backend/src/services"
	"github.com/username/cryptocgt/backend/src/utils"
)

type ReportHandler struct {
	reportService services.ReportService
}

func NewReportHandler(reportService services.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

// HandleGetTaxYearReport returns the capital gains report for one tax year,
// selected by the required "year" query parameter.
func (h *ReportHandler) HandleGetTaxYearReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	yearParam := r.URL.Query().Get("year")
	if yearParam == "" {
		utils.SendJSONError(w, "Query parameter 'year' is required", http.StatusBadRequest)
		return
	}
	taxYear, err := strconv.Atoi(yearParam)
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("Invalid tax year %q", yearParam), http.StatusBadRequest)
		return
	}

	report, err := h.reportService.GetTaxYearReport(userID, taxYear)
	if err != nil {
		if errors.Is(err, services.ErrReportNotFound) {
			utils.SendJSONError(w, fmt.Sprintf("No report available for tax year %d", taxYear), http.StatusNotFound)
			return
		}
		utils.SendJSONError(w, fmt.Sprintf("Error calculating report for userID %d: %v", userID, err), http.StatusInternalServerError)
		return
	}

	writeJSONWithETag(w, r, userID, report)
}

// HandleGetAllReports returns the reports for every tax year with activity,
// oldest first, with loss carryover threaded between them.
func (h *ReportHandler) HandleGetAllReports(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	reports, err := h.reportService.GetAllReports(userID)
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("Error calculating reports for userID %d: %v", userID, err), http.StatusInternalServerError)
		return
	}

	writeJSONWithETag(w, r, userID, reports)
}

// HandleUpdateReportStatus advances a report through the draft -> final ->
// submitted lifecycle.
func (h *ReportHandler) HandleUpdateReportStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	var requestBody struct {
		TaxYear int    `json:"tax_year"`
		Status  string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if requestBody.TaxYear == 0 || requestBody.Status == "" {
		utils.SendJSONError(w, "Fields 'tax_year' and 'status' are required", http.StatusBadRequest)
		return
	}

	report, err := h.reportService.UpdateReportStatus(userID, requestBody.TaxYear, requestBody.Status)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrReportNotFound):
			utils.SendJSONError(w, fmt.Sprintf("No report available for tax year %d", requestBody.TaxYear), http.StatusNotFound)
		case errors.Is(err, services.ErrInvalidStatusTransition):
			utils.SendJSONError(w, err.Error(), http.StatusConflict)
		default:
			utils.SendJSONError(w, fmt.Sprintf("Error updating report status for userID %d: %v", userID, err), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		logger.L.Error("Error encoding JSON response for report status update", "userID", userID, "error", err)
	}
}

// writeJSONWithETag encodes data as JSON with ETag revalidation so unchanged
// report payloads cost the client a 304 instead of a re-download.
func writeJSONWithETag(w http.ResponseWriter, r *http.Request, userID int64, data interface{}) {
	currentETag, etagErr := utils.GenerateETag(data)

	w.Header().Set("Cache-Control", "no-cache, private")

	if etagErr == nil && currentETag != "" {
		quotedETag := fmt.Sprintf("%q", currentETag)
		w.Header().Set("ETag", quotedETag)
		clientETag := r.Header.Get("If-None-Match")
		for _, cETag := range strings.Split(clientETag, ",") {
			if strings.TrimSpace(cETag) == quotedETag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
	} else {
		logger.L.Warn("Proceeding without ETag check due to ETag generation error", "userID", userID, "error", etagErr)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.L.Error("Error generating JSON response", "userID", userID, "error", err)
	}
}
