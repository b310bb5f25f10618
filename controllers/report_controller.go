package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"fairtalk_server/models"
	"fairtalk_server/services"
)

// ReportController handles moderation reports submitted after a session
type ReportController struct {
	Reports *services.ReportService
}

// NewReportController creates a new ReportController instance
func NewReportController(reports *services.ReportService) *ReportController {
	return &ReportController{Reports: reports}
}

// SubmitReport stores a report signal and applies the reputation penalty
func (rc *ReportController) SubmitReport(w http.ResponseWriter, r *http.Request) {
	var report models.Report
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if report.MatchID == "" || report.ReporterID == "" || report.ReportedID == "" || report.Reason == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	if err := rc.Reports.Submit(r.Context(), report); err != nil {
		if errors.Is(err, services.ErrAlreadyReported) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{
				"message": "You have already reported this user for this session.",
			})
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Report submitted successfully."})
}
