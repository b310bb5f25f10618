package routes

import (
	"github.com/gorilla/mux"

	"fairtalk_server/controllers"
	"fairtalk_server/services"
)

// RegisterReportRoutes registers moderation report endpoints
func RegisterReportRoutes(r *mux.Router, reports *services.ReportService) {
	rc := controllers.NewReportController(reports)

	r.HandleFunc("/api/report", rc.SubmitReport).Methods("POST")
}
