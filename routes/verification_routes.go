package routes

import (
	"github.com/gorilla/mux"

	"fairtalk_server/controllers"
	"fairtalk_server/services"
)

// RegisterVerificationRoutes registers camera verification endpoints
func RegisterVerificationRoutes(r *mux.Router, verifier *services.VerificationService, users *services.UserRecordService) {
	vc := controllers.NewVerificationController(verifier, users)

	r.HandleFunc("/api/verify", vc.VerifyUser).Methods("POST")
}
