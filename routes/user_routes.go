package routes

import (
	"github.com/gorilla/mux"

	"fairtalk_server/controllers"
	"fairtalk_server/services"
)

// RegisterUserRoutes registers user record endpoints
func RegisterUserRoutes(r *mux.Router, users *services.UserRecordService) {
	uc := controllers.NewUserController(users)

	r.HandleFunc("/api/user/eligibility/{deviceId}", uc.CheckEligibility).Methods("GET")
	r.HandleFunc("/api/user/test/{deviceId}", uc.CreateTestUser).Methods("POST")
}
