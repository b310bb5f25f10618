package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"fairtalk_server/services"
)

// UserController handles HTTP requests for persistent user records
type UserController struct {
	Users *services.UserRecordService
}

// NewUserController creates a new UserController instance
func NewUserController(users *services.UserRecordService) *UserController {
	return &UserController{Users: users}
}

// CheckEligibility reports whether a device may join the matching pool
func (uc *UserController) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["deviceId"]
	if deviceID == "" {
		http.Error(w, "Device ID required", http.StatusBadRequest)
		return
	}

	eligibility, err := uc.Users.CheckEligibility(r.Context(), deviceID)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(services.Eligibility{Eligible: false, Message: "Server error"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(eligibility)
}

// CreateTestUser creates or refreshes a record for environments without
// camera verification
func (uc *UserController) CreateTestUser(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["deviceId"]
	if deviceID == "" {
		http.Error(w, "Device ID required", http.StatusBadRequest)
		return
	}

	var body struct {
		Gender string `json:"gender"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Gender == "" {
		body.Gender = "unknown"
	}

	if err := uc.Users.UpsertTestUser(r.Context(), deviceID, body.Gender); err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": "Test user created/updated",
	})
}
