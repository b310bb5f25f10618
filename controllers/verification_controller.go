package controllers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"fairtalk_server/services"
)

// VerificationController handles camera-based gender verification requests
type VerificationController struct {
	Verifier *services.VerificationService
	Users    *services.UserRecordService
}

// NewVerificationController creates a new VerificationController instance
func NewVerificationController(verifier *services.VerificationService, users *services.UserRecordService) *VerificationController {
	return &VerificationController{Verifier: verifier, Users: users}
}

// VerifyUser forwards the submitted photo to the external gender check and
// persists the outcome on the device record when authorized
func (vc *VerificationController) VerifyUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Image    string `json:"image"`
		DeviceID string `json:"deviceId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Image == "" || body.DeviceID == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"authorized": false,
			"message":    "Missing image or device ID",
		})
		return
	}

	// Strip a data-URI prefix if the client sent one.
	image := body.Image
	if idx := strings.Index(image, ";base64,"); idx != -1 {
		image = image[idx+len(";base64,"):]
	}

	result := vc.Verifier.VerifyImage(r.Context(), image)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)

	// Persistence is non-blocking: a storage failure never fails the request.
	if result.Authorized && vc.Users != nil {
		go func(deviceID, gender string) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := vc.Users.UpsertVerified(ctx, deviceID, gender); err != nil {
				log.Printf("[Verification] ⚠️ Failed to update record for %s: %v", deviceID, err)
			}
		}(body.DeviceID, result.Gender)
	}
}
