package services

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// MinConfidence is the detection probability below which verification is
// refused.
const MinConfidence = 0.85

const luxandDetectURL = "https://api.luxand.cloud/photo/detect"

// VerificationResult is what the gender check hands back to the client.
type VerificationResult struct {
	Authorized bool    `json:"authorized"`
	Gender     string  `json:"gender"`
	Confidence float64 `json:"confidence"`
	Message    string  `json:"message"`
}

// VerificationService fronts the Luxand face-detection API.
type VerificationService struct {
	APIToken string
	Endpoint string
	Client   *http.Client
}

func NewVerificationService() *VerificationService {
	return &VerificationService{
		APIToken: os.Getenv("LUXAND_API_TOKEN"),
		Endpoint: luxandDetectURL,
		Client:   &http.Client{Timeout: 15 * time.Second},
	}
}

type luxandFace struct {
	Gender struct {
		Value       string  `json:"value"`
		Probability float64 `json:"probability"`
	} `json:"gender"`
}

// VerifyImage submits a base64 photo and decides authorization from the
// first detected face. The image is forwarded and discarded, never stored.
// Failures come back as refusals, not errors.
func (vs *VerificationService) VerifyImage(ctx context.Context, base64Image string) VerificationResult {
	refused := func(msg string) VerificationResult {
		return VerificationResult{Authorized: false, Gender: "unknown", Confidence: 0, Message: msg}
	}

	if vs.APIToken == "" {
		log.Println("[Verification] ❌ Missing LUXAND_API_TOKEN in environment")
		return refused("Server configuration error: AI key missing.")
	}

	form := url.Values{}
	form.Set("photo", base64Image)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, vs.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return refused("External AI service error.")
	}
	req.Header.Set("token", vs.APIToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := vs.Client.Do(req)
	if err != nil {
		log.Printf("[Verification] ❌ Luxand API error: %v", err)
		return refused("External AI service error.")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode != http.StatusOK {
		log.Printf("[Verification] ❌ Luxand API status %d", resp.StatusCode)
		return refused("External AI service error.")
	}

	// Luxand returns the detected faces as a bare array.
	var faces []luxandFace
	if err := json.Unmarshal(body, &faces); err != nil || len(faces) == 0 {
		return refused("No face detected in the image.")
	}

	face := faces[0]
	if face.Gender.Value == "" {
		return refused("Face detected but gender could not be determined.")
	}

	confidence := face.Gender.Probability
	result := VerificationResult{
		Authorized: confidence >= MinConfidence,
		Gender:     strings.ToLower(face.Gender.Value),
		Confidence: confidence,
	}
	if result.Authorized {
		result.Message = "Verification successful"
	} else {
		result.Message = "Confidence too low"
	}
	return result
}
