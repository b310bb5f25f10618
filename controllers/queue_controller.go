package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"fairtalk_server/models"
	"fairtalk_server/services"
)

// QueueController handles HTTP requests for the matchmaking queue
type QueueController struct {
	Store *services.MatchStore
	Users *services.UserRecordService
}

// NewQueueController creates a new QueueController instance
func NewQueueController(store *services.MatchStore, users *services.UserRecordService) *QueueController {
	return &QueueController{Store: store, Users: users}
}

// JoinQueue enqueues a candidate for matching
func (qc *QueueController) JoinQueue(w http.ResponseWriter, r *http.Request) {
	var cand models.Candidate
	if err := json.NewDecoder(r.Body).Decode(&cand); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if cand.CandidateID == "" || cand.Nickname == "" {
		http.Error(w, "candidateId and nickname are required", http.StatusBadRequest)
		return
	}

	if qc.Users != nil {
		eligibility, err := qc.Users.CheckEligibility(r.Context(), cand.CandidateID)
		if err != nil {
			http.Error(w, "Failed to check eligibility", http.StatusInternalServerError)
			return
		}
		if !eligibility.Eligible {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(eligibility)
			return
		}
	}

	// Arrival time and relaxation consent are owned by the pool, not the client.
	cand.JoinedAt = 0
	cand.Relaxed = false

	if err := qc.Store.Enqueue(r.Context(), cand); err != nil {
		switch {
		case errors.Is(err, services.ErrNicknameTaken):
			http.Error(w, "Nickname is already in use, pick another one", http.StatusConflict)
		case errors.Is(err, services.ErrAlreadyActive):
			http.Error(w, "You already have an active session", http.StatusConflict)
		default:
			http.Error(w, "Failed to join queue", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "queued"})
}

// PollMatch reports whether a waiting candidate has been matched yet
func (qc *QueueController) PollMatch(w http.ResponseWriter, r *http.Request) {
	candidateID := r.URL.Query().Get("candidateId")
	if candidateID == "" {
		http.Error(w, "candidateId is required", http.StatusBadRequest)
		return
	}

	matchID, err := qc.Store.MatchForCandidate(r.Context(), candidateID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if matchID == "" {
		json.NewEncoder(w).Encode(map[string]string{"status": "waiting"})
		return
	}

	record, err := qc.Store.GetMatch(r.Context(), matchID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if record == nil {
		// The record expired between the map read and the fetch.
		json.NewEncoder(w).Encode(map[string]string{"status": "waiting"})
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "matched",
		"match":  record,
	})
}

// RelaxThreshold records the candidate's consent to a loosened compatibility bar
func (qc *QueueController) RelaxThreshold(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CandidateID string `json:"candidateId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.CandidateID == "" {
		http.Error(w, "candidateId is required", http.StatusBadRequest)
		return
	}

	found, err := qc.Store.SetRelaxed(r.Context(), body.CandidateID)
	if err != nil {
		http.Error(w, "Failed to update candidate", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "Candidate is not waiting in the queue", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "relaxed"})
}

// LeaveQueue withdraws a waiting candidate from the pool
func (qc *QueueController) LeaveQueue(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CandidateID string `json:"candidateId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.CandidateID == "" {
		http.Error(w, "candidateId is required", http.StatusBadRequest)
		return
	}

	if err := qc.Store.Remove(r.Context(), body.CandidateID); err != nil {
		http.Error(w, "Failed to leave queue", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "left"})
}

// GetMatch returns a committed match record by id
func (qc *QueueController) GetMatch(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["matchId"]
	if matchID == "" {
		http.Error(w, "matchId is required", http.StatusBadRequest)
		return
	}

	record, err := qc.Store.GetMatch(r.Context(), matchID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "Match not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(record)
}
