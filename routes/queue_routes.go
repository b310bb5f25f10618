package routes

import (
	"github.com/gorilla/mux"

	"fairtalk_server/controllers"
	"fairtalk_server/services"
)

// RegisterQueueRoutes registers matchmaking queue endpoints
func RegisterQueueRoutes(r *mux.Router, store *services.MatchStore, users *services.UserRecordService) {
	qc := controllers.NewQueueController(store, users)

	r.HandleFunc("/api/queue/join", qc.JoinQueue).Methods("POST")
	r.HandleFunc("/api/queue/leave", qc.LeaveQueue).Methods("POST")
	r.HandleFunc("/api/queue/relax", qc.RelaxThreshold).Methods("POST")
	r.HandleFunc("/api/queue/poll", qc.PollMatch).Methods("GET")
	r.HandleFunc("/api/match/{matchId}", qc.GetMatch).Methods("GET")
}
