package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"fairtalk_server/routes"
	"fairtalk_server/services"
	"fairtalk_server/socket"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment")
	}

	// Initialize DynamoDB client and service
	log.Println("Initializing DynamoDB client...")
	dynamoClient := services.InitializeDynamoDBClient()
	dynamoService := &services.DynamoService{Client: dynamoClient}
	log.Println("DynamoDB client initialized.")

	// Initialize Redis-backed matchmaking state
	rdb := services.InitializeRedisClient()
	store := &services.MatchStore{Rdb: rdb}

	// Initialize Services
	userService := &services.UserRecordService{Dynamo: dynamoService}
	reportService := &services.ReportService{Rdb: rdb, Users: userService}
	verificationService := services.NewVerificationService()
	cleanup := services.NewCleanupCoordinator(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the background matchmaker
	matchmaker := &services.Matchmaker{
		Store:  store,
		Scorer: services.NewScorer(),
		Users:  userService,
	}
	matchmaker.Start(ctx)

	// Set up the server port
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("Using server port: %s\n", port)

	// Initialize the router
	r := mux.NewRouter()

	// Register a welcome route
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "Welcome to FairTalk")
	}).Methods("GET")

	// Register a health check endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		response := map[string]string{"status": "healthy"}
		json.NewEncoder(w).Encode(response)
	}).Methods("GET")

	// Expose feature flags the client reads at startup
	r.HandleFunc("/api/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{
			"cameraVerification": os.Getenv("CAMERA_VERIFICATION") != "false",
		})
	}).Methods("GET")

	// Register routes
	routes.RegisterQueueRoutes(r, store, userService)
	routes.RegisterUserRoutes(r, userService)
	routes.RegisterVerificationRoutes(r, verificationService, userService)
	routes.RegisterReportRoutes(r, reportService)

	// WebSocket endpoints
	queueServer := socket.NewQueueServer(store)
	if err := queueServer.StartMatchListener(ctx); err != nil {
		log.Fatalf("Failed to start match listener: %v", err)
	}
	relayServer := socket.NewRelayServer(store, cleanup)
	r.HandleFunc("/ws/queue", queueServer.HandleQueue)
	r.HandleFunc("/ws/chat", relayServer.HandleRelay)

	// Add CORS middleware
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Adjust for specific domains if needed
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(r)

	// Start the HTTP server
	log.Printf("Starting server on port %s...\n", port)
	log.Fatal(http.ListenAndServe(":"+port, corsHandler))
}
