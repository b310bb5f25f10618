package socket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fairtalk_server/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ControlMessage is a client frame on the relay socket.
type ControlMessage struct {
	Action string `json:"action"`
	Text   string `json:"text,omitempty"`
}

// relayClient wraps a connection with a write lock, since gorilla permits
// one concurrent writer only.
type relayClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *relayClient) send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// RelayServer forwards chat frames between the two participants of a live
// session. It never stores message content.
type RelayServer struct {
	Store   *services.MatchStore
	Cleanup *services.CleanupCoordinator

	mu       sync.Mutex
	sessions map[string]map[string]*relayClient
}

// NewRelayServer creates a new RelayServer instance
func NewRelayServer(store *services.MatchStore, cleanup *services.CleanupCoordinator) *RelayServer {
	return &RelayServer{
		Store:    store,
		Cleanup:  cleanup,
		sessions: make(map[string]map[string]*relayClient),
	}
}

// HandleRelay upgrades a participant connection and relays frames until the
// session ends.
func (rs *RelayServer) HandleRelay(w http.ResponseWriter, r *http.Request) {
	matchID := r.URL.Query().Get("matchId")
	deviceID := r.URL.Query().Get("deviceId")
	if matchID == "" || deviceID == "" {
		http.Error(w, "matchId and deviceId are required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	record, err := rs.Store.GetMatch(ctx, matchID)
	cancel()
	if err != nil {
		http.Error(w, "Failed to load session", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if record.UserA.CandidateID != deviceID && record.UserB.CandidateID != deviceID {
		http.Error(w, "Not a participant of this session", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Relay] ⚠️ Upgrade failed for %s: %v", deviceID, err)
		return
	}
	client := &relayClient{conn: conn}
	rs.register(matchID, deviceID, client)
	log.Printf("[Relay] %s joined session %s", deviceID, matchID)

	participants := []string{record.UserA.CandidateID, record.UserB.CandidateID}
	left := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg ControlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Action {
		case "message":
			rs.toPartner(matchID, deviceID, map[string]string{
				"type": "message",
				"from": "partner",
				"text": msg.Text,
			})
		case "leave":
			rs.toPartner(matchID, deviceID, map[string]string{
				"type":  "system",
				"event": "partner_left",
			})
			left = true
		}
		if left {
			break
		}
	}

	if !left {
		rs.toPartner(matchID, deviceID, map[string]string{
			"type":  "system",
			"event": "partner_disconnected",
		})
	}
	rs.unregister(matchID, deviceID)
	conn.Close()
	log.Printf("[Relay] %s left session %s", deviceID, matchID)
	rs.Cleanup.OnSessionEnd(matchID, participants)
}

func (rs *RelayServer) register(matchID, deviceID string, client *relayClient) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.sessions[matchID] == nil {
		rs.sessions[matchID] = make(map[string]*relayClient)
	}
	rs.sessions[matchID][deviceID] = client
}

func (rs *RelayServer) unregister(matchID, deviceID string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if peers, ok := rs.sessions[matchID]; ok {
		delete(peers, deviceID)
		if len(peers) == 0 {
			delete(rs.sessions, matchID)
		}
	}
}

func (rs *RelayServer) toPartner(matchID, fromID string, payload interface{}) {
	rs.mu.Lock()
	var partner *relayClient
	for id, client := range rs.sessions[matchID] {
		if id != fromID {
			partner = client
		}
	}
	rs.mu.Unlock()
	if partner == nil {
		return
	}
	if err := partner.send(payload); err != nil {
		log.Printf("[Relay] ⚠️ Failed to deliver frame in %s: %v", matchID, err)
	}
}
