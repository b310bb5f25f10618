package socket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"fairtalk_server/models"
	"fairtalk_server/services"
)

// queueFrame is a client frame on the queue socket.
type queueFrame struct {
	Type    string           `json:"type"`
	Payload models.Candidate `json:"payload"`
}

// QueueServer pushes match notifications to candidates who hold a socket
// open while waiting, as an alternative to HTTP polling.
type QueueServer struct {
	Store *services.MatchStore

	mu      sync.Mutex
	waiting map[string]*relayClient
}

// NewQueueServer creates a new QueueServer instance
func NewQueueServer(store *services.MatchStore) *QueueServer {
	return &QueueServer{
		Store:   store,
		waiting: make(map[string]*relayClient),
	}
}

// HandleQueue upgrades a waiting candidate's connection. The candidate joins
// the pool over the socket and is pushed a matched frame when a commit names
// them. Closing the socket before a match withdraws them from the pool.
func (qs *QueueServer) HandleQueue(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Queue] ⚠️ Upgrade failed: %v", err)
		return
	}
	client := &relayClient{conn: conn}

	var candidateID string
	defer func() {
		if candidateID != "" {
			qs.mu.Lock()
			delete(qs.waiting, candidateID)
			qs.mu.Unlock()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			active, err := qs.Store.IsActive(ctx, candidateID)
			if err == nil && !active {
				if err := qs.Store.Remove(ctx, candidateID); err != nil {
					log.Printf("[Queue] ⚠️ Failed to withdraw %s: %v", candidateID, err)
				}
			}
		}
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame queueFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		switch frame.Type {
		case "join_queue":
			cand := frame.Payload
			if cand.CandidateID == "" || cand.Nickname == "" {
				client.send(map[string]string{"status": "error", "message": "candidateId and nickname are required"})
				continue
			}
			cand.JoinedAt = 0
			cand.Relaxed = false
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := qs.Store.Enqueue(ctx, cand)
			cancel()
			if err != nil {
				client.send(map[string]string{"status": "error", "message": err.Error()})
				continue
			}
			candidateID = cand.CandidateID
			qs.mu.Lock()
			qs.waiting[candidateID] = client
			qs.mu.Unlock()
			client.send(map[string]string{"status": "queued"})
		case "relax":
			if candidateID == "" {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			found, err := qs.Store.SetRelaxed(ctx, candidateID)
			cancel()
			if err != nil || !found {
				client.send(map[string]string{"status": "error", "message": "not waiting in the queue"})
				continue
			}
			client.send(map[string]string{"status": "relaxed"})
		}
	}
}

// StartMatchListener subscribes to the match channel and pushes matched
// frames to both participants for as long as ctx lives.
func (qs *QueueServer) StartMatchListener(ctx context.Context) error {
	sub := qs.Store.Rdb.Subscribe(ctx, services.MatchChannel)
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event models.MatchEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Printf("[Queue] ⚠️ Unreadable match event: %v", err)
					continue
				}
				qs.notify(event.Payload)
			}
		}
	}()
	log.Println("[Queue] Match listener started")
	return nil
}

func (qs *QueueServer) notify(record models.MatchRecord) {
	for _, id := range []string{record.UserA.CandidateID, record.UserB.CandidateID} {
		qs.mu.Lock()
		client := qs.waiting[id]
		delete(qs.waiting, id)
		qs.mu.Unlock()
		if client == nil {
			continue
		}
		if err := client.send(map[string]interface{}{
			"status": "matched",
			"match":  record,
		}); err != nil {
			log.Printf("[Queue] ⚠️ Failed to push match %s to %s: %v", record.MatchID, id, err)
		}
	}
}
