package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"fairtalk_server/models"
	"fairtalk_server/services"
)

func dialQueue(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func joinOverSocket(t *testing.T, conn *websocket.Conn, id, nickname string) {
	t.Helper()
	frame := queueFrame{
		Type: "join_queue",
		Payload: models.Candidate{
			CandidateID:        id,
			Nickname:           nickname,
			PersonalityAnswers: map[string]string{"q1": "a", "q2": "b", "q3": "c", "q4": "d"},
		},
	}
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write join: %v", err)
	}
	ack := readFrame(t, conn)
	if ack["status"] != "queued" {
		t.Fatalf("expected queued ack, got %v", ack)
	}
}

func TestQueueSocketPushesMatch(t *testing.T) {
	store := newSocketStore(t)
	qs := NewQueueServer(store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := qs.StartMatchListener(ctx); err != nil {
		t.Fatalf("start listener: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(qs.HandleQueue))
	defer srv.Close()

	connA := dialQueue(t, srv)
	connB := dialQueue(t, srv)
	joinOverSocket(t, connA, "a", "alpha")
	joinOverSocket(t, connB, "b", "beta")

	m := &services.Matchmaker{Store: store, Scorer: services.NewScorer()}
	if err := m.RunTick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	var matchIDs []string
	for _, conn := range []*websocket.Conn{connA, connB} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read matched frame: %v", err)
		}
		var frame struct {
			Status string             `json:"status"`
			Match  models.MatchRecord `json:"match"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("decode matched frame: %v", err)
		}
		if frame.Status != "matched" || frame.Match.MatchID == "" {
			t.Fatalf("unexpected frame: %+v", frame)
		}
		matchIDs = append(matchIDs, frame.Match.MatchID)
	}
	if matchIDs[0] != matchIDs[1] {
		t.Fatalf("participants saw different matches: %v", matchIDs)
	}
}

func TestQueueSocketRejectsIncompleteJoin(t *testing.T) {
	store := newSocketStore(t)
	qs := NewQueueServer(store)
	srv := httptest.NewServer(http.HandlerFunc(qs.HandleQueue))
	defer srv.Close()

	conn := dialQueue(t, srv)
	if err := conn.WriteJSON(queueFrame{Type: "join_queue", Payload: models.Candidate{CandidateID: "a"}}); err != nil {
		t.Fatalf("write join: %v", err)
	}
	frame := readFrame(t, conn)
	if frame["status"] != "error" {
		t.Fatalf("expected error ack, got %v", frame)
	}
}

func TestQueueSocketWithdrawsOnClose(t *testing.T) {
	store := newSocketStore(t)
	qs := NewQueueServer(store)
	srv := httptest.NewServer(http.HandlerFunc(qs.HandleQueue))
	defer srv.Close()

	conn := dialQueue(t, srv)
	joinOverSocket(t, conn, "a", "alpha")

	ctx := context.Background()
	if size, _ := store.Size(ctx); size != 1 {
		t.Fatalf("expected 1 waiting, got %d", size)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for {
		size, err := store.Size(ctx)
		if err != nil {
			t.Fatalf("size: %v", err)
		}
		if size == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("candidate was never withdrawn after disconnect")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestQueueSocketRelax(t *testing.T) {
	store := newSocketStore(t)
	qs := NewQueueServer(store)
	srv := httptest.NewServer(http.HandlerFunc(qs.HandleQueue))
	defer srv.Close()

	conn := dialQueue(t, srv)
	joinOverSocket(t, conn, "a", "alpha")

	if err := conn.WriteJSON(queueFrame{Type: "relax"}); err != nil {
		t.Fatalf("write relax: %v", err)
	}
	ack := readFrame(t, conn)
	if ack["status"] != "relaxed" {
		t.Fatalf("expected relaxed ack, got %v", ack)
	}

	entries, err := store.Snapshot(context.Background(), -1)
	if err != nil || len(entries) != 1 || !entries[0].Candidate.Relaxed {
		t.Fatalf("expected relaxed entry, got %v %v", entries, err)
	}
}
