package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"

	"fairtalk_server/models"
	"fairtalk_server/services"
)

func newSocketStore(t *testing.T) *services.MatchStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return &services.MatchStore{Rdb: rdb}
}

func commitTestMatch(t *testing.T, store *services.MatchStore) models.MatchRecord {
	t.Helper()
	ctx := context.Background()
	answers := map[string]string{"q1": "a", "q2": "b", "q3": "c", "q4": "d"}
	for _, c := range []models.Candidate{
		{CandidateID: "a", Nickname: "alpha", PersonalityAnswers: answers, JoinedAt: 100},
		{CandidateID: "b", Nickname: "beta", PersonalityAnswers: answers, JoinedAt: 200},
	} {
		if err := store.Enqueue(ctx, c); err != nil {
			t.Fatalf("enqueue %s: %v", c.CandidateID, err)
		}
	}
	entries, err := store.Snapshot(ctx, -1)
	if err != nil || len(entries) != 2 {
		t.Fatalf("snapshot: %v %d", err, len(entries))
	}
	record := models.MatchRecord{
		MatchID: "m1",
		UserA:   models.Participant{CandidateID: "a", Nickname: "alpha"},
		UserB:   models.Participant{CandidateID: "b", Nickname: "beta"},
		Reason:  "test",
		Score:   8.0,
	}
	committed, err := store.CommitMatch(ctx, entries[0], entries[1], record)
	if err != nil || !committed {
		t.Fatalf("commit: %v %v", committed, err)
	}
	return record
}

func dialRelay(t *testing.T, srv *httptest.Server, matchID, deviceID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?matchId=" + matchID + "&deviceId=" + deviceID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", deviceID, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame map[string]string
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return frame
}

func TestRelayForwardsMessages(t *testing.T) {
	store := newSocketStore(t)
	record := commitTestMatch(t, store)
	rs := NewRelayServer(store, services.NewCleanupCoordinator(store))
	srv := httptest.NewServer(http.HandlerFunc(rs.HandleRelay))
	defer srv.Close()

	connA := dialRelay(t, srv, record.MatchID, "a")
	connB := dialRelay(t, srv, record.MatchID, "b")
	time.Sleep(50 * time.Millisecond) // both registrations land

	if err := connA.WriteJSON(ControlMessage{Action: "message", Text: "hello"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame := readFrame(t, connB)
	if frame["type"] != "message" || frame["from"] != "partner" || frame["text"] != "hello" {
		t.Fatalf("unexpected frame: %v", frame)
	}

	if err := connB.WriteJSON(ControlMessage{Action: "message", Text: "hi back"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame = readFrame(t, connA)
	if frame["text"] != "hi back" {
		t.Fatalf("unexpected frame: %v", frame)
	}
}

func TestRelayLeaveNotifiesPartnerAndCleansUp(t *testing.T) {
	store := newSocketStore(t)
	record := commitTestMatch(t, store)
	cleanup := services.NewCleanupCoordinator(store)
	cleanup.Grace = 10 * time.Millisecond
	rs := NewRelayServer(store, cleanup)
	srv := httptest.NewServer(http.HandlerFunc(rs.HandleRelay))
	defer srv.Close()

	connA := dialRelay(t, srv, record.MatchID, "a")
	connB := dialRelay(t, srv, record.MatchID, "b")
	time.Sleep(50 * time.Millisecond)

	if err := connA.WriteJSON(ControlMessage{Action: "leave"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame := readFrame(t, connB)
	if frame["type"] != "system" || frame["event"] != "partner_left" {
		t.Fatalf("unexpected frame: %v", frame)
	}

	ctx := context.Background()
	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := store.GetMatch(ctx, record.MatchID)
		if err != nil {
			t.Fatalf("get match: %v", err)
		}
		if got == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session was never purged")
		}
		time.Sleep(20 * time.Millisecond)
	}
	for _, id := range []string{"a", "b"} {
		if active, _ := store.IsActive(ctx, id); active {
			t.Fatalf("expected %s released after cleanup", id)
		}
	}
}

func TestRelayDisconnectNotifiesPartner(t *testing.T) {
	store := newSocketStore(t)
	record := commitTestMatch(t, store)
	rs := NewRelayServer(store, services.NewCleanupCoordinator(store))
	srv := httptest.NewServer(http.HandlerFunc(rs.HandleRelay))
	defer srv.Close()

	connA := dialRelay(t, srv, record.MatchID, "a")
	connB := dialRelay(t, srv, record.MatchID, "b")
	time.Sleep(50 * time.Millisecond)

	connA.Close()
	frame := readFrame(t, connB)
	if frame["type"] != "system" || frame["event"] != "partner_disconnected" {
		t.Fatalf("unexpected frame: %v", frame)
	}
}

func TestRelayRejectsOutsiders(t *testing.T) {
	store := newSocketStore(t)
	record := commitTestMatch(t, store)
	rs := NewRelayServer(store, services.NewCleanupCoordinator(store))
	srv := httptest.NewServer(http.HandlerFunc(rs.HandleRelay))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?matchId=" + record.MatchID + "&deviceId=intruder"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake rejection for non-participant")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %+v", resp)
	}

	url = "ws" + strings.TrimPrefix(srv.URL, "http") + "?matchId=missing&deviceId=a"
	_, resp, err = websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake rejection for unknown session")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %+v", resp)
	}
}
