package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	goredis "github.com/redis/go-redis/v9"

	"fairtalk_server/models"
	"fairtalk_server/services"
)

func newQueueRouter(t *testing.T) (*mux.Router, *services.MatchStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := &services.MatchStore{Rdb: rdb}

	qc := NewQueueController(store, nil)
	r := mux.NewRouter()
	r.HandleFunc("/api/queue/join", qc.JoinQueue).Methods("POST")
	r.HandleFunc("/api/queue/leave", qc.LeaveQueue).Methods("POST")
	r.HandleFunc("/api/queue/relax", qc.RelaxThreshold).Methods("POST")
	r.HandleFunc("/api/queue/poll", qc.PollMatch).Methods("GET")
	r.HandleFunc("/api/match/{matchId}", qc.GetMatch).Methods("GET")
	return r, store
}

func postJSON(t *testing.T, r http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func joinBody(id, nickname string) models.Candidate {
	return models.Candidate{
		CandidateID:        id,
		Nickname:           nickname,
		PersonalityAnswers: map[string]string{"q1": "a", "q2": "b", "q3": "c", "q4": "d"},
	}
}

func TestJoinQueueValidation(t *testing.T) {
	r, _ := newQueueRouter(t)

	rec := postJSON(t, r, "/api/queue/join", models.Candidate{CandidateID: "a"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing nickname, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/queue/join", bytes.NewReader([]byte("{not json")))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestJoinQueueNicknameConflict(t *testing.T) {
	r, _ := newQueueRouter(t)

	if rec := postJSON(t, r, "/api/queue/join", joinBody("a", "alpha")); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for first join, got %d", rec.Code)
	}
	if rec := postJSON(t, r, "/api/queue/join", joinBody("b", "alpha")); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for nickname conflict, got %d", rec.Code)
	}
}

func TestJoinQueueActiveConflict(t *testing.T) {
	r, store := newQueueRouter(t)

	if err := store.Rdb.SAdd(context.Background(), services.ActiveSessionsKey, "a").Err(); err != nil {
		t.Fatalf("seed active set: %v", err)
	}
	if rec := postJSON(t, r, "/api/queue/join", joinBody("a", "alpha")); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for active identity, got %d", rec.Code)
	}
}

func TestPollMatchLifecycle(t *testing.T) {
	r, store := newQueueRouter(t)
	ctx := context.Background()

	for _, b := range []models.Candidate{joinBody("a", "alpha"), joinBody("b", "beta")} {
		if rec := postJSON(t, r, "/api/queue/join", b); rec.Code != http.StatusOK {
			t.Fatalf("join %s: %d", b.CandidateID, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/queue/poll?candidateId=a", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("poll: %d", rec.Code)
	}
	var waiting map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &waiting); err != nil {
		t.Fatalf("decode poll: %v", err)
	}
	if waiting["status"] != "waiting" {
		t.Fatalf("expected waiting, got %v", waiting)
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

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/queue/poll?candidateId=a", nil))
	var matched struct {
		Status string             `json:"status"`
		Match  models.MatchRecord `json:"match"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &matched); err != nil {
		t.Fatalf("decode poll: %v", err)
	}
	if matched.Status != "matched" || matched.Match.MatchID != "m1" {
		t.Fatalf("expected matched m1, got %+v", matched)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/match/%s", record.MatchID), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get match: %d", rec.Code)
	}
	var got models.MatchRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode match: %v", err)
	}
	if got.UserB.Nickname != "beta" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestRelaxAndLeave(t *testing.T) {
	r, store := newQueueRouter(t)
	ctx := context.Background()

	if rec := postJSON(t, r, "/api/queue/join", joinBody("a", "alpha")); rec.Code != http.StatusOK {
		t.Fatalf("join: %d", rec.Code)
	}

	if rec := postJSON(t, r, "/api/queue/relax", map[string]string{"candidateId": "a"}); rec.Code != http.StatusOK {
		t.Fatalf("relax: %d", rec.Code)
	}
	entries, _ := store.Snapshot(ctx, -1)
	if len(entries) != 1 || !entries[0].Candidate.Relaxed {
		t.Fatalf("expected relaxed entry, got %+v", entries)
	}

	if rec := postJSON(t, r, "/api/queue/relax", map[string]string{"candidateId": "ghost"}); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown candidate, got %d", rec.Code)
	}

	if rec := postJSON(t, r, "/api/queue/leave", map[string]string{"candidateId": "a"}); rec.Code != http.StatusOK {
		t.Fatalf("leave: %d", rec.Code)
	}
	if size, _ := store.Size(ctx); size != 0 {
		t.Fatalf("expected empty pool after leave, got %d", size)
	}
}

func TestGetMatchNotFound(t *testing.T) {
	r, _ := newQueueRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/match/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
