package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"fairtalk_server/models"
)

// Redis key layout for matchmaking state.
const (
	QueueKey           = "waiting_queue"
	ActiveSessionsKey  = "active_sessions"
	MatchChannel       = "matches"
	MatchSessionPrefix = "match_session:"
	DeviceMatchMap     = "device_match_map"

	// SessionTTL bounds how long a match record survives if the session
	// never completes cleanup.
	SessionTTL = time.Hour
)

var (
	// ErrNicknameTaken signals a join with a nickname another waiting
	// candidate already holds.
	ErrNicknameTaken = errors.New("nickname already in use")
	// ErrAlreadyActive signals a join from an identity with an in-flight match.
	ErrAlreadyActive = errors.New("identity already in an active session")
)

// PoolEntry is one queued candidate plus the raw zset member representing
// it, which commit-time removal must target exactly.
type PoolEntry struct {
	Candidate models.Candidate
	Raw       string
	JoinedAt  float64
}

// MatchStore owns all shared matchmaking state: the waiting pool (arrival
// ordered), the active-session registry, committed match records, and the
// device→match map. Every mutation of that state funnels through here.
type MatchStore struct {
	Rdb *goredis.Client
}

// InitializeRedisClient connects to REDIS_ADDR and verifies the connection.
func InitializeRedisClient() *goredis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    os.Getenv("REDIS_PASSWORD"),
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis at %s: %v", addr, err)
	}
	log.Println("Redis connected")
	return rdb
}

// UnixNow returns the current time as fractional unix seconds, the time
// representation used throughout the pool.
func UnixNow() float64 {
	return float64(time.Now().UnixMilli()) / 1000
}

// enqueueRetries bounds how often a join retries after losing a watch race.
const enqueueRetries = 3

// Enqueue adds a candidate to the waiting pool. Re-joining with the same
// candidateId replaces the stale entry; a nickname held by another waiting
// candidate or an identity with an in-flight match is refused. A zero
// JoinedAt is stamped with the current time. The uniqueness scan and the
// write run under a watch on the pool and registry keys, so concurrent joins
// cannot both claim a nickname and a join cannot race its own commit.
func (ms *MatchStore) Enqueue(ctx context.Context, cand models.Candidate) error {
	if cand.JoinedAt == 0 {
		cand.JoinedAt = UnixNow()
	}
	raw, err := json.Marshal(cand)
	if err != nil {
		return fmt.Errorf("failed to marshal candidate: %w", err)
	}

	for attempt := 0; attempt < enqueueRetries; attempt++ {
		err := ms.Rdb.Watch(ctx, func(tx *goredis.Tx) error {
			active, err := tx.SIsMember(ctx, ActiveSessionsKey, cand.CandidateID).Result()
			if err != nil {
				return err
			}
			if active {
				return ErrAlreadyActive
			}

			members, err := tx.ZRangeWithScores(ctx, QueueKey, 0, -1).Result()
			if err != nil {
				return err
			}
			var stale []interface{}
			for _, m := range members {
				member, _ := m.Member.(string)
				var existing models.Candidate
				if err := json.Unmarshal([]byte(member), &existing); err != nil {
					continue
				}
				if existing.CandidateID == cand.CandidateID {
					stale = append(stale, member)
					continue
				}
				if existing.Nickname == cand.Nickname {
					return ErrNicknameTaken
				}
			}

			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				if len(stale) > 0 {
					pipe.ZRem(ctx, QueueKey, stale...)
				}
				pipe.ZAdd(ctx, QueueKey, goredis.Z{Score: cand.JoinedAt, Member: string(raw)})
				return nil
			})
			return err
		}, QueueKey, ActiveSessionsKey)

		if errors.Is(err, goredis.TxFailedErr) {
			continue // pool changed underneath us, re-run the scan
		}
		if errors.Is(err, ErrNicknameTaken) || errors.Is(err, ErrAlreadyActive) {
			return err
		}
		if err != nil {
			return fmt.Errorf("failed to enqueue candidate %s: %w", cand.CandidateID, err)
		}
		log.Printf("[MatchStore] Candidate %s (%s) joined the pool", cand.CandidateID, cand.Nickname)
		return nil
	}
	return fmt.Errorf("failed to enqueue candidate %s: pool contention", cand.CandidateID)
}

// Snapshot returns up to limit waiting candidates, oldest arrival first.
// A negative limit returns the whole pool.
func (ms *MatchStore) Snapshot(ctx context.Context, limit int64) ([]PoolEntry, error) {
	stop := limit - 1
	if limit < 0 {
		stop = -1
	}
	members, err := ms.Rdb.ZRangeWithScores(ctx, QueueKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan waiting pool: %w", err)
	}
	entries := make([]PoolEntry, 0, len(members))
	for _, m := range members {
		raw, _ := m.Member.(string)
		var cand models.Candidate
		if err := json.Unmarshal([]byte(raw), &cand); err != nil {
			log.Printf("[MatchStore] ⚠️ Skipping unreadable pool entry: %v", err)
			continue
		}
		entries = append(entries, PoolEntry{Candidate: cand, Raw: raw, JoinedAt: m.Score})
	}
	return entries, nil
}

// Size returns the current pool size.
func (ms *MatchStore) Size(ctx context.Context) (int64, error) {
	return ms.Rdb.ZCard(ctx, QueueKey).Result()
}

// Remove withdraws a candidate from the pool. Unknown ids are a no-op.
func (ms *MatchStore) Remove(ctx context.Context, candidateID string) error {
	entries, err := ms.Snapshot(ctx, -1)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Candidate.CandidateID == candidateID {
			if err := ms.Rdb.ZRem(ctx, QueueKey, e.Raw).Err(); err != nil {
				return fmt.Errorf("failed to remove candidate %s: %w", candidateID, err)
			}
		}
	}
	return nil
}

// SetRelaxed records the candidate's consent to a loosened threshold,
// preserving their arrival time. Returns false if the candidate is not
// waiting in the pool, or if a concurrent commit claimed them first: the
// rewrite runs under a watch on the pool key so a consenting candidate can
// never be re-inserted after leaving the pool.
func (ms *MatchStore) SetRelaxed(ctx context.Context, candidateID string) (bool, error) {
	found := false
	err := ms.Rdb.Watch(ctx, func(tx *goredis.Tx) error {
		members, err := tx.ZRangeWithScores(ctx, QueueKey, 0, -1).Result()
		if err != nil {
			return err
		}
		for _, m := range members {
			member, _ := m.Member.(string)
			var cand models.Candidate
			if err := json.Unmarshal([]byte(member), &cand); err != nil {
				continue
			}
			if cand.CandidateID != candidateID {
				continue
			}
			cand.Relaxed = true
			raw, err := json.Marshal(cand)
			if err != nil {
				return fmt.Errorf("failed to marshal candidate: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.ZRem(ctx, QueueKey, member)
				pipe.ZAdd(ctx, QueueKey, goredis.Z{Score: m.Score, Member: string(raw)})
				return nil
			})
			if err == nil {
				found = true
			}
			return err
		}
		return nil
	}, QueueKey)

	if errors.Is(err, goredis.TxFailedErr) {
		return false, nil // the candidate was committed or withdrawn mid-consent
	}
	if err != nil {
		return false, fmt.Errorf("failed to relax candidate %s: %w", candidateID, err)
	}
	if found {
		log.Printf("[MatchStore] Candidate %s consented to relaxed matching", candidateID)
	}
	return found, nil
}

// CommitMatch atomically moves a pair out of the pool and into an active
// session: both pool entries removed, both identities marked active, the
// record stored with its TTL, the device→match map updated, and the match
// event published. Returns false, touching no state, when either candidate
// left the pool or became active since the snapshot was taken.
func (ms *MatchStore) CommitMatch(ctx context.Context, a, b PoolEntry, record models.MatchRecord) (bool, error) {
	rawRecord, err := json.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("failed to marshal match record: %w", err)
	}
	rawEvent, err := json.Marshal(models.MatchEvent{Type: "match_found", Payload: record})
	if err != nil {
		return false, fmt.Errorf("failed to marshal match event: %w", err)
	}

	committed := false
	err = ms.Rdb.Watch(ctx, func(tx *goredis.Tx) error {
		for _, entry := range []PoolEntry{a, b} {
			if err := tx.ZScore(ctx, QueueKey, entry.Raw).Err(); err != nil {
				if errors.Is(err, goredis.Nil) {
					return nil // candidate left the pool since the snapshot
				}
				return err
			}
			active, err := tx.SIsMember(ctx, ActiveSessionsKey, entry.Candidate.CandidateID).Result()
			if err != nil {
				return err
			}
			if active {
				return nil // raced with an earlier commit for this identity
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.ZRem(ctx, QueueKey, a.Raw)
			pipe.ZRem(ctx, QueueKey, b.Raw)
			pipe.SAdd(ctx, ActiveSessionsKey, a.Candidate.CandidateID, b.Candidate.CandidateID)
			pipe.Set(ctx, MatchSessionPrefix+record.MatchID, string(rawRecord), SessionTTL)
			pipe.HSet(ctx, DeviceMatchMap,
				a.Candidate.CandidateID, record.MatchID,
				b.Candidate.CandidateID, record.MatchID)
			pipe.Publish(ctx, MatchChannel, string(rawEvent))
			return nil
		})
		if err == nil {
			committed = true
		}
		return err
	}, QueueKey, ActiveSessionsKey)

	if errors.Is(err, goredis.TxFailedErr) {
		return false, nil // pool changed underneath us, abandon this pair only
	}
	if err != nil {
		return false, fmt.Errorf("failed to commit match %s: %w", record.MatchID, err)
	}
	return committed, nil
}

// GetMatch retrieves a committed match record, or nil once it expired or
// was cleaned up.
func (ms *MatchStore) GetMatch(ctx context.Context, matchID string) (*models.MatchRecord, error) {
	raw, err := ms.Rdb.Get(ctx, MatchSessionPrefix+matchID).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch match %s: %w", matchID, err)
	}
	var record models.MatchRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("failed to parse match %s: %w", matchID, err)
	}
	return &record, nil
}

// MatchForCandidate returns the match id an identity is mapped to, or ""
// while it is still waiting.
func (ms *MatchStore) MatchForCandidate(ctx context.Context, candidateID string) (string, error) {
	matchID, err := ms.Rdb.HGet(ctx, DeviceMatchMap, candidateID).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up match for %s: %w", candidateID, err)
	}
	return matchID, nil
}

// IsActive reports whether an identity is a participant of a live match.
func (ms *MatchStore) IsActive(ctx context.Context, candidateID string) (bool, error) {
	active, err := ms.Rdb.SIsMember(ctx, ActiveSessionsKey, candidateID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check active session for %s: %w", candidateID, err)
	}
	return active, nil
}

// Purge deletes every trace of a finished match: the record, both registry
// entries, the device→match mappings, and any pool remnants for the
// participants. Safe to call repeatedly.
func (ms *MatchStore) Purge(ctx context.Context, matchID string, participantIDs []string) error {
	pipe := ms.Rdb.TxPipeline()
	pipe.Del(ctx, MatchSessionPrefix+matchID)
	for _, id := range participantIDs {
		pipe.HDel(ctx, DeviceMatchMap, id)
		pipe.SRem(ctx, ActiveSessionsKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to purge match %s: %w", matchID, err)
	}
	for _, id := range participantIDs {
		if err := ms.Remove(ctx, id); err != nil {
			log.Printf("[MatchStore] ⚠️ Failed to clear pool remnant for %s: %v", id, err)
		}
	}
	return nil
}
