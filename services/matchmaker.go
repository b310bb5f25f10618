package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"fairtalk_server/models"
)

// MatchCounter records committed matches against a persistent user record.
type MatchCounter interface {
	IncrementDailyMatches(ctx context.Context, deviceID string) error
}

const (
	defaultTickInterval  = time.Second
	defaultSnapshotLimit = 50
)

// Matchmaker periodically scans the waiting pool and commits the best
// admissible pair. A single goroutine runs the tick loop, so pool→active
// transitions are serialized by construction.
type Matchmaker struct {
	Store  *MatchStore
	Scorer *Scorer
	Users  MatchCounter

	// Interval is the tick period, SnapshotLimit bounds how many arrivals
	// one tick scores. Zero values fall back to the defaults.
	Interval      time.Duration
	SnapshotLimit int64
}

// Start runs the scan-and-commit loop until ctx is cancelled.
func (m *Matchmaker) Start(ctx context.Context) {
	interval := m.Interval
	if interval <= 0 {
		interval = defaultTickInterval
	}
	log.Println("[Matchmaker] Background process started...")
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Println("[Matchmaker] Background process stopped")
				return
			case <-ticker.C:
				if err := m.RunTick(ctx); err != nil {
					// Abandon the tick, the next interval retries.
					log.Printf("[Matchmaker] ❌ Tick abandoned: %v", err)
				}
			}
		}
	}()
}

// RunTick performs one scan over a bounded pool snapshot and commits at
// most one match. Single-commit pacing is deliberate: raise the tick rate
// rather than the per-tick commit count for more throughput.
func (m *Matchmaker) RunTick(ctx context.Context) error {
	limit := m.SnapshotLimit
	if limit <= 0 {
		limit = defaultSnapshotLimit
	}
	entries, err := m.Store.Snapshot(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) < 2 {
		return nil
	}

	now := UnixNow()
	poolSize := len(entries)

	for i := range entries {
		a := entries[i]
		if active, err := m.Store.IsActive(ctx, a.Candidate.CandidateID); err != nil {
			return err
		} else if active {
			continue
		}

		// Best admissible partner for a; first seen wins ties, which is the
		// earliest arrival since the scan runs in arrival order.
		bestIdx := -1
		var best MatchScore
		for j := i + 1; j < len(entries); j++ {
			b := entries[j]
			if a.Candidate.CandidateID == b.Candidate.CandidateID {
				continue
			}
			if active, err := m.Store.IsActive(ctx, b.Candidate.CandidateID); err != nil {
				return err
			} else if active {
				continue
			}
			if !GenderCompatible(a.Candidate, b.Candidate) {
				continue
			}
			if res := m.Scorer.Score(a.Candidate, b.Candidate, now, poolSize); res != nil {
				if bestIdx == -1 || res.Score > best.Score {
					best = *res
					bestIdx = j
				}
			}
		}
		if bestIdx == -1 {
			continue
		}
		b := entries[bestIdx]

		record := models.MatchRecord{
			MatchID: uuid.NewString(),
			UserA: models.Participant{
				CandidateID: a.Candidate.CandidateID,
				Nickname:    a.Candidate.Nickname,
				Gender:      a.Candidate.Gender,
			},
			UserB: models.Participant{
				CandidateID: b.Candidate.CandidateID,
				Nickname:    b.Candidate.Nickname,
				Gender:      b.Candidate.Gender,
			},
			Reason:    best.Reason,
			Score:     best.Score,
			Timestamp: now,
		}

		committed, err := m.Store.CommitMatch(ctx, a, b, record)
		if err != nil {
			return err
		}
		if !committed {
			// The pair dissolved between snapshot and commit, keep scanning.
			continue
		}

		log.Printf("[Matchmaker] MATCH FOUND: %s <-> %s (%s)", a.Candidate.Nickname, b.Candidate.Nickname, best.Reason)
		m.recordMatch(ctx, a.Candidate.CandidateID, b.Candidate.CandidateID)
		break
	}
	return nil
}

// recordMatch bumps both sides' daily counters, best effort.
func (m *Matchmaker) recordMatch(ctx context.Context, ids ...string) {
	if m.Users == nil {
		return
	}
	for _, id := range ids {
		if err := m.Users.IncrementDailyMatches(ctx, id); err != nil {
			log.Printf("[Matchmaker] ⚠️ Failed to record match for %s: %v", id, err)
		}
	}
}
