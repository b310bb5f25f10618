package services

import (
	"context"
	"log"
	"sync"
	"time"
)

const defaultCleanupGrace = 2 * time.Second

// CleanupCoordinator tears down finished sessions after a short grace delay
// so in-flight relay frames can still land. It is the sole deleter of match
// records and active-session entries.
type CleanupCoordinator struct {
	Store *MatchStore
	// Grace defaults to 2s when zero.
	Grace time.Duration

	mu      sync.Mutex
	pending map[string]bool
}

// NewCleanupCoordinator creates a coordinator with the default grace delay.
func NewCleanupCoordinator(store *MatchStore) *CleanupCoordinator {
	return &CleanupCoordinator{Store: store, pending: make(map[string]bool)}
}

// OnSessionEnd schedules deletion of the match record, both active-session
// entries, and any leftover pool state for the participants. Scheduling the
// same match twice is a safe no-op.
func (cc *CleanupCoordinator) OnSessionEnd(matchID string, participantIDs []string) {
	if matchID == "" {
		return
	}
	cc.mu.Lock()
	if cc.pending == nil {
		cc.pending = make(map[string]bool)
	}
	if cc.pending[matchID] {
		cc.mu.Unlock()
		return
	}
	cc.pending[matchID] = true
	cc.mu.Unlock()

	grace := cc.Grace
	if grace <= 0 {
		grace = defaultCleanupGrace
	}
	log.Printf("[Cleanup] Cleaning up match %s in %s...", matchID, grace)
	time.AfterFunc(grace, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := cc.Store.Purge(ctx, matchID, participantIDs); err != nil {
			log.Printf("[Cleanup] ❌ Failed to purge match %s: %v", matchID, err)
		}
		cc.mu.Lock()
		delete(cc.pending, matchID)
		cc.mu.Unlock()
	})
}
