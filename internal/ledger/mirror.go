// Package ledger keeps the client's mirror of each challenge's budget.
//
// The server is authoritative. A read overwrites the mirror; a successful
// submission debits it optimistically until the next read.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/uubinn0/Challengobi-sub000/internal/clock"
	"github.com/uubinn0/Challengobi-sub000/internal/model"
)

// Reader fetches a challenge's authoritative ledger totals.
type Reader interface {
	FetchLedger(ctx context.Context, challengeID string) (model.LedgerTotals, error)
}

// Cache persists mirrors between runs.
type Cache interface {
	SaveMirror(ctx context.Context, m model.LedgerMirror) error
	LoadMirror(ctx context.Context, challengeID string) (model.LedgerMirror, bool, error)
}

// Mirror holds the local projection of every challenge ledger seen so far.
// It is safe for concurrent use.
type Mirror struct {
	reader Reader
	cache  Cache
	clock  clock.Clock
	log    *slog.Logger

	mu      sync.RWMutex
	mirrors map[string]model.LedgerMirror
}

// NewMirror returns a mirror backed by reader. cache may be nil.
func NewMirror(reader Reader, cache Cache, c clock.Clock, logger *slog.Logger) *Mirror {
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		reader:  reader,
		cache:   cache,
		clock:   c,
		log:     logger,
		mirrors: make(map[string]model.LedgerMirror),
	}
}

// Sync reads the challenge's ledger from the server and overwrites the
// mirror with it.
func (m *Mirror) Sync(ctx context.Context, challengeID string) (model.LedgerMirror, error) {
	if m.reader == nil {
		return model.LedgerMirror{}, fmt.Errorf("ledger: no reader configured")
	}
	totals, err := m.reader.FetchLedger(ctx, challengeID)
	if err != nil {
		return model.LedgerMirror{}, fmt.Errorf("reading ledger for challenge %s: %w", challengeID, err)
	}
	return m.Observe(ctx, challengeID, totals), nil
}

// Get syncs the challenge and falls back to the last known mirror when
// the server cannot be reached. The returned error is non-nil only when
// no mirror is known at all.
func (m *Mirror) Get(ctx context.Context, challengeID string) (model.LedgerMirror, error) {
	mirror, err := m.Sync(ctx, challengeID)
	if err == nil {
		return mirror, nil
	}
	if cached, ok := m.Snapshot(challengeID); ok {
		m.log.Warn("using cached ledger", "challenge", challengeID, "error", err)
		return cached, nil
	}
	if cached, ok := m.loadCached(ctx, challengeID); ok {
		m.log.Warn("using persisted ledger", "challenge", challengeID, "synced_at", cached.LastSyncedAt, "error", err)
		return cached, nil
	}
	return model.LedgerMirror{}, err
}

// Observe records authoritative totals, discarding any pending debit.
func (m *Mirror) Observe(ctx context.Context, challengeID string, totals model.LedgerTotals) model.LedgerMirror {
	mirror := model.LedgerMirror{
		ChallengeID:  challengeID,
		TotalBudget:  max(totals.TotalBudget, 0),
		Remaining:    totals.Remaining,
		LastSyncedAt: m.clock.Now(),
	}

	m.mu.Lock()
	m.mirrors[challengeID] = mirror
	m.mu.Unlock()

	m.persist(ctx, mirror)
	return mirror
}

// ApplyDebit subtracts a committed amount from the mirror. It reports
// false when the challenge has never been synced.
func (m *Mirror) ApplyDebit(ctx context.Context, challengeID string, amount int64) (model.LedgerMirror, bool) {
	m.mu.Lock()
	mirror, ok := m.mirrors[challengeID]
	if !ok {
		m.mu.Unlock()
		return model.LedgerMirror{}, false
	}
	mirror.Remaining -= amount
	mirror.PendingDebit += amount
	m.mirrors[challengeID] = mirror
	m.mu.Unlock()

	m.persist(ctx, mirror)
	return mirror, true
}

// Snapshot returns the in-memory mirror without contacting the server.
func (m *Mirror) Snapshot(challengeID string) (model.LedgerMirror, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mirror, ok := m.mirrors[challengeID]
	return mirror, ok
}

// Remaining returns the mirrored remaining budget.
func (m *Mirror) Remaining(challengeID string) (int64, bool) {
	mirror, ok := m.Snapshot(challengeID)
	return mirror.Remaining, ok
}

func (m *Mirror) loadCached(ctx context.Context, challengeID string) (model.LedgerMirror, bool) {
	if m.cache == nil {
		return model.LedgerMirror{}, false
	}
	cached, ok, err := m.cache.LoadMirror(ctx, challengeID)
	if err != nil {
		m.log.Debug("loading persisted ledger", "challenge", challengeID, "error", err)
		return model.LedgerMirror{}, false
	}
	if !ok {
		return model.LedgerMirror{}, false
	}

	m.mu.Lock()
	if _, exists := m.mirrors[challengeID]; !exists {
		m.mirrors[challengeID] = cached
	}
	m.mu.Unlock()
	return cached, true
}

func (m *Mirror) persist(ctx context.Context, mirror model.LedgerMirror) {
	if m.cache == nil {
		return
	}
	if err := m.cache.SaveMirror(ctx, mirror); err != nil {
		m.log.Debug("persisting ledger mirror", "challenge", mirror.ChallengeID, "error", err)
	}
}
