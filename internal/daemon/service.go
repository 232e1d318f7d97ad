// Package daemon serves the verification workflow over a local HTTP API
// so a UI process can drive intake, editing, and submission while the
// session store lives in one long-running process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/uubinn0/Challengobi-sub000/internal/model"
	"github.com/uubinn0/Challengobi-sub000/internal/verify"
)

// Event types emitted by the daemon itself.
const (
	EventLedgerSynced = "ledger.synced"
	EventLedgerDelta  = "ledger.delta"
	EventSessionReady = "session.ready"
)

// Config controls the daemon runtime behavior.
type Config struct {
	Addr         string
	Interval     time.Duration
	EventsBuffer int
	// Watch lists challenge ids whose ledgers are resynced every Interval.
	Watch []string
}

// LedgerSyncer is the ledger mirror as the daemon uses it.
type LedgerSyncer interface {
	Sync(ctx context.Context, challengeID string) (model.LedgerMirror, error)
	Snapshot(challengeID string) (model.LedgerMirror, bool)
}

// HistoryReader lists recorded verifications.
type HistoryReader interface {
	ListVerifications(ctx context.Context, challengeID string, limit int) ([]model.Verification, error)
}

// Workflow bundles the verification components the API drives.
type Workflow struct {
	Store      *verify.Store
	Intake     *verify.Intake
	Editor     *verify.Editor
	Dispatcher *verify.Dispatcher
	Ledger     LedgerSyncer
	History    HistoryReader
}

// Delta captures how a watched ledger moved between syncs.
type Delta struct {
	TotalBudget int64 `json:"total_budget"`
	Remaining   int64 `json:"remaining"`
}

func (d Delta) isZero() bool {
	return d.TotalBudget == 0 && d.Remaining == 0
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time            `json:"started_at"`
	LastSyncAt      time.Time            `json:"last_sync_at"`
	SyncIntervalSec int                  `json:"sync_interval_sec"`
	SyncCount       int64                `json:"sync_count"`
	Watch           []string             `json:"watch,omitempty"`
	Ledgers         []model.LedgerMirror `json:"ledgers"`
	Sessions        int                  `json:"sessions"`
	LastError       string               `json:"last_error,omitempty"`
	EventCount      int                  `json:"event_count"`
	SubscriberCount int                  `json:"subscriber_count"`
}

// Service provides the daemon runtime and HTTP API.
type Service struct {
	cfg    Config
	wf     Workflow
	log    *EventLog
	logger *slog.Logger

	mu         sync.RWMutex
	startedAt  time.Time
	lastSyncAt time.Time
	syncCount  int64
	lastError  string
	known      map[string]model.LedgerMirror
}

// New returns a daemon service. log receives the daemon's own events and
// should also be the dispatcher's publisher so verifications show up on
// the stream.
func New(cfg Config, wf Workflow, log *EventLog, logger *slog.Logger) *Service {
	if cfg.Interval > 0 && cfg.Interval < 2*time.Second {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8788"
	}
	if log == nil {
		log = NewEventLog(cfg.EventsBuffer)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		cfg:       cfg,
		wf:        wf,
		log:       log,
		logger:    logger,
		startedAt: time.Now(),
		known:     make(map[string]model.LedgerMirror),
	}
}

// Run starts HTTP endpoints and ledger syncing until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Seed watched ledgers so status is useful immediately.
	s.syncOnce(ctx)

	var tick <-chan time.Time
	if s.cfg.Interval > 0 && len(s.cfg.Watch) > 0 {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case <-tick:
			s.syncOnce(ctx)
		case err := <-errCh:
			return fmt.Errorf("daemon http server: %w", err)
		}
	}
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	mux.HandleFunc("GET /v1/history", s.handleHistory)
	mux.HandleFunc("GET /v1/attestation", s.handleAttestation)

	mux.HandleFunc("GET /v1/challenges/{id}/ledger", s.handleLedger)
	mux.HandleFunc("POST /v1/challenges/{id}/evidence/receipt", s.handleReceipt)
	mux.HandleFunc("POST /v1/challenges/{id}/evidence/amount", s.handleTypedAmount)
	mux.HandleFunc("POST /v1/challenges/{id}/evidence/no-spend", s.handleNoSpend)
	mux.HandleFunc("GET /v1/challenges/{id}/session", s.handleSession)
	mux.HandleFunc("DELETE /v1/challenges/{id}/session", s.handleClearSession)
	mux.HandleFunc("POST /v1/challenges/{id}/drafts/{local}/toggle", s.handleToggle)
	mux.HandleFunc("PUT /v1/challenges/{id}/drafts/{local}/amount", s.handleEditAmount)
	mux.HandleFunc("POST /v1/challenges/{id}/drafts/{local}/reset", s.handleReset)
	mux.HandleFunc("POST /v1/challenges/{id}/submit", s.handleSubmit)
	return mux
}

// syncOnce resyncs every watched ledger and emits an event per change.
func (s *Service) syncOnce(ctx context.Context) {
	if s.wf.Ledger == nil {
		return
	}
	for _, id := range s.cfg.Watch {
		s.syncLedger(ctx, id)
	}
}

func (s *Service) syncLedger(ctx context.Context, challengeID string) (model.LedgerMirror, error) {
	mirror, err := s.wf.Ledger.Sync(ctx, challengeID)
	now := time.Now()
	if err != nil {
		s.mu.Lock()
		s.lastError = err.Error()
		s.lastSyncAt = now
		s.syncCount++
		s.mu.Unlock()
		s.logger.Warn("ledger sync failed", "challenge", challengeID, "error", err)
		return model.LedgerMirror{}, err
	}

	var (
		ev      Event
		publish bool
	)

	s.mu.Lock()
	prev, prevExists := s.known[challengeID]
	s.known[challengeID] = mirror
	s.lastSyncAt = now
	s.syncCount++
	s.lastError = ""

	if !prevExists {
		ev = Event{Type: EventLedgerSynced, ChallengeID: challengeID, Payload: mirror}
		publish = true
	} else if delta := diffMirrors(prev, mirror); !delta.isZero() {
		ev = Event{Type: EventLedgerDelta, ChallengeID: challengeID, Payload: map[string]any{
			"ledger": mirror,
			"delta":  delta,
		}}
		publish = true
	}
	s.mu.Unlock()

	if publish {
		s.log.Append(ev)
	}
	return mirror, nil
}

func diffMirrors(prev, curr model.LedgerMirror) Delta {
	return Delta{
		TotalBudget: curr.TotalBudget - prev.TotalBudget,
		Remaining:   curr.Remaining - prev.Remaining,
	}
}

func (s *Service) snapshotStatus() Status {
	s.mu.RLock()
	st := Status{
		StartedAt:       s.startedAt,
		LastSyncAt:      s.lastSyncAt,
		SyncIntervalSec: int(s.cfg.Interval.Seconds()),
		SyncCount:       s.syncCount,
		Watch:           s.cfg.Watch,
		LastError:       s.lastError,
		Ledgers:         make([]model.LedgerMirror, 0, len(s.known)),
	}
	ids := make([]string, 0, len(s.known))
	for id := range s.known {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	// Report the mirror's current view, which includes local debits.
	sort.Strings(ids)
	for _, id := range ids {
		if m, ok := s.wf.Ledger.Snapshot(id); ok {
			st.Ledgers = append(st.Ledgers, m)
		}
	}
	if s.wf.Store != nil {
		st.Sessions = s.wf.Store.Len()
	}
	st.EventCount, st.SubscriberCount = s.log.Counts()
	return st
}
