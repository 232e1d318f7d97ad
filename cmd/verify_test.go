package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/uubinn0/Challengobi-sub000/internal/clock"
	"github.com/uubinn0/Challengobi-sub000/internal/ledger"
	"github.com/uubinn0/Challengobi-sub000/internal/model"
	"github.com/uubinn0/Challengobi-sub000/internal/verify"
)

const testChallenge = "7"

func newTestEditor(t *testing.T, amounts ...int64) *verify.Editor {
	t.Helper()
	return verify.NewEditor(newTestStore(t, amounts...), ledger.NewMirror(nil, nil, nil, nil))
}

func newTestStore(t *testing.T, amounts ...int64) *verify.Store {
	t.Helper()
	store := verify.NewStore(clock.NewFake(clock.Real().Now()), 0)
	drafts := make([]model.ExpenseDraft, 0, len(amounts))
	for i, a := range amounts {
		drafts = append(drafts, model.NewDraft(i+1, "가게", "", a))
	}
	ticket := store.Begin(testChallenge, verify.KindReceiptOCR)
	if _, err := store.Resolve(ticket, drafts, 0); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return store
}

func TestApplyDraftFlags(t *testing.T) {
	tests := []struct {
		name      string
		sel       string
		edits     []string
		wantCount int
		wantTotal int64
	}{
		{"nothing", "", nil, 0, 0},
		{"all", "all", nil, 3, 17500},
		{"ids", "1, 3", nil, 2, 5500},
		{"edit selected", "2", []string{"2=10,000"}, 1, 10000},
		{"edit unselected", "1", []string{"3=9000원"}, 1, 4500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ed := newTestEditor(t, 4500, 12000, 1000)
			if err := applyDraftFlags(ed, testChallenge, tt.sel, tt.edits); err != nil {
				t.Fatalf("applyDraftFlags: %v", err)
			}
			sess, err := ed.Session(testChallenge)
			if err != nil {
				t.Fatalf("Session: %v", err)
			}
			if got := sess.SelectedCount(); got != tt.wantCount {
				t.Errorf("SelectedCount = %d, want %d", got, tt.wantCount)
			}
			if got := sess.RunningTotal(); got != tt.wantTotal {
				t.Errorf("RunningTotal = %d, want %d", got, tt.wantTotal)
			}
		})
	}
}

func TestApplyDraftFlags_Errors(t *testing.T) {
	tests := []struct {
		name    string
		sel     string
		edits   []string
		wantErr error
	}{
		{"bad select", "one", nil, nil},
		{"unknown id", "9", nil, verify.ErrUnknownDraft},
		{"edit missing separator", "", []string{"1:500"}, nil},
		{"edit bad amount", "", []string{"1=abc"}, verify.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ed := newTestEditor(t, 4500)
			err := applyDraftFlags(ed, testChallenge, tt.sel, tt.edits)
			if err == nil {
				t.Fatal("applyDraftFlags succeeded, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFormatCountdown(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{-time.Minute, "now"},
		{45 * time.Minute, "45m"},
		{3*time.Hour + 5*time.Minute, "3h 5m"},
		{50 * time.Hour, "2d 2h"},
	}
	for _, tt := range tests {
		if got := formatCountdown(tt.in); got != tt.want {
			t.Errorf("formatCountdown(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// flakyLedger fails its first `failures` commits and records the rest.
type flakyLedger struct {
	failures int
	calls    int
	commits  []model.Commit
}

func (f *flakyLedger) Commit(_ context.Context, c model.Commit) (*model.LedgerTotals, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection reset")
	}
	f.commits = append(f.commits, c)
	return nil, nil
}

func newTestDispatcher(store *verify.Store, l verify.LedgerCommitter) *verify.Dispatcher {
	return verify.NewDispatcher(verify.DispatcherConfig{
		Store:    store,
		Ledger:   l,
		Location: time.UTC,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestSubmitWithRetry_KeepsEditsAcrossFailure(t *testing.T) {
	store := newTestStore(t, 4500, 12000)
	ed := verify.NewEditor(store, nil)
	if err := applyDraftFlags(ed, testChallenge, "1", []string{"1=5,000"}); err != nil {
		t.Fatalf("applyDraftFlags: %v", err)
	}

	backend := &flakyLedger{failures: 1}
	asked := 0
	ask := func(err error) (bool, error) {
		asked++
		if !errors.Is(err, verify.ErrSubmissionFailed) {
			t.Errorf("ask err = %v, want ErrSubmissionFailed", err)
		}
		return true, nil
	}

	out, err := submitWithRetry(context.Background(), newTestDispatcher(store, backend), testChallenge, ask)
	if err != nil {
		t.Fatalf("submitWithRetry: %v", err)
	}
	if asked != 1 || backend.calls != 2 {
		t.Errorf("asked = %d, calls = %d, want 1 and 2", asked, backend.calls)
	}
	if len(backend.commits) != 1 {
		t.Fatalf("commits = %d, want 1", len(backend.commits))
	}
	if got := backend.commits[0].Total(); got != 5000 {
		t.Errorf("committed total = %d, want 5000", got)
	}
	if out.Verification.Total != 5000 {
		t.Errorf("outcome total = %d, want 5000", out.Verification.Total)
	}
	if _, ok := store.Get(testChallenge); ok {
		t.Error("session still stored after a successful retry")
	}
}

func TestSubmitWithRetry_GiveUpKeepsSession(t *testing.T) {
	tests := []struct {
		name string
		ask  func(error) (bool, error)
	}{
		{"non-interactive", nil},
		{"declined", func(error) (bool, error) { return false, nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t, 4500)
			backend := &flakyLedger{failures: 5}

			_, err := submitWithRetry(context.Background(), newTestDispatcher(store, backend), testChallenge, tt.ask)
			if !errors.Is(err, verify.ErrSubmissionFailed) {
				t.Fatalf("err = %v, want ErrSubmissionFailed", err)
			}
			if backend.calls != 1 {
				t.Errorf("calls = %d, want 1", backend.calls)
			}
			if _, ok := store.Get(testChallenge); !ok {
				t.Error("session dropped after a failed submit")
			}
		})
	}
}

func TestSubmitWithRetry_DoesNotRetryOtherErrors(t *testing.T) {
	store := verify.NewStore(nil, 0)
	asked := false
	ask := func(error) (bool, error) {
		asked = true
		return true, nil
	}
	_, err := submitWithRetry(context.Background(), newTestDispatcher(store, &flakyLedger{}), testChallenge, ask)
	if !errors.Is(err, verify.ErrNoSession) {
		t.Errorf("err = %v, want ErrNoSession", err)
	}
	if asked {
		t.Error("asked to retry a non-retryable error")
	}
}
