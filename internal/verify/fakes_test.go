package verify

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/uubinn0/Challengobi-sub000/internal/auth"
	"github.com/uubinn0/Challengobi-sub000/internal/clock"
	"github.com/uubinn0/Challengobi-sub000/internal/ledger"
	"github.com/uubinn0/Challengobi-sub000/internal/model"
)

const testAttestation = "저는 오늘 소비하지 않았습니다"

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeOCR struct {
	mu    sync.Mutex
	body  []byte
	err   error
	calls int
	gate  chan struct{} // when set, AnalyzeReceipt waits for it
}

func (f *fakeOCR) AnalyzeReceipt(ctx context.Context, _, _, _ string, _ []byte) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.body, f.err
}

type fakeLedger struct {
	mu      sync.Mutex
	commits []model.Commit
	totals  *model.LedgerTotals
	err     error
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeLedger) Commit(ctx context.Context, c model.Commit) (*model.LedgerTotals, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.commits = append(f.commits, c)
	return f.totals, nil
}

func (f *fakeLedger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commits)
}

type staticReader model.LedgerTotals

func (r staticReader) FetchLedger(context.Context, string) (model.LedgerTotals, error) {
	return model.LedgerTotals(r), nil
}

type memHistory struct {
	mu      sync.Mutex
	records []model.Verification
}

func (h *memHistory) RecordVerification(_ context.Context, v model.Verification) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, v)
	return nil
}

// harness wires the workflow against in-memory fakes.
type harness struct {
	clock      *clock.Fake
	store      *Store
	ocr        *fakeOCR
	ledger     *fakeLedger
	mirror     *ledger.Mirror
	history    *memHistory
	intake     *Intake
	editor     *Editor
	dispatcher *Dispatcher
}

func newHarness(t *testing.T, remaining int64) *harness {
	t.Helper()
	h := &harness{
		clock:   clock.NewFake(time.Date(2026, 3, 14, 21, 30, 0, 0, time.UTC)),
		ocr:     &fakeOCR{},
		ledger:  &fakeLedger{},
		history: &memHistory{},
	}
	h.store = NewStore(h.clock, 0)
	h.mirror = ledger.NewMirror(staticReader{TotalBudget: 100000, Remaining: remaining}, nil, h.clock, quietLogger())
	if _, err := h.mirror.Sync(context.Background(), "7"); err != nil {
		t.Fatalf("mirror sync: %v", err)
	}
	h.intake = NewIntake(h.store, h.ocr, auth.NewStatic("test-token"), testAttestation, quietLogger())
	h.editor = NewEditor(h.store, h.mirror)
	h.dispatcher = NewDispatcher(DispatcherConfig{
		Store:    h.store,
		Ledger:   h.ledger,
		Mirror:   h.mirror,
		History:  h.history,
		Clock:    h.clock,
		Location: time.UTC,
		Logger:   quietLogger(),
	})
	return h
}

func mustImage(t *testing.T) Image {
	t.Helper()
	img, err := NewImage("receipt.png", pngHeader)
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	return img
}

func authRejected() error { return auth.ErrRejected }
