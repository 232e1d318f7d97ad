package verify

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/uubinn0/Challengobi-sub000/internal/events"
	"github.com/uubinn0/Challengobi-sub000/internal/model"
)

func jwtWithExp(exp int64) string {
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(`{"alg":"none"}`)) + "." +
		enc.EncodeToString([]byte(fmt.Sprintf(`{"exp":%d}`, exp))) + ".sig"
}

func TestScenarioA_ReceiptSelectOne(t *testing.T) {
	h := newHarness(t, 30000)
	ctx := context.Background()
	h.ocr.body = []byte(`{"results":[{"store":"Cafe A","expense":4500},{"store":"Mart B","expense":12000}]}`)

	sess, err := h.intake.SubmitReceipt(ctx, "7", mustImage(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.editor.ToggleSelect("7", sess.Drafts[0].LocalID); err != nil {
		t.Fatal(err)
	}
	if got, _ := h.editor.RunningTotal("7"); got != 4500 {
		t.Errorf("RunningTotal = %d, want 4500", got)
	}

	out, err := h.dispatcher.Submit(ctx, "7")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(h.ledger.commits) != 1 {
		t.Fatalf("commits = %d, want 1", len(h.ledger.commits))
	}
	c := h.ledger.commits[0]
	want := model.LineItem{Store: "Cafe A", Amount: 4500, PaymentDate: "2026-03-14"}
	if len(c.Items) != 1 || c.Items[0] != want {
		t.Errorf("items = %+v, want [%+v]", c.Items, want)
	}
	if c.NoSpend {
		t.Error("receipt commit flagged no-spend")
	}
	if c.IdempotencyKey != sess.ID {
		t.Errorf("IdempotencyKey = %q, want session id %q", c.IdempotencyKey, sess.ID)
	}
	if out.Remaining != 25500 {
		t.Errorf("Remaining = %d, want 25500", out.Remaining)
	}
	if _, ok := h.store.Get("7"); ok {
		t.Error("session kept after successful submit")
	}
	if len(h.history.records) != 1 || h.history.records[0].Total != 4500 {
		t.Errorf("history = %+v", h.history.records)
	}
}

func TestScenarioB_TypedOverspendAllowed(t *testing.T) {
	h := newHarness(t, 30000)
	ctx := context.Background()

	if _, err := h.intake.SubmitTypedAmount(ctx, "7", "50000"); err != nil {
		t.Fatal(err)
	}
	if got, _ := h.editor.RemainingAfterSubmit("7"); got != -20000 {
		t.Errorf("RemainingAfterSubmit = %d, want -20000", got)
	}

	out, err := h.dispatcher.Submit(ctx, "7")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	c := h.ledger.commits[0]
	if len(c.Items) != 1 || c.Items[0].Store != TypedMerchant || c.Items[0].Amount != 50000 {
		t.Errorf("items = %+v", c.Items)
	}
	if out.Remaining != -20000 {
		t.Errorf("mirror Remaining = %d, want -20000", out.Remaining)
	}
}

func TestScenarioC_NoSpendMarker(t *testing.T) {
	h := newHarness(t, 30000)
	ctx := context.Background()

	if _, err := h.intake.SubmitNoSpend(ctx, "7", testAttestation); err != nil {
		t.Fatal(err)
	}
	out, err := h.dispatcher.Submit(ctx, "7")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	c := h.ledger.commits[0]
	if !c.NoSpend {
		t.Error("NoSpend = false, want marker")
	}
	if c.Items != nil {
		t.Errorf("Items = %#v, want nil alongside the marker", c.Items)
	}
	if r, _ := h.mirror.Remaining("7"); r != 30000 {
		t.Errorf("Remaining = %d, want unchanged 30000", r)
	}
	if out.Verification.Kind != "no_spend" {
		t.Errorf("Kind = %q, want no_spend", out.Verification.Kind)
	}
}

func TestDispatcher_EmptySelectionIsExplicit(t *testing.T) {
	h := newHarness(t, 30000)
	ctx := context.Background()
	h.ocr.body = []byte(`{"results":[{"store":"Cafe A","expense":4500}]}`)
	if _, err := h.intake.SubmitReceipt(ctx, "7", mustImage(t)); err != nil {
		t.Fatal(err)
	}
	if _, err := h.dispatcher.Submit(ctx, "7"); err != nil {
		t.Fatal(err)
	}
	c := h.ledger.commits[0]
	if c.Items == nil || len(c.Items) != 0 || c.NoSpend {
		t.Errorf("commit = %+v, want empty non-nil items without marker", c)
	}
}

func TestDispatcher_FailureKeepsEdits(t *testing.T) {
	h := newHarness(t, 30000)
	ctx := context.Background()
	h.ocr.body = []byte(`{"results":[{"store":"Cafe A","expense":4500}]}`)
	if _, err := h.intake.SubmitReceipt(ctx, "7", mustImage(t)); err != nil {
		t.Fatal(err)
	}
	if _, err := h.editor.EditAmount("7", 1, 5200); err != nil {
		t.Fatal(err)
	}
	if _, err := h.editor.ToggleSelect("7", 1); err != nil {
		t.Fatal(err)
	}

	h.ledger.err = errors.New("502 bad gateway")
	if _, err := h.dispatcher.Submit(ctx, "7"); !errors.Is(err, ErrSubmissionFailed) {
		t.Fatalf("err = %v, want ErrSubmissionFailed", err)
	}
	sess, ok := h.store.Get("7")
	if !ok || sess.State != StateReady || sess.Submitting {
		t.Fatalf("session after failure = %+v, %v", sess, ok)
	}
	if d := sess.Drafts[0]; d.Amount != 5200 || !d.Selected {
		t.Errorf("draft after failure = %+v, want edits kept", d)
	}
	if r, _ := h.mirror.Remaining("7"); r != 30000 {
		t.Errorf("mirror debited on failure: %d", r)
	}

	h.ledger.err = nil
	if _, err := h.dispatcher.Submit(ctx, "7"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if h.ledger.commits[0].Items[0].Amount != 5200 {
		t.Errorf("retry amount = %d, want 5200", h.ledger.commits[0].Items[0].Amount)
	}
}

func TestDispatcher_AuthFailureKeepsSession(t *testing.T) {
	h := newHarness(t, 30000)
	ctx := context.Background()
	if _, err := h.intake.SubmitTypedAmount(ctx, "7", "1000"); err != nil {
		t.Fatal(err)
	}
	h.ledger.err = fmt.Errorf("commit: %w", errors.Join(errors.New("401"), authRejected()))

	if _, err := h.dispatcher.Submit(ctx, "7"); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("err = %v, want ErrAuthRequired", err)
	}
	if _, ok := h.store.Get("7"); !ok {
		t.Error("session cleared after auth failure")
	}
}

func TestDispatcher_ConcurrentSubmitCommitsOnce(t *testing.T) {
	h := newHarness(t, 30000)
	ctx := context.Background()
	if _, err := h.intake.SubmitTypedAmount(ctx, "7", "1000"); err != nil {
		t.Fatal(err)
	}
	h.ledger.gate = make(chan struct{})
	h.ledger.entered = make(chan struct{}, 1)

	first := make(chan error, 1)
	go func() {
		_, err := h.dispatcher.Submit(ctx, "7")
		first <- err
	}()
	<-h.ledger.entered

	var wg sync.WaitGroup
	rejected := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.dispatcher.Submit(ctx, "7")
			rejected <- err
		}()
	}
	wg.Wait()
	close(rejected)
	for err := range rejected {
		if !errors.Is(err, ErrSubmitInFlight) {
			t.Errorf("concurrent submit err = %v, want ErrSubmitInFlight", err)
		}
	}

	close(h.ledger.gate)
	if err := <-first; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if n := h.ledger.count(); n != 1 {
		t.Errorf("commits = %d, want 1", n)
	}
}

func TestDispatcher_NoSession(t *testing.T) {
	h := newHarness(t, 30000)
	if _, err := h.dispatcher.Submit(context.Background(), "7"); !errors.Is(err, ErrNoSession) {
		t.Errorf("err = %v, want ErrNoSession", err)
	}
}

func TestDispatcher_ServerTotalsWin(t *testing.T) {
	h := newHarness(t, 30000)
	ctx := context.Background()
	h.ledger.totals = &model.LedgerTotals{TotalBudget: 100000, Remaining: 28000}
	if _, err := h.intake.SubmitTypedAmount(ctx, "7", "1000"); err != nil {
		t.Fatal(err)
	}
	out, err := h.dispatcher.Submit(ctx, "7")
	if err != nil {
		t.Fatal(err)
	}
	if out.Remaining != 28000 {
		t.Errorf("Remaining = %d, want server value 28000", out.Remaining)
	}
	m, _ := h.mirror.Snapshot("7")
	if m.PendingDebit != 0 {
		t.Errorf("PendingDebit = %d, want 0 after authoritative totals", m.PendingDebit)
	}
}

func TestDispatcher_PublishesEvent(t *testing.T) {
	h := newHarness(t, 30000)
	ctx := context.Background()

	var got []events.ExpenseVerified
	h.dispatcher = NewDispatcher(DispatcherConfig{
		Store:    h.store,
		Ledger:   h.ledger,
		Mirror:   h.mirror,
		Clock:    h.clock,
		Location: time.UTC,
		Logger:   quietLogger(),
		Events: events.PublisherFunc(func(_ context.Context, topic string, ev any) error {
			if topic != events.TopicExpenseVerified {
				t.Errorf("topic = %q", topic)
			}
			got = append(got, ev.(events.ExpenseVerified))
			return errors.New("broker unavailable")
		}),
	})

	if _, err := h.intake.SubmitTypedAmount(ctx, "7", "2000"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.dispatcher.Submit(ctx, "7"); err != nil {
		t.Fatalf("Submit failed because of publisher: %v", err)
	}
	if len(got) != 1 || got[0].Total != 2000 || got[0].Remaining == nil || *got[0].Remaining != 28000 {
		t.Errorf("events = %+v", got)
	}
}

func TestBuildCommit_DayInLocation(t *testing.T) {
	seoul := time.FixedZone("KST", 9*3600)
	late := time.Date(2026, 3, 14, 16, 0, 0, 0, time.UTC) // 01:00 next day in Seoul
	c := BuildCommit(Session{ID: "s", ChallengeID: "7", Kind: KindTypedAmount, TypedAmount: 10}, late.In(seoul))
	if c.Day != "2026-03-15" || c.Items[0].PaymentDate != "2026-03-15" {
		t.Errorf("day = %q / %q, want 2026-03-15", c.Day, c.Items[0].PaymentDate)
	}
}
