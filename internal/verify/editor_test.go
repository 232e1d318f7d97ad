package verify

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/uubinn0/Challengobi-sub000/internal/model"
)

func readyReceipt(t *testing.T, s *Store, challengeID string, amounts ...int64) {
	t.Helper()
	drafts := make([]model.ExpenseDraft, len(amounts))
	for i, a := range amounts {
		drafts[i] = model.NewDraft(i+1, "store", "", a)
	}
	if _, err := s.Resolve(s.Begin(challengeID, KindReceiptOCR), drafts, 0); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
}

func TestEditor_RunningTotalAnyOrder(t *testing.T) {
	amounts := []int64{4500, 12000, 0, 800, 31000, 2500}
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		s := NewStore(nil, 0)
		e := NewEditor(s, nil)
		readyReceipt(t, s, "7", amounts...)

		for step := 0; step < 40; step++ {
			id := rng.Intn(len(amounts)) + 1
			switch rng.Intn(3) {
			case 0:
				if _, err := e.ToggleSelect("7", id); err != nil {
					t.Fatalf("ToggleSelect: %v", err)
				}
			case 1:
				if _, err := e.EditAmount("7", id, rng.Int63n(50000)); err != nil {
					t.Fatalf("EditAmount: %v", err)
				}
			case 2:
				if _, err := e.ResetAmount("7", id); err != nil {
					t.Fatalf("ResetAmount: %v", err)
				}
			}

			sess, err := e.Session("7")
			if err != nil {
				t.Fatal(err)
			}
			var want int64
			for _, d := range sess.Drafts {
				if d.Selected {
					want += d.Amount
				}
			}
			got, err := e.RunningTotal("7")
			if err != nil {
				t.Fatal(err)
			}
			if got != want {
				t.Fatalf("round %d step %d: RunningTotal = %d, want %d", round, step, got, want)
			}
		}
	}
}

func TestEditor_NothingSelected(t *testing.T) {
	s := NewStore(nil, 0)
	e := NewEditor(s, nil)
	readyReceipt(t, s, "7", 4500, 12000)

	if got, _ := e.RunningTotal("7"); got != 0 {
		t.Errorf("RunningTotal = %d, want 0", got)
	}
}

func TestEditor_EditNeverSelectsAndResetRestores(t *testing.T) {
	s := NewStore(nil, 0)
	e := NewEditor(s, nil)
	readyReceipt(t, s, "7", 4500)

	d, err := e.EditAmount("7", 1, 5000)
	if err != nil {
		t.Fatal(err)
	}
	if d.Selected {
		t.Error("EditAmount selected the draft")
	}
	if d.Amount != 5000 || d.OriginalAmount != 4500 || !d.Edited() {
		t.Errorf("after edit = %+v", d)
	}

	d, err = e.ResetAmount("7", 1)
	if err != nil {
		t.Fatal(err)
	}
	if d.Amount != 4500 || d.Edited() {
		t.Errorf("after reset = %+v", d)
	}
}

func TestEditor_Errors(t *testing.T) {
	s := NewStore(nil, 0)
	e := NewEditor(s, nil)

	if _, err := e.ToggleSelect("7", 1); !errors.Is(err, ErrNoSession) {
		t.Errorf("no session: err = %v, want ErrNoSession", err)
	}

	readyReceipt(t, s, "7", 4500)
	if _, err := e.ToggleSelect("7", 9); !errors.Is(err, ErrUnknownDraft) {
		t.Errorf("unknown id: err = %v, want ErrUnknownDraft", err)
	}
	if _, err := e.EditAmount("7", 1, -1); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative: err = %v, want ErrInvalidAmount", err)
	}
	if _, err := e.RemainingAfterSubmit("7"); !errors.Is(err, ErrLedgerUnknown) {
		t.Errorf("no mirror: err = %v, want ErrLedgerUnknown", err)
	}

	if _, err := s.Resolve(s.Begin("8", KindTypedAmount), nil, 500); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ToggleSelect("8", 1); !errors.Is(err, ErrWrongKind) {
		t.Errorf("typed session: err = %v, want ErrWrongKind", err)
	}
}

func TestEditor_EditAmountBoundsKeepTotalsSane(t *testing.T) {
	h := newHarness(t, 30000)
	readyReceipt(t, h.store, "7", 4500, 12000)

	for _, amount := range []int64{math.MaxInt64, model.MaxAmount + 1} {
		if _, err := h.editor.EditAmount("7", 1, amount); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("EditAmount(%d) err = %v, want ErrInvalidAmount", amount, err)
		}
	}
	sess, _ := h.editor.Session("7")
	if sess.Drafts[0].Amount != 4500 {
		t.Errorf("rejected edit mutated draft: Amount = %d, want 4500", sess.Drafts[0].Amount)
	}

	if _, err := h.editor.EditAmount("7", 1, model.MaxAmount); err != nil {
		t.Fatalf("EditAmount(MaxAmount): %v", err)
	}
	if _, err := h.editor.EditAmount("7", 2, model.MaxAmount); err != nil {
		t.Fatalf("EditAmount(MaxAmount): %v", err)
	}
	for _, id := range []int{1, 2} {
		if _, err := h.editor.SetSelected("7", id, true); err != nil {
			t.Fatal(err)
		}
	}

	total, err := h.editor.RunningTotal("7")
	if err != nil {
		t.Fatal(err)
	}
	if total != 2*model.MaxAmount {
		t.Errorf("RunningTotal = %d, want %d", total, 2*model.MaxAmount)
	}
	after, err := h.editor.RemainingAfterSubmit("7")
	if err != nil {
		t.Fatal(err)
	}
	if after != 30000-2*model.MaxAmount {
		t.Errorf("RemainingAfterSubmit = %d, want %d", after, 30000-2*model.MaxAmount)
	}
	if over, _ := h.editor.Overspend("7"); !over {
		t.Error("Overspend = false, want true")
	}
}

func TestEditor_RejectsEditsWhileSubmitting(t *testing.T) {
	s := NewStore(nil, 0)
	e := NewEditor(s, nil)
	readyReceipt(t, s, "7", 4500)

	sess, err := s.beginSubmit("7")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.ToggleSelect("7", 1); !errors.Is(err, ErrSubmitInFlight) {
		t.Errorf("err = %v, want ErrSubmitInFlight", err)
	}
	if _, err := e.RunningTotal("7"); err != nil {
		t.Errorf("RunningTotal while submitting: %v", err)
	}

	s.endSubmit("7", sess.ID, false)
	if _, err := e.ToggleSelect("7", 1); err != nil {
		t.Errorf("after failed submit: %v", err)
	}
}

func TestEditor_RemainingAfterSubmit(t *testing.T) {
	h := newHarness(t, 30000)
	if _, err := h.intake.SubmitTypedAmount(context.Background(), "7", "50000"); err != nil {
		t.Fatal(err)
	}
	got, err := h.editor.RemainingAfterSubmit("7")
	if err != nil {
		t.Fatal(err)
	}
	if got != -20000 {
		t.Errorf("RemainingAfterSubmit = %d, want -20000", got)
	}
	if over, _ := h.editor.Overspend("7"); !over {
		t.Error("Overspend = false, want true")
	}
}

func TestParseAmountInput(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"4500", 4500, true},
		{"4,500", 4500, true},
		{" 12 000 원", 12000, true},
		{"0", 0, true},
		{"", 0, false},
		{"-5", 0, false},
		{"4.5", 0, false},
		{"abc", 0, false},
		{"99999999999999999999", 0, false},
		{"1,000,000,000,000,000", model.MaxAmount, true},
		{"1000000000000001", 0, false},
		{"9223372036854775807", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseAmountInput(tt.in)
		if tt.ok != (err == nil) {
			t.Errorf("ParseAmountInput(%q) err = %v, want ok=%v", tt.in, err, tt.ok)
			continue
		}
		if !tt.ok && !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("ParseAmountInput(%q) err = %v, want ErrInvalidAmount", tt.in, err)
		}
		if tt.ok && got != tt.want {
			t.Errorf("ParseAmountInput(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
