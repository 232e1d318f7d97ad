package verify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/uubinn0/Challengobi-sub000/internal/model"
)

// BudgetMirror is the local view of a challenge's ledger that the editor
// previews against and the dispatcher debits.
type BudgetMirror interface {
	Remaining(challengeID string) (int64, bool)
	ApplyDebit(ctx context.Context, challengeID string, amount int64) (model.LedgerMirror, bool)
	Observe(ctx context.Context, challengeID string, totals model.LedgerTotals) model.LedgerMirror
}

// Editor applies user edits to a challenge's Ready session.
type Editor struct {
	store  *Store
	mirror BudgetMirror
}

// NewEditor returns an editor over store. mirror may be nil, in which
// case remaining-budget previews report ErrLedgerUnknown.
func NewEditor(store *Store, mirror BudgetMirror) *Editor {
	return &Editor{store: store, mirror: mirror}
}

// Session returns the challenge's Ready session.
func (e *Editor) Session(challengeID string) (Session, error) {
	return e.store.view(challengeID)
}

// ToggleSelect flips whether the draft is included in the submission.
func (e *Editor) ToggleSelect(challengeID string, localID int) (model.ExpenseDraft, error) {
	return e.editDraft(challengeID, localID, func(d *model.ExpenseDraft) {
		d.Selected = !d.Selected
	})
}

// SetSelected marks the draft as included or excluded.
func (e *Editor) SetSelected(challengeID string, localID int, selected bool) (model.ExpenseDraft, error) {
	return e.editDraft(challengeID, localID, func(d *model.ExpenseDraft) {
		d.Selected = selected
	})
}

// EditAmount replaces the draft's amount. Editing never changes selection.
func (e *Editor) EditAmount(challengeID string, localID int, amount int64) (model.ExpenseDraft, error) {
	if !model.ValidAmount(amount) {
		return model.ExpenseDraft{}, fmt.Errorf("%w: %d out of range", ErrInvalidAmount, amount)
	}
	return e.editDraft(challengeID, localID, func(d *model.ExpenseDraft) {
		d.Amount = amount
	})
}

// ResetAmount restores the draft's recognized amount.
func (e *Editor) ResetAmount(challengeID string, localID int) (model.ExpenseDraft, error) {
	return e.editDraft(challengeID, localID, func(d *model.ExpenseDraft) {
		d.Amount = d.OriginalAmount
	})
}

func (e *Editor) editDraft(challengeID string, localID int, fn func(*model.ExpenseDraft)) (model.ExpenseDraft, error) {
	var out model.ExpenseDraft
	_, err := e.store.update(challengeID, func(s *Session) error {
		if s.Kind != KindReceiptOCR {
			return ErrWrongKind
		}
		i := s.draft(localID)
		if i < 0 {
			return fmt.Errorf("%w: %d", ErrUnknownDraft, localID)
		}
		fn(&s.Drafts[i])
		out = s.Drafts[i]
		return nil
	})
	return out, err
}

// RunningTotal is the sum of selected amounts, the typed amount, or zero
// for a no-spend session.
func (e *Editor) RunningTotal(challengeID string) (int64, error) {
	s, err := e.store.view(challengeID)
	if err != nil {
		return 0, err
	}
	return s.RunningTotal(), nil
}

// RemainingAfterSubmit previews the mirror's remaining budget after the
// running total is committed. The result may be negative.
func (e *Editor) RemainingAfterSubmit(challengeID string) (int64, error) {
	total, err := e.RunningTotal(challengeID)
	if err != nil {
		return 0, err
	}
	if e.mirror == nil {
		return 0, ErrLedgerUnknown
	}
	remaining, ok := e.mirror.Remaining(challengeID)
	if !ok {
		return 0, ErrLedgerUnknown
	}
	return remaining - total, nil
}

// Overspend reports whether submitting now would take the budget below
// zero. It is informational; submission is never blocked by it.
func (e *Editor) Overspend(challengeID string) (bool, error) {
	after, err := e.RemainingAfterSubmit(challengeID)
	if err != nil {
		return false, err
	}
	return after < 0, nil
}

// ParseAmountInput converts edit-field text into an amount. Grouping
// commas, spaces, and a trailing 원 are accepted.
func ParseAmountInput(s string) (int64, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimSuffix(cleaned, "원")
	cleaned = strings.NewReplacer(",", "", " ", "").Replace(cleaned)
	if cleaned == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	for _, c := range cleaned {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
	}
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil || !model.ValidAmount(n) {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidAmount, s)
	}
	return n, nil
}
