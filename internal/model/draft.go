// Package model defines the domain types shared by the verification workflow.
package model

// MaxAmount is the largest amount, in won, a single draft or typed total
// may carry. Sums over any realistic number of drafts stay within int64.
const MaxAmount int64 = 1_000_000_000_000_000

// ValidAmount reports whether n is within 0..MaxAmount.
func ValidAmount(n int64) bool {
	return n >= 0 && n <= MaxAmount
}

// ExpenseDraft is a candidate expense awaiting user confirmation.
// Amounts are whole won. OriginalAmount is fixed at creation and is the
// value an edit resets to.
type ExpenseDraft struct {
	LocalID        int    `json:"local_id"`
	Merchant       string `json:"merchant"`
	OccurredAt     string `json:"occurred_at,omitempty"`
	Amount         int64  `json:"amount"`
	OriginalAmount int64  `json:"original_amount"`
	Selected       bool   `json:"selected"`
}

// NewDraft returns an unselected draft whose amount and baseline are equal.
// Amounts are clamped to 0..MaxAmount.
func NewDraft(localID int, merchant, occurredAt string, amount int64) ExpenseDraft {
	amount = max(0, min(amount, MaxAmount))
	return ExpenseDraft{
		LocalID:        localID,
		Merchant:       merchant,
		OccurredAt:     occurredAt,
		Amount:         amount,
		OriginalAmount: amount,
	}
}

// Edited reports whether the amount differs from the recognized baseline.
func (d ExpenseDraft) Edited() bool {
	return d.Amount != d.OriginalAmount
}

// SelectedTotal sums Amount over the selected drafts.
func SelectedTotal(drafts []ExpenseDraft) int64 {
	var total int64
	for _, d := range drafts {
		if d.Selected {
			total += d.Amount
		}
	}
	return total
}
