package model

import "time"

// LedgerTotals is one authoritative read of a challenge's budget ledger.
type LedgerTotals struct {
	TotalBudget int64
	Remaining   int64
}

// LedgerMirror is the local projection of a challenge's budget ledger.
// Remaining goes negative on overspend. PendingDebit is the sum of
// optimistic local debits applied since LastSyncedAt.
type LedgerMirror struct {
	ChallengeID  string    `json:"challenge_id"`
	TotalBudget  int64     `json:"total_budget"`
	Remaining    int64     `json:"remaining"`
	PendingDebit int64     `json:"pending_debit"`
	LastSyncedAt time.Time `json:"last_synced_at"`
}

// Spent returns the amount consumed from the budget as the mirror sees it.
func (m LedgerMirror) Spent() int64 {
	return m.TotalBudget - m.Remaining
}

// Overspent reports whether the mirror shows the budget exceeded.
func (m LedgerMirror) Overspent() bool {
	return m.Remaining < 0
}
