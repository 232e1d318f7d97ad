package model

import "time"

// LineItem is one committed expense.
type LineItem struct {
	Store       string `json:"store"`
	Amount      int64  `json:"amount"`
	PaymentDate string `json:"payment_date"`
}

// Commit is the payload sent to the ledger for one verification.
// NoSpend marks a verified zero-expense day and is never combined with
// items. A receipt verification with nothing selected carries an empty,
// non-nil Items slice.
type Commit struct {
	ChallengeID    string
	Day            string
	Items          []LineItem
	NoSpend        bool
	IdempotencyKey string
}

// Total sums the committed line items.
func (c Commit) Total() int64 {
	var total int64
	for _, it := range c.Items {
		total += it.Amount
	}
	return total
}

// Verification is the local audit record of a committed verification.
type Verification struct {
	SessionID   string
	ChallengeID string
	Day         string
	Kind        string
	ItemCount   int
	Total       int64
	CommittedAt time.Time
	Items       []LineItem
}
