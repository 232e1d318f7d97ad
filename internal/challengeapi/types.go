package challengeapi

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/uubinn0/Challengobi-sub000/internal/model"
)

// commitRequest is the body of a verification commit. Expenses is a
// pointer so an empty selection is still sent as "expenses": [].
type commitRequest struct {
	Day      string            `json:"day"`
	Expenses *[]model.LineItem `json:"expenses,omitempty"`
	NoSpend  bool              `json:"no_spend,omitempty"`
}

func newCommitRequest(c model.Commit) commitRequest {
	req := commitRequest{Day: c.Day, NoSpend: c.NoSpend}
	if !c.NoSpend {
		items := c.Items
		if items == nil {
			items = []model.LineItem{}
		}
		req.Expenses = &items
	}
	return req
}

// Field aliases seen across ledger payload versions, most specific first.
var (
	totalBudgetKeys = []string{"total_budget", "totalBudget", "budget", "initial_budget"}
	remainingKeys   = []string{"remaining", "remaining_budget", "balance"}
	envelopeKeys    = []string{"data", "ledger", "result"}
)

// parseLedger extracts totals from a ledger payload. Amounts may be JSON
// numbers or numeric strings. ok is false when remaining is absent.
func parseLedger(body []byte) (model.LedgerTotals, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return model.LedgerTotals{}, false
	}

	remaining, ok := firstMoney(obj, remainingKeys)
	if !ok {
		for _, k := range envelopeKeys {
			if inner, found := obj[k]; found {
				if t, ok := parseLedger(inner); ok {
					return t, true
				}
			}
		}
		return model.LedgerTotals{}, false
	}
	total, _ := firstMoney(obj, totalBudgetKeys)
	return model.LedgerTotals{TotalBudget: total, Remaining: remaining}, true
}

func firstMoney(obj map[string]json.RawMessage, keys []string) (int64, bool) {
	for _, k := range keys {
		raw, ok := obj[k]
		if !ok || string(raw) == "null" {
			continue
		}
		if v, ok := parseMoney(raw); ok {
			return v, true
		}
	}
	return 0, false
}

// parseMoney accepts 30000, 30000.0, and "30000". Fractions round to
// the nearest won.
func parseMoney(raw json.RawMessage) (int64, bool) {
	var d decimal.Decimal
	if err := json.Unmarshal(raw, &d); err != nil {
		return 0, false
	}
	return d.Round(0).IntPart(), true
}
