package verify

import (
	"time"

	"github.com/uubinn0/Challengobi-sub000/internal/model"
)

// State is a session's position in the verification lifecycle.
type State int

const (
	StateEmpty State = iota
	StateIntakePending
	StateReady
	StateSubmitted
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateIntakePending:
		return "intake_pending"
	case StateReady:
		return "ready"
	case StateSubmitted:
		return "submitted"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session is one verification attempt for one challenge. Drafts are only
// present for receipt sessions and TypedAmount only for typed sessions.
type Session struct {
	ID          string               `json:"id"`
	ChallengeID string               `json:"challenge_id"`
	Kind        EvidenceKind         `json:"-"`
	KindName    string               `json:"kind"`
	State       State                `json:"state"`
	Drafts      []model.ExpenseDraft `json:"drafts,omitempty"`
	TypedAmount int64                `json:"typed_amount,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	Submitting  bool                 `json:"submitting"`
}

// RunningTotal is the amount a submission of this session would commit.
func (s Session) RunningTotal() int64 {
	switch s.Kind {
	case KindReceiptOCR:
		return model.SelectedTotal(s.Drafts)
	case KindTypedAmount:
		return s.TypedAmount
	default:
		return 0
	}
}

// SelectedCount is the number of drafts marked for submission.
func (s Session) SelectedCount() int {
	n := 0
	for _, d := range s.Drafts {
		if d.Selected {
			n++
		}
	}
	return n
}

// draft returns the index of the draft with localID, or -1.
func (s *Session) draft(localID int) int {
	for i := range s.Drafts {
		if s.Drafts[i].LocalID == localID {
			return i
		}
	}
	return -1
}

func (s *Session) clone() Session {
	c := *s
	c.KindName = s.Kind.String()
	if s.Drafts != nil {
		c.Drafts = make([]model.ExpenseDraft, len(s.Drafts))
		copy(c.Drafts, s.Drafts)
	}
	return c
}
