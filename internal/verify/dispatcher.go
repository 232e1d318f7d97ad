package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uubinn0/Challengobi-sub000/internal/auth"
	"github.com/uubinn0/Challengobi-sub000/internal/clock"
	"github.com/uubinn0/Challengobi-sub000/internal/events"
	"github.com/uubinn0/Challengobi-sub000/internal/model"
)

// TypedMerchant labels the single line item of a typed-amount submission.
const TypedMerchant = "직접 입력"

// LedgerCommitter commits a verification to the remote ledger. It may
// return the ledger's updated totals, or nil when the server omits them.
type LedgerCommitter interface {
	Commit(ctx context.Context, c model.Commit) (*model.LedgerTotals, error)
}

// HistoryRecorder keeps the local audit trail of committed verifications.
type HistoryRecorder interface {
	RecordVerification(ctx context.Context, v model.Verification) error
}

// DispatcherConfig wires a Dispatcher. Only Store and Ledger are required.
type DispatcherConfig struct {
	Store    *Store
	Ledger   LedgerCommitter
	Mirror   BudgetMirror
	History  HistoryRecorder
	Events   events.Publisher
	Topic    string
	Clock    clock.Clock
	Location *time.Location
	Logger   *slog.Logger
}

// Dispatcher turns a Ready session into one ledger commit.
type Dispatcher struct {
	store   *Store
	ledger  LedgerCommitter
	mirror  BudgetMirror
	history HistoryRecorder
	events  events.Publisher
	topic   string
	clock   clock.Clock
	loc     *time.Location
	log     *slog.Logger
}

// Outcome describes a committed verification.
type Outcome struct {
	Session      Session
	Commit       model.Commit
	Remaining    int64
	LedgerKnown  bool
	Verification model.Verification
}

// NewDispatcher applies defaults to cfg and returns a dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		store:   cfg.Store,
		ledger:  cfg.Ledger,
		mirror:  cfg.Mirror,
		history: cfg.History,
		events:  cfg.Events,
		topic:   cfg.Topic,
		clock:   cfg.Clock,
		loc:     cfg.Location,
		log:     cfg.Logger,
	}
	if d.events == nil {
		d.events = events.Nop{}
	}
	if d.topic == "" {
		d.topic = events.TopicExpenseVerified
	}
	if d.clock == nil {
		d.clock = clock.Real()
	}
	if d.loc == nil {
		d.loc = time.Local
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	return d
}

// Submit commits the challenge's Ready session. On success the session
// is removed and the mirror debited; on failure the session and all its
// edits are kept for a retry. A call made while another submission for
// the same session is pending returns ErrSubmitInFlight and does nothing.
func (d *Dispatcher) Submit(ctx context.Context, challengeID string) (Outcome, error) {
	sess, err := d.store.beginSubmit(challengeID)
	if err != nil {
		return Outcome{}, err
	}

	now := d.clock.Now()
	commit := BuildCommit(sess, now.In(d.loc))

	totals, err := d.ledger.Commit(ctx, commit)
	if err != nil {
		d.store.endSubmit(challengeID, sess.ID, false)
		if auth.IsAuthError(err) {
			return Outcome{}, fmt.Errorf("%w: %v", ErrAuthRequired, err)
		}
		if !errors.Is(err, context.Canceled) {
			d.log.Warn("verification commit failed", "challenge", challengeID, "session", sess.ID, "error", err)
		}
		return Outcome{}, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	d.store.endSubmit(challengeID, sess.ID, true)

	out := Outcome{Session: sess, Commit: commit}
	out.Session.State = StateSubmitted
	out.Session.Submitting = false

	total := commit.Total()
	if d.mirror != nil {
		if m, ok := d.mirror.ApplyDebit(ctx, challengeID, total); ok {
			out.Remaining, out.LedgerKnown = m.Remaining, true
		}
		if totals != nil {
			m := d.mirror.Observe(ctx, challengeID, *totals)
			out.Remaining, out.LedgerKnown = m.Remaining, true
		}
	} else if totals != nil {
		out.Remaining, out.LedgerKnown = totals.Remaining, true
	}

	out.Verification = model.Verification{
		SessionID:   sess.ID,
		ChallengeID: challengeID,
		Day:         commit.Day,
		Kind:        sess.Kind.String(),
		ItemCount:   len(commit.Items),
		Total:       total,
		CommittedAt: now,
		Items:       commit.Items,
	}

	// The ledger already holds the commit; local bookkeeping failures
	// are logged and never undo it.
	if d.history != nil {
		if err := d.history.RecordVerification(ctx, out.Verification); err != nil {
			d.log.Warn("recording verification history", "challenge", challengeID, "error", err)
		}
	}
	ev := events.ExpenseVerified{
		SessionID:   sess.ID,
		ChallengeID: challengeID,
		Day:         commit.Day,
		Kind:        sess.Kind.String(),
		ItemCount:   len(commit.Items),
		Total:       total,
		CommittedAt: now,
	}
	if out.LedgerKnown {
		r := out.Remaining
		ev.Remaining = &r
	}
	if err := d.events.Publish(ctx, d.topic, ev); err != nil {
		d.log.Warn("publishing verification event", "challenge", challengeID, "error", err)
	}

	d.log.Info("verification committed",
		"challenge", challengeID,
		"session", sess.ID,
		"kind", sess.Kind.String(),
		"items", len(commit.Items),
		"total", total,
	)
	return out, nil
}

// BuildCommit maps a session to its ledger payload for the day of now.
// A receipt session commits its selected drafts in order, a typed session
// one synthetic item, and a no-spend session only the no-spend marker.
func BuildCommit(sess Session, now time.Time) model.Commit {
	day := now.Format("2006-01-02")
	c := model.Commit{
		ChallengeID:    sess.ChallengeID,
		Day:            day,
		IdempotencyKey: sess.ID,
	}

	switch sess.Kind {
	case KindNoSpend:
		c.NoSpend = true
	case KindTypedAmount:
		c.Items = []model.LineItem{{Store: TypedMerchant, Amount: sess.TypedAmount, PaymentDate: day}}
	default:
		c.Items = make([]model.LineItem, 0, len(sess.Drafts))
		for _, dr := range sess.Drafts {
			if !dr.Selected {
				continue
			}
			c.Items = append(c.Items, model.LineItem{Store: dr.Merchant, Amount: dr.Amount, PaymentDate: day})
		}
	}
	return c
}
