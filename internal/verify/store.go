package verify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/uubinn0/Challengobi-sub000/internal/clock"
	"github.com/uubinn0/Challengobi-sub000/internal/model"
)

// Ticket identifies the intake that created a session. An intake result
// is only applied while the stored session still carries its ticket.
type Ticket struct {
	ChallengeID string
	SessionID   string
	CreatedAt   time.Time
	Kind        EvidenceKind
}

// Store holds at most one session per challenge. It is safe for
// concurrent use; no lock is held across network calls.
type Store struct {
	mu       sync.Mutex
	clock    clock.Clock
	ttl      time.Duration
	sessions map[string]*Session
}

// NewStore returns an empty store. A positive ttl abandons Ready sessions
// older than ttl; zero keeps them until cleared or submitted.
func NewStore(c clock.Clock, ttl time.Duration) *Store {
	if c == nil {
		c = clock.Real()
	}
	return &Store{
		clock:    c,
		ttl:      ttl,
		sessions: make(map[string]*Session),
	}
}

// Begin starts a new intake for the challenge, replacing any stored session.
func (s *Store) Begin(challengeID string, kind EvidenceKind) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &Session{
		ID:          uuid.NewString(),
		ChallengeID: challengeID,
		Kind:        kind,
		State:       StateIntakePending,
		CreatedAt:   s.clock.Now(),
	}
	s.sessions[challengeID] = sess
	return Ticket{
		ChallengeID: challengeID,
		SessionID:   sess.ID,
		CreatedAt:   sess.CreatedAt,
		Kind:        kind,
	}
}

// Resolve moves the ticket's session to Ready with the given evidence.
// It returns ErrStaleResponse when the session was replaced, cleared, or
// already resolved.
func (s *Store) Resolve(t Ticket, drafts []model.ExpenseDraft, typedAmount int64) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.pending(t)
	if !ok {
		return Session{}, ErrStaleResponse
	}
	if t.Kind == KindReceiptOCR && drafts == nil {
		drafts = []model.ExpenseDraft{}
	}
	sess.Drafts = drafts
	sess.TypedAmount = typedAmount
	sess.State = StateReady
	return sess.clone(), nil
}

// Fail drops the ticket's session if it is still pending.
func (s *Store) Fail(t Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending(t); ok {
		delete(s.sessions, t.ChallengeID)
	}
}

func (s *Store) pending(t Ticket) (*Session, bool) {
	sess, ok := s.sessions[t.ChallengeID]
	if !ok || sess.ID != t.SessionID || !sess.CreatedAt.Equal(t.CreatedAt) || sess.State != StateIntakePending {
		return nil, false
	}
	return sess, true
}

// Get returns a copy of the challenge's session. A Ready session past the
// TTL is returned once as Abandoned and dropped.
func (s *Store) Get(challengeID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[challengeID]
	if !ok {
		return Session{}, false
	}
	if s.expired(sess) {
		delete(s.sessions, challengeID)
		c := sess.clone()
		c.State = StateAbandoned
		return c, true
	}
	return sess.clone(), true
}

// Clear abandons whatever is stored for the challenge.
func (s *Store) Clear(challengeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, challengeID)
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) expired(sess *Session) bool {
	return s.ttl > 0 &&
		sess.State == StateReady &&
		!sess.Submitting &&
		s.clock.Now().Sub(sess.CreatedAt) > s.ttl
}

// ready returns the challenge's editable session under the lock.
func (s *Store) ready(challengeID string) (*Session, error) {
	sess, ok := s.sessions[challengeID]
	if !ok || sess.State != StateReady {
		return nil, ErrNoSession
	}
	if s.expired(sess) {
		delete(s.sessions, challengeID)
		return nil, ErrNoSession
	}
	if sess.Submitting {
		return nil, ErrSubmitInFlight
	}
	return sess, nil
}

// update applies fn to the challenge's Ready session.
func (s *Store) update(challengeID string, fn func(*Session) error) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.ready(challengeID)
	if err != nil {
		return Session{}, err
	}
	if err := fn(sess); err != nil {
		return Session{}, err
	}
	return sess.clone(), nil
}

// view returns a copy of the challenge's Ready session, including one
// with a submission in flight.
func (s *Store) view(challengeID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[challengeID]
	if !ok || sess.State != StateReady {
		return Session{}, ErrNoSession
	}
	if s.expired(sess) {
		delete(s.sessions, challengeID)
		return Session{}, ErrNoSession
	}
	return sess.clone(), nil
}

// beginSubmit marks the session as submitting and returns a snapshot of it.
func (s *Store) beginSubmit(challengeID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.ready(challengeID)
	if err != nil {
		return Session{}, err
	}
	sess.Submitting = true
	return sess.clone(), nil
}

// endSubmit releases the in-flight mark. A committed session is removed
// so the next flow starts fresh.
func (s *Store) endSubmit(challengeID, sessionID string, committed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[challengeID]
	if !ok || sess.ID != sessionID {
		return
	}
	if committed {
		delete(s.sessions, challengeID)
		return
	}
	sess.Submitting = false
}
