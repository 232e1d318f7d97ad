package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/uubinn0/Challengobi-sub000/internal/events"
)

// Event is one entry in the daemon's event log.
type Event struct {
	ID          int64     `json:"id"`
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	ChallengeID string    `json:"challenge_id,omitempty"`
	Payload     any       `json:"payload,omitempty"`
}

// EventLog keeps the most recent events and fans them out to stream
// subscribers. It implements events.Publisher so the dispatcher can
// publish into it directly.
type EventLog struct {
	mu        sync.RWMutex
	capacity  int
	nextID    int64
	events    []Event
	nextSubID int
	subs      map[int]chan Event
	now       func() time.Time
}

// NewEventLog returns a log retaining at most capacity events.
func NewEventLog(capacity int) *EventLog {
	if capacity < 1 {
		capacity = 200
	}
	return &EventLog{
		capacity: capacity,
		subs:     make(map[int]chan Event),
		now:      time.Now,
	}
}

// Publish implements events.Publisher. The topic becomes the event type.
func (l *EventLog) Publish(_ context.Context, topic string, event any) error {
	ev := Event{Type: topic, Payload: event}
	if v, ok := event.(events.ExpenseVerified); ok {
		ev.ChallengeID = v.ChallengeID
	}
	l.Append(ev)
	return nil
}

// Append assigns the next id and timestamp, stores the event, and
// delivers it to subscribers without blocking.
func (l *EventLog) Append(ev Event) Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	ev.ID = l.nextID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.now()
	}
	l.events = append(l.events, ev)
	if len(l.events) > l.capacity {
		l.events = l.events[len(l.events)-l.capacity:]
	}

	for _, ch := range l.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}

// Recent returns a copy of the retained events, oldest first.
func (l *EventLog) Recent() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Counts returns the retained event and subscriber counts.
func (l *EventLog) Counts() (eventCount, subscriberCount int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events), len(l.subs)
}

func (l *EventLog) subscribe(ch chan Event) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextSubID++
	id := l.nextSubID
	l.subs[id] = ch
	return id
}

func (l *EventLog) unsubscribe(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.subs, id)
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.log.Recent())
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 16)
	id := s.log.subscribe(ch)
	defer s.log.unsubscribe(id)

	// Send current status immediately.
	writeSSE(w, Event{Type: "status", Timestamp: time.Now(), Payload: s.snapshotStatus()})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if ev.ID > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", ev.ID)
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}
