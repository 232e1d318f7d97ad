// Package events publishes verification outcomes to interested consumers.
package events

import (
	"context"
	"errors"
	"time"
)

// TopicExpenseVerified is the default topic for committed verifications.
const TopicExpenseVerified = "expense.verified"

// Publisher delivers an event to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
}

// ExpenseVerified is emitted after the ledger accepts a verification.
type ExpenseVerified struct {
	SessionID   string    `json:"session_id"`
	ChallengeID string    `json:"challenge_id"`
	Day         string    `json:"day"`
	Kind        string    `json:"kind"`
	ItemCount   int       `json:"item_count"`
	Total       int64     `json:"total"`
	Remaining   *int64    `json:"remaining,omitempty"`
	CommittedAt time.Time `json:"committed_at"`
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, string, any) error { return nil }

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, topic string, event any) error

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, topic string, event any) error {
	return f(ctx, topic, event)
}

// Multi fans an event out to every publisher and joins their errors.
func Multi(pubs ...Publisher) Publisher {
	return multi(pubs)
}

type multi []Publisher

func (m multi) Publish(ctx context.Context, topic string, event any) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, topic, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
