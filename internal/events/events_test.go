package events

import (
	"context"
	"errors"
	"testing"
)

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	var got []string
	record := PublisherFunc(func(_ context.Context, topic string, _ any) error {
		got = append(got, topic)
		return nil
	})
	boom := errors.New("broker down")
	failing := PublisherFunc(func(context.Context, string, any) error { return boom })

	err := Multi(record, nil, failing, record).Publish(context.Background(), TopicExpenseVerified, ExpenseVerified{})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
	if len(got) != 2 {
		t.Errorf("delivered %d times, want 2", len(got))
	}
}

func TestNop(t *testing.T) {
	if err := (Nop{}).Publish(context.Background(), "x", nil); err != nil {
		t.Errorf("Nop.Publish = %v, want nil", err)
	}
}

func TestExpenseVerified_EventKey(t *testing.T) {
	var ev any = ExpenseVerified{ChallengeID: "42"}
	k, ok := ev.(keyed)
	if !ok {
		t.Fatal("ExpenseVerified does not carry a key")
	}
	if k.EventKey() != "42" {
		t.Errorf("EventKey() = %q, want %q", k.EventKey(), "42")
	}
}
