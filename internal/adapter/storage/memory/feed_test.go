package memory

import (
	"context"
	"testing"
	"time"

	"github.com/rl1809/farm-market/internal/core/domain"
)

func TestFeed_SubscribeAndUnsubscribe(t *testing.T) {
	f := NewFeed()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := f.Subscribe(ctx, "market", "user:f1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if got := f.Subscribers("market"); got != 1 {
		t.Errorf("expected 1 market subscriber, got %d", got)
	}
	if got := f.Subscribers("user:f1"); got != 1 {
		t.Errorf("expected 1 user subscriber, got %d", got)
	}

	f.Publish(context.Background(), "market", domain.Change{Collection: domain.CollectionListings, ID: "l1"})
	f.Publish(context.Background(), "other", domain.Change{ID: "ignored"})
	select {
	case c := <-ch:
		if c.ID != "l1" {
			t.Errorf("unexpected change %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change")
	}

	cancel()
	for range ch {
	}
	if got := f.Subscribers("market"); got != 0 {
		t.Errorf("expected no subscribers after cancel, got %d", got)
	}
}

func TestFeed_SlowSubscriberDropsChanges(t *testing.T) {
	f := NewFeed()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _ := f.Subscribe(ctx, "market")
	for i := 0; i < subscriberBuffer+10; i++ {
		if err := f.Publish(context.Background(), "market", domain.Change{ID: "l"}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if len(ch) != subscriberBuffer {
		t.Errorf("expected a full buffer of %d, got %d", subscriberBuffer, len(ch))
	}
}
