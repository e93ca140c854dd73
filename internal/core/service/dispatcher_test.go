package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/rl1809/farm-market/internal/core/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingFeed struct {
	mu        sync.Mutex
	published map[string][]domain.Change
	fail      map[string]error
}

func newRecordingFeed() *recordingFeed {
	return &recordingFeed{published: make(map[string][]domain.Change), fail: make(map[string]error)}
}

func (f *recordingFeed) Publish(ctx context.Context, topic string, change domain.Change) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[topic]; err != nil {
		return err
	}
	f.published[topic] = append(f.published[topic], change)
	return nil
}

func (f *recordingFeed) Subscribe(ctx context.Context, topics ...string) (<-chan domain.Change, error) {
	return nil, errors.New("not used")
}

func (f *recordingFeed) count(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published[topic])
}

type recordingBus struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (b *recordingBus) PublishNotification(ctx context.Context, n domain.Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.sent = append(b.sent, n)
	return nil
}

func TestDispatch_FansOutTopicsAndNotifications(t *testing.T) {
	feed := newRecordingFeed()
	bus := &recordingBus{}
	d := NewDispatcher(feed, bus, zap.NewNop(), 10)
	defer d.Close()

	sh := domain.Shipment{ID: "s1", BuyerID: "b1", FarmerID: "f1", CarrierID: "c1"}
	if err := d.Dispatch(context.Background(), shipmentEvent(domain.OpUpdate, sh)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	for _, topic := range []string{TopicShipments, UserTopic("b1"), UserTopic("f1"), UserTopic("c1")} {
		if feed.count(topic) != 1 {
			t.Errorf("expected one change on %s, got %d", topic, feed.count(topic))
		}
	}
	if len(bus.sent) != 0 {
		t.Errorf("shipment events are not forwarded to the bus")
	}

	n := domain.SaleNotice("f1", "Bea", "Corn", decimal.NewFromInt(4), "ton")
	n.ID = "n1"
	if err := d.Dispatch(context.Background(), notificationEvent(n)); err != nil {
		t.Fatalf("dispatch notification: %v", err)
	}
	if len(bus.sent) != 1 || bus.sent[0].ID != "n1" {
		t.Errorf("expected notification forwarded, got %+v", bus.sent)
	}
	if feed.count(UserTopic("f1")) != 2 {
		t.Errorf("expected the notification on the farmer topic")
	}
}

func TestDispatch_ContinuesPastFailures(t *testing.T) {
	feed := newRecordingFeed()
	feed.fail[TopicMarket] = errors.New("feed down")
	bus := &recordingBus{err: errors.New("broker down")}
	d := NewDispatcher(feed, bus, zap.NewNop(), 10)
	defer d.Close()

	err := d.Dispatch(context.Background(), listingEvent(domain.OpCreate, domain.Listing{ID: "l1", FarmerID: "f1"}))
	if err == nil {
		t.Fatal("expected an error")
	}
	if feed.count(UserTopic("f1")) != 1 {
		t.Errorf("remaining topics must still be published")
	}

	n := domain.Notification{ID: "n1", UserID: "f1"}
	if err := d.Dispatch(context.Background(), notificationEvent(n)); err == nil {
		t.Error("expected bus error")
	}
}

func TestDispatcher_WorkDrainsUntilClose(t *testing.T) {
	feed := newRecordingFeed()
	d := NewDispatcher(feed, nil, zap.NewNop(), 10)

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Work(0)
	}()

	for i := 0; i < 5; i++ {
		d.Enqueue(context.Background(), listingEvent(domain.OpCreate, domain.Listing{ID: "l", FarmerID: "f1"}))
	}
	d.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after Close")
	}
	if feed.count(TopicMarket) != 5 {
		t.Errorf("expected 5 queued events delivered, got %d", feed.count(TopicMarket))
	}

	// Enqueue after Close drops instead of panicking.
	d.Enqueue(context.Background(), listingEvent(domain.OpCreate, domain.Listing{ID: "late"}))
	d.Close()
}

func TestDispatcher_EnqueueGivesUpOnCancel(t *testing.T) {
	d := NewDispatcher(newRecordingFeed(), nil, zap.NewNop(), 1)
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	returned := make(chan struct{})
	go func() {
		defer close(returned)
		d.Enqueue(ctx,
			listingEvent(domain.OpCreate, domain.Listing{ID: "a"}),
			listingEvent(domain.OpCreate, domain.Listing{ID: "b"}),
		)
	}()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked on a full queue with a cancelled context")
	}
	if len(d.Queue()) > 1 {
		t.Errorf("queue holds more than its capacity")
	}
}
