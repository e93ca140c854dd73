package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/farm-market/internal/core/domain"
	"github.com/rl1809/farm-market/internal/port"
)

const (
	TopicMarket    = "market"
	TopicShipments = "shipments"
)

func UserTopic(userID string) string {
	return "user:" + userID
}

// Event is a committed change waiting to be fanned out.
type Event struct {
	Topics       []string
	Change       domain.Change
	Notification *domain.Notification
}

// Dispatcher queues committed changes and delivers them to the live feed and
// the event bus. Delivery is best effort: the write has already committed.
type Dispatcher struct {
	feed   port.ChangeFeed
	bus    port.EventPublisher
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Event
}

func NewDispatcher(feed port.ChangeFeed, bus port.EventPublisher, logger *zap.Logger, queueSize int) *Dispatcher {
	return &Dispatcher{
		feed:   feed,
		bus:    bus,
		logger: logger,
		queue:  make(chan Event, queueSize),
	}
}

// Enqueue hands events to the workers. It blocks while the queue is full and
// gives up when ctx is done.
func (d *Dispatcher) Enqueue(ctx context.Context, events ...Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("dispatcher closed, dropping events", zap.Int("count", len(events)))
		return
	}

	for _, ev := range events {
		select {
		case d.queue <- ev:
		case <-ctx.Done():
			d.logger.Warn("dropping event",
				zap.String("collection", ev.Change.Collection),
				zap.String("id", ev.Change.ID),
				zap.Error(ctx.Err()))
		}
	}
}

func (d *Dispatcher) Queue() <-chan Event {
	return d.queue
}

// Dispatch delivers one event to every topic and forwards notifications.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	var firstErr error
	if d.feed != nil {
		for _, topic := range ev.Topics {
			if err := d.feed.Publish(ctx, topic, ev.Change); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("publish %s: %w", topic, err)
			}
		}
	}

	if ev.Notification != nil && d.bus != nil {
		if err := d.bus.PublishNotification(ctx, *ev.Notification); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("forward notification: %w", err)
		}
	}

	return firstErr
}

const dispatchTimeout = 5 * time.Second

// Work drains the queue until Close, delivering each event. Run several
// workers to deliver in parallel.
func (d *Dispatcher) Work(id int) {
	for ev := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		if err := d.Dispatch(ctx, ev); err != nil {
			d.logger.Warn("dispatch failed",
				zap.Int("worker", id),
				zap.String("collection", ev.Change.Collection),
				zap.String("id", ev.Change.ID),
				zap.Error(err))
		}
		cancel()
	}
}

func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.queue)
}

func changeOf(collection, op, id, ownerID string, payload any) domain.Change {
	c := domain.Change{Collection: collection, Op: op, ID: id, OwnerID: ownerID}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			c.Payload = raw
		}
	}
	return c
}

func listingEvent(op string, l domain.Listing) Event {
	return Event{
		Topics: []string{TopicMarket, UserTopic(l.FarmerID)},
		Change: changeOf(domain.CollectionListings, op, l.ID, l.FarmerID, l),
	}
}

func shipmentEvent(op string, s domain.Shipment) Event {
	topics := []string{TopicShipments, UserTopic(s.BuyerID), UserTopic(s.FarmerID)}
	if s.CarrierID != "" {
		topics = append(topics, UserTopic(s.CarrierID))
	}
	return Event{
		Topics: topics,
		Change: changeOf(domain.CollectionShipments, op, s.ID, s.BuyerID, s),
	}
}

func notificationEvent(n domain.Notification) Event {
	return Event{
		Topics:       []string{UserTopic(n.UserID)},
		Change:       changeOf(domain.CollectionNotifications, domain.OpCreate, n.ID, n.UserID, n),
		Notification: &n,
	}
}

func notificationEvents(notices []domain.Notification) []Event {
	events := make([]Event, 0, len(notices))
	for _, n := range notices {
		events = append(events, notificationEvent(n))
	}
	return events
}

// onlyCollection narrows a subscription to one collection.
func onlyCollection(ctx context.Context, in <-chan domain.Change, collection string) <-chan domain.Change {
	out := make(chan domain.Change)
	go func() {
		defer close(out)
		for c := range in {
			if c.Collection != collection {
				continue
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
