package memory

import (
	"context"
	"sync"

	"github.com/rl1809/farm-market/internal/core/domain"
	"github.com/rl1809/farm-market/internal/port"
)

const subscriberBuffer = 64

// Feed is an in-process pub/sub. Slow subscribers lose changes rather than
// stall publishers.
type Feed struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

type subscriber struct {
	ch chan domain.Change
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[string]map[*subscriber]struct{})}
}

var _ port.ChangeFeed = (*Feed)(nil)

func (f *Feed) Publish(ctx context.Context, topic string, change domain.Change) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs[topic] {
		select {
		case sub.ch <- change:
		default:
		}
	}
	return nil
}

func (f *Feed) Subscribe(ctx context.Context, topics ...string) (<-chan domain.Change, error) {
	sub := &subscriber{ch: make(chan domain.Change, subscriberBuffer)}

	f.mu.Lock()
	for _, t := range topics {
		if f.subs[t] == nil {
			f.subs[t] = make(map[*subscriber]struct{})
		}
		f.subs[t][sub] = struct{}{}
	}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		for _, t := range topics {
			delete(f.subs[t], sub)
			if len(f.subs[t]) == 0 {
				delete(f.subs, t)
			}
		}
		close(sub.ch)
		f.mu.Unlock()
	}()

	return sub.ch, nil
}

// Subscribers reports how many subscriptions listen on topic.
func (f *Feed) Subscribers(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[topic])
}
