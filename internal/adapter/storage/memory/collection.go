package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/rl1809/farm-market/internal/core/domain"
	"github.com/rl1809/farm-market/internal/port"
)

// Collection is an in-memory document collection of owner-scoped records.
type Collection[T domain.Record[T]] struct {
	mu    sync.Mutex
	docs  map[string]T
	order []string
}

func NewCollection[T domain.Record[T]]() *Collection[T] {
	return &Collection[T]{docs: make(map[string]T)}
}

func (c *Collection[T]) Create(ctx context.Context, record T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[record.RecordID()]; ok {
		return port.ErrDuplicate
	}
	c.docs[record.RecordID()] = record
	c.order = append(c.order, record.RecordID())
	return nil
}

func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.docs[id]
	if !ok {
		var zero T
		return zero, port.ErrNotFound
	}
	return r, nil
}

func (c *Collection[T]) Replace(ctx context.Context, record T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[record.RecordID()]; !ok {
		return port.ErrNotFound
	}
	c.docs[record.RecordID()] = record
	return nil
}

func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[id]; !ok {
		return port.ErrNotFound
	}
	delete(c.docs, id)
	c.order = slices.DeleteFunc(c.order, func(o string) bool { return o == id })
	return nil
}

func (c *Collection[T]) ListByOwner(ctx context.Context, ownerID string) ([]T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []T
	for _, id := range c.order {
		if r := c.docs[id]; r.RecordOwner() == ownerID {
			out = append(out, r)
		}
	}
	return out, nil
}
