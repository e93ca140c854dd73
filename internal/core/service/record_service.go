package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/farm-market/internal/core/domain"
	"github.com/rl1809/farm-market/internal/port"
)

var ErrRecordNotFound = errors.New("record not found")

// RecordService is owner-scoped CRUD over one document collection. Records
// have no side effects on other collections.
type RecordService[T domain.Record[T]] struct {
	collection string
	repo       port.RecordRepository[T]
	feed       port.ChangeFeed
	events     *Dispatcher
	logger     *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewRecordService[T domain.Record[T]](collection string, repo port.RecordRepository[T], feed port.ChangeFeed, events *Dispatcher, logger *zap.Logger) *RecordService[T] {
	return &RecordService[T]{
		collection: collection,
		repo:       repo,
		feed:       feed,
		events:     events,
		logger:     logger.With(zap.String("collection", collection)),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

func (s *RecordService[T]) Create(ctx context.Context, owner domain.Account, record T) (T, error) {
	var zero T
	if !owner.Can(domain.ActionKeepRecords) {
		return zero, ErrForbidden
	}

	now := s.now().UTC()
	record = record.WithIdentity(s.newID(), owner.ID, now, now)
	if err := record.Validate(); err != nil {
		return zero, err
	}

	if err := s.repo.Create(ctx, record); err != nil {
		s.logger.Error("create record failed", zap.String("owner_id", owner.ID), zap.Error(err))
		return zero, fmt.Errorf("create %s: %w", s.collection, err)
	}

	s.publish(ctx, domain.OpCreate, record)
	return record, nil
}

// Update loads the owner's record, lets apply mutate a copy and stores the
// result. Identity fields and CreatedAt are restored after apply runs.
func (s *RecordService[T]) Update(ctx context.Context, owner domain.Account, id string, apply func(*T) error) (T, error) {
	var zero T
	current, err := s.owned(ctx, owner, id)
	if err != nil {
		return zero, err
	}

	next := current
	if err := apply(&next); err != nil {
		return zero, err
	}
	next = next.WithIdentity(current.RecordID(), current.RecordOwner(), current.RecordCreatedAt(), s.now().UTC())
	if err := next.Validate(); err != nil {
		return zero, err
	}

	if err := s.repo.Replace(ctx, next); err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return zero, ErrRecordNotFound
		}
		s.logger.Error("update record failed", zap.String("id", id), zap.Error(err))
		return zero, fmt.Errorf("update %s: %w", s.collection, err)
	}

	s.publish(ctx, domain.OpUpdate, next)
	return next, nil
}

func (s *RecordService[T]) Delete(ctx context.Context, owner domain.Account, id string) error {
	current, err := s.owned(ctx, owner, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return ErrRecordNotFound
		}
		s.logger.Error("delete record failed", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("delete %s: %w", s.collection, err)
	}

	s.events.Enqueue(ctx, Event{
		Topics: []string{UserTopic(current.RecordOwner())},
		Change: changeOf(s.collection, domain.OpDelete, id, current.RecordOwner(), nil),
	})
	return nil
}

func (s *RecordService[T]) List(ctx context.Context, ownerID string) ([]T, error) {
	records, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.collection, err)
	}
	return records, nil
}

func (s *RecordService[T]) Subscribe(ctx context.Context, ownerID string) (<-chan domain.Change, error) {
	ch, err := s.feed.Subscribe(ctx, UserTopic(ownerID))
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", s.collection, err)
	}
	return onlyCollection(ctx, ch, s.collection), nil
}

func (s *RecordService[T]) owned(ctx context.Context, owner domain.Account, id string) (T, error) {
	var zero T
	if !owner.Can(domain.ActionKeepRecords) {
		return zero, ErrForbidden
	}
	record, err := s.repo.Get(ctx, id)
	if errors.Is(err, port.ErrNotFound) {
		return zero, ErrRecordNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("load %s: %w", s.collection, err)
	}
	// Another owner's record is reported as missing.
	if record.RecordOwner() != owner.ID {
		return zero, ErrRecordNotFound
	}
	return record, nil
}

func (s *RecordService[T]) publish(ctx context.Context, op string, record T) {
	s.events.Enqueue(ctx, Event{
		Topics: []string{UserTopic(record.RecordOwner())},
		Change: changeOf(s.collection, op, record.RecordID(), record.RecordOwner(), record),
	})
}

// ToggleReminder flips a reminder between open and completed.
func ToggleReminder(ctx context.Context, reminders *RecordService[domain.Reminder], owner domain.Account, id string) (domain.Reminder, error) {
	return reminders.Update(ctx, owner, id, func(r *domain.Reminder) error {
		r.Completed = !r.Completed
		return nil
	})
}
