package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/farm-market/internal/core/domain"
	"github.com/rl1809/farm-market/internal/port"
)

var (
	ErrNotListingOwner  = errors.New("listing belongs to another farmer")
	ErrConcurrentUpdate = errors.New("record changed concurrently, reload and retry")
)

// ListingService is the farmer-facing CRUD over crop listings.
type ListingService struct {
	repo   port.MarketplaceRepository
	feed   port.ChangeFeed
	events *Dispatcher
	logger *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewListingService(repo port.MarketplaceRepository, feed port.ChangeFeed, events *Dispatcher, logger *zap.Logger) *ListingService {
	return &ListingService{
		repo:   repo,
		feed:   feed,
		events: events,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

func (s *ListingService) Create(ctx context.Context, farmer domain.Account, listing domain.Listing) (domain.Listing, error) {
	if !farmer.Can(domain.ActionManageListings) {
		return domain.Listing{}, ErrForbidden
	}

	now := s.now().UTC()
	listing.ID = s.newID()
	listing.FarmerID = farmer.ID
	listing.FarmerName = farmer.Name
	listing.Status = domain.ListingStatusActive
	listing.Name = strings.TrimSpace(listing.Name)
	if listing.Unit == "" {
		listing.Unit = domain.DefaultUnit
	}
	listing.CreatedAt = now
	listing.UpdatedAt = now
	if err := listing.Validate(); err != nil {
		return domain.Listing{}, err
	}

	if err := s.repo.CreateListing(ctx, listing); err != nil {
		s.logger.Error("create listing failed", zap.String("farmer_id", farmer.ID), zap.Error(err))
		return domain.Listing{}, fmt.Errorf("create listing: %w", err)
	}

	s.events.Enqueue(ctx, listingEvent(domain.OpCreate, listing))
	return listing, nil
}

func (s *ListingService) Update(ctx context.Context, farmer domain.Account, id string, patch domain.ListingPatch) (domain.Listing, error) {
	current, err := s.owned(ctx, farmer, id)
	if err != nil {
		return domain.Listing{}, err
	}

	next, err := patch.Apply(current)
	if err != nil {
		return domain.Listing{}, err
	}
	next.UpdatedAt = s.now().UTC()

	if err := s.repo.UpdateListing(ctx, next, current.Status); err != nil {
		if errors.Is(err, port.ErrConflict) {
			return domain.Listing{}, ErrConcurrentUpdate
		}
		s.logger.Error("update listing failed", zap.String("listing_id", id), zap.Error(err))
		return domain.Listing{}, fmt.Errorf("update listing: %w", err)
	}

	s.events.Enqueue(ctx, listingEvent(domain.OpUpdate, next))
	return next, nil
}

// Delete removes a listing. Sold listings are kept because a shipment
// references them.
func (s *ListingService) Delete(ctx context.Context, farmer domain.Account, id string) error {
	current, err := s.owned(ctx, farmer, id)
	if err != nil {
		return err
	}
	if current.Status == domain.ListingStatusSold {
		return domain.ErrListingSold
	}

	if err := s.repo.DeleteListing(ctx, id, farmer.ID); err != nil {
		if errors.Is(err, port.ErrConflict) {
			return domain.ErrListingSold
		}
		s.logger.Error("delete listing failed", zap.String("listing_id", id), zap.Error(err))
		return fmt.Errorf("delete listing: %w", err)
	}

	s.events.Enqueue(ctx, Event{
		Topics: []string{TopicMarket, UserTopic(farmer.ID)},
		Change: changeOf(domain.CollectionListings, domain.OpDelete, id, farmer.ID, nil),
	})
	return nil
}

func (s *ListingService) Get(ctx context.Context, id string) (domain.Listing, error) {
	listing, err := s.repo.GetListing(ctx, id)
	if errors.Is(err, port.ErrNotFound) {
		return domain.Listing{}, ErrListingNotFound
	}
	if err != nil {
		return domain.Listing{}, fmt.Errorf("load listing: %w", err)
	}
	return listing, nil
}

func (s *ListingService) ListByOwner(ctx context.Context, farmerID string) ([]domain.Listing, error) {
	listings, err := s.repo.ListListings(ctx, port.ListingFilter{FarmerID: farmerID})
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return listings, nil
}

// SubscribeMarket streams every listing change on the public market.
func (s *ListingService) SubscribeMarket(ctx context.Context) (<-chan domain.Change, error) {
	ch, err := s.feed.Subscribe(ctx, TopicMarket)
	if err != nil {
		return nil, fmt.Errorf("subscribe market: %w", err)
	}
	return onlyCollection(ctx, ch, domain.CollectionListings), nil
}

func (s *ListingService) owned(ctx context.Context, farmer domain.Account, id string) (domain.Listing, error) {
	if !farmer.Can(domain.ActionManageListings) {
		return domain.Listing{}, ErrForbidden
	}
	listing, err := s.Get(ctx, id)
	if err != nil {
		return domain.Listing{}, err
	}
	if listing.FarmerID != farmer.ID {
		return domain.Listing{}, ErrNotListingOwner
	}
	return listing, nil
}
