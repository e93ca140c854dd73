package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/farm-market/internal/core/domain"
	"github.com/rl1809/farm-market/internal/port"
)

var (
	ErrDuplicateRequest   = errors.New("duplicate request")
	ErrForbidden          = errors.New("action not allowed for this role")
	ErrListingNotFound    = errors.New("listing not found")
	ErrListingUnavailable = errors.New("listing not available")
	ErrShipmentNotFound   = errors.New("shipment not found")
	ErrShipmentTaken      = errors.New("shipment already taken by another carrier")
	ErrNotOrderOwner      = errors.New("order belongs to another buyer")
	ErrInvalidAction      = errors.New("invalid shipment action")
)

var tracer = otel.Tracer("github.com/rl1809/farm-market/internal/core/service")

type ReserveRequest struct {
	RequestID   string          `json:"request_id"`
	ListingID   string          `json:"listing_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	Destination string          `json:"destination"`
}

// MarketplaceService coordinates the listing, shipment and notification
// writes of one marketplace action.
type MarketplaceService struct {
	repo   port.MarketplaceRepository
	cache  port.CacheRepository
	events *Dispatcher
	logger *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewMarketplaceService(repo port.MarketplaceRepository, cache port.CacheRepository, events *Dispatcher, logger *zap.Logger) *MarketplaceService {
	return &MarketplaceService{
		repo:   repo,
		cache:  cache,
		events: events,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

func (s *MarketplaceService) Reserve(ctx context.Context, req ReserveRequest, buyer domain.Account) (shipment domain.Shipment, err error) {
	ctx, span := tracer.Start(ctx, "marketplace.reserve", trace.WithAttributes(
		attribute.String("listing.id", req.ListingID),
		attribute.String("buyer.id", buyer.ID),
	))
	defer func() { endSpan(span, err) }()

	if !buyer.Can(domain.ActionReserve) {
		return domain.Shipment{}, ErrForbidden
	}
	if err := domain.ValidateQuantity(req.Quantity); err != nil {
		return domain.Shipment{}, err
	}
	if strings.TrimSpace(req.Destination) == "" {
		return domain.Shipment{}, domain.ErrMissingDestination
	}

	if req.RequestID != "" {
		key := fmt.Sprintf("reserve:%s:%s", buyer.ID, req.RequestID)
		ok, claimErr := s.cache.SetIdempotency(ctx, key)
		if claimErr != nil {
			return domain.Shipment{}, fmt.Errorf("idempotency check failed: %w", claimErr)
		}
		if !ok {
			return domain.Shipment{}, ErrDuplicateRequest
		}
		defer func() {
			if err == nil {
				return
			}
			if releaseErr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key); releaseErr != nil {
				s.logger.Warn("release idempotency key", zap.String("key", key), zap.Error(releaseErr))
			}
		}()
	}

	listing, err := s.repo.GetListing(ctx, req.ListingID)
	if errors.Is(err, port.ErrNotFound) {
		return domain.Shipment{}, ErrListingNotFound
	}
	if err != nil {
		return domain.Shipment{}, fmt.Errorf("load listing: %w", err)
	}
	if !listing.Purchasable() {
		return domain.Shipment{}, ErrListingUnavailable
	}
	if req.Quantity.GreaterThan(listing.Area) {
		return domain.Shipment{}, domain.ErrExceedsAvailable
	}

	now := s.now().UTC()
	invoice := domain.NewInvoice(req.Quantity, listing.PricePerUnit)
	shipment = domain.Shipment{
		ID:          s.newID(),
		ListingID:   listing.ID,
		CropName:    listing.Name,
		Quantity:    req.Quantity,
		Unit:        listing.Unit,
		Origin:      listing.Origin(),
		Destination: strings.TrimSpace(req.Destination),
		BuyerID:     buyer.ID,
		BuyerName:   buyer.Name,
		FarmerID:    listing.FarmerID,
		FarmerName:  listing.FarmerName,
		Status:      domain.ShipmentStatusPending,
		TotalPrice:  invoice.Subtotal,
		PlatformFee: invoice.PlatformFee,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	notices := s.stamp(now, domain.SaleNotice(listing.FarmerID, buyer.Name, listing.Name, req.Quantity, listing.Unit))

	if err := s.repo.Reserve(ctx, shipment, notices); err != nil {
		if errors.Is(err, port.ErrConflict) {
			return domain.Shipment{}, ErrListingUnavailable
		}
		s.logger.Error("reserve listing failed",
			zap.String("listing_id", listing.ID),
			zap.String("buyer_id", buyer.ID),
			zap.Error(err))
		return domain.Shipment{}, fmt.Errorf("reserve listing: %w", err)
	}

	listing.Status = domain.ListingStatusSold
	listing.UpdatedAt = now
	events := []Event{listingEvent(domain.OpUpdate, listing), shipmentEvent(domain.OpCreate, shipment)}
	s.events.Enqueue(ctx, append(events, notificationEvents(notices)...)...)

	return shipment, nil
}

func (s *MarketplaceService) ProcessShipment(ctx context.Context, shipmentID string, action domain.ShipmentAction, carrier domain.Account) (shipment domain.Shipment, err error) {
	ctx, span := tracer.Start(ctx, "marketplace.process_shipment", trace.WithAttributes(
		attribute.String("shipment.id", shipmentID),
		attribute.String("action", string(action)),
		attribute.String("carrier.id", carrier.ID),
	))
	defer func() { endSpan(span, err) }()

	if !carrier.Can(domain.ActionHaul) {
		return domain.Shipment{}, ErrForbidden
	}
	if !action.Valid() {
		return domain.Shipment{}, ErrInvalidAction
	}

	shipment, err = s.loadShipment(ctx, shipmentID)
	if err != nil {
		return domain.Shipment{}, err
	}
	if shipment.TakenByOther(carrier.ID) {
		return domain.Shipment{}, ErrShipmentTaken
	}

	now := s.now().UTC()
	switch action {
	case domain.ShipmentActionAccept:
		if shipment.AcceptedBy(carrier.ID) {
			return shipment, nil
		}
		if shipment.Status != domain.ShipmentStatusPending {
			return domain.Shipment{}, domain.ErrInvalidTransition
		}

		notices := s.stamp(now,
			domain.AcceptedNotice(shipment.BuyerID, shipment.CropName),
			domain.CarrierAssignedNotice(shipment.FarmerID, shipment.CropName),
		)
		if err := s.repo.AcceptShipment(ctx, shipmentID, carrier.ID, notices); err != nil {
			return domain.Shipment{}, s.transitionFailed(ctx, "accept shipment", shipmentID, carrier.ID, err)
		}

		shipment.Status = domain.ShipmentStatusAccepted
		shipment.CarrierID = carrier.ID
		shipment.UpdatedAt = now
		s.events.Enqueue(ctx, append([]Event{shipmentEvent(domain.OpUpdate, shipment)}, notificationEvents(notices)...)...)

	case domain.ShipmentActionReject:
		if shipment.Status != domain.ShipmentStatusPending && !shipment.AcceptedBy(carrier.ID) {
			return domain.Shipment{}, domain.ErrInvalidTransition
		}
		if err := s.repo.RejectShipment(ctx, shipmentID, carrier.ID); err != nil {
			return domain.Shipment{}, s.transitionFailed(ctx, "reject shipment", shipmentID, carrier.ID, err)
		}

		previousCarrier := shipment.CarrierID
		shipment.Status = domain.ShipmentStatusRejected
		shipment.CarrierID = ""
		shipment.UpdatedAt = now
		ev := shipmentEvent(domain.OpUpdate, shipment)
		if previousCarrier != "" {
			ev.Topics = append(ev.Topics, UserTopic(previousCarrier))
		}
		s.events.Enqueue(ctx, ev)
	}

	return shipment, nil
}

func (s *MarketplaceService) CancelOrder(ctx context.Context, shipmentID string, buyer domain.Account) (shipment domain.Shipment, err error) {
	ctx, span := tracer.Start(ctx, "marketplace.cancel_order", trace.WithAttributes(
		attribute.String("shipment.id", shipmentID),
		attribute.String("buyer.id", buyer.ID),
	))
	defer func() { endSpan(span, err) }()

	if !buyer.Can(domain.ActionCancelOrder) {
		return domain.Shipment{}, ErrForbidden
	}

	shipment, err = s.loadShipment(ctx, shipmentID)
	if err != nil {
		return domain.Shipment{}, err
	}
	if shipment.BuyerID != buyer.ID {
		return domain.Shipment{}, ErrNotOrderOwner
	}
	if !shipment.Cancellable() {
		return domain.Shipment{}, domain.ErrInvalidTransition
	}

	now := s.now().UTC()
	notices := s.stamp(now, domain.CancelledNotice(shipment.FarmerID, shipment.CropName))
	if err := s.repo.CancelShipment(ctx, shipmentID, buyer.ID, notices); err != nil {
		if errors.Is(err, port.ErrConflict) {
			return domain.Shipment{}, domain.ErrInvalidTransition
		}
		s.logger.Error("cancel order failed", zap.String("shipment_id", shipmentID), zap.Error(err))
		return domain.Shipment{}, fmt.Errorf("cancel order: %w", err)
	}

	shipment.Status = domain.ShipmentStatusCancelled
	shipment.UpdatedAt = now
	reopened := Event{
		Topics: []string{TopicMarket, UserTopic(shipment.FarmerID)},
		Change: changeOf(domain.CollectionListings, domain.OpUpdate, shipment.ListingID, shipment.FarmerID,
			map[string]domain.ListingStatus{"status": domain.ListingStatusActive}),
	}
	events := []Event{shipmentEvent(domain.OpUpdate, shipment), reopened}
	s.events.Enqueue(ctx, append(events, notificationEvents(notices)...)...)

	return shipment, nil
}

// CompleteDelivery closes an accepted order on behalf of its carrier.
func (s *MarketplaceService) CompleteDelivery(ctx context.Context, shipmentID string, carrier domain.Account) (shipment domain.Shipment, err error) {
	ctx, span := tracer.Start(ctx, "marketplace.complete_delivery", trace.WithAttributes(
		attribute.String("shipment.id", shipmentID),
		attribute.String("carrier.id", carrier.ID),
	))
	defer func() { endSpan(span, err) }()

	if !carrier.Can(domain.ActionHaul) {
		return domain.Shipment{}, ErrForbidden
	}

	shipment, err = s.loadShipment(ctx, shipmentID)
	if err != nil {
		return domain.Shipment{}, err
	}
	if shipment.TakenByOther(carrier.ID) {
		return domain.Shipment{}, ErrShipmentTaken
	}
	if !shipment.AcceptedBy(carrier.ID) {
		return domain.Shipment{}, domain.ErrInvalidTransition
	}

	now := s.now().UTC()
	notices := s.stamp(now,
		domain.DeliveredNotice(shipment.BuyerID, shipment.CropName, shipment.Destination),
		domain.DeliveredNotice(shipment.FarmerID, shipment.CropName, shipment.Destination),
	)
	if err := s.repo.DeliverShipment(ctx, shipmentID, carrier.ID, notices); err != nil {
		return domain.Shipment{}, s.transitionFailed(ctx, "deliver shipment", shipmentID, carrier.ID, err)
	}

	shipment.Status = domain.ShipmentStatusDelivered
	shipment.UpdatedAt = now
	s.events.Enqueue(ctx, append([]Event{shipmentEvent(domain.OpUpdate, shipment)}, notificationEvents(notices)...)...)

	return shipment, nil
}

// Market lists every listing, optionally narrowed to one status.
func (s *MarketplaceService) Market(ctx context.Context, status domain.ListingStatus) ([]domain.Listing, error) {
	listings, err := s.repo.ListListings(ctx, port.ListingFilter{Status: status})
	if err != nil {
		return nil, fmt.Errorf("list market: %w", err)
	}
	return listings, nil
}

// ShipmentsFor returns the orders relevant to account's role: a farmer's
// sales, a buyer's purchases, or a carrier's open and assigned jobs.
func (s *MarketplaceService) ShipmentsFor(ctx context.Context, account domain.Account) ([]domain.Shipment, error) {
	role, err := account.Role()
	if err != nil {
		return nil, err
	}

	var filters []port.ShipmentFilter
	switch role.(type) {
	case domain.Farmer:
		filters = append(filters, port.ShipmentFilter{FarmerID: account.ID})
	case domain.Buyer:
		filters = append(filters, port.ShipmentFilter{BuyerID: account.ID})
	case domain.Carrier:
		filters = append(filters,
			port.ShipmentFilter{Statuses: []domain.ShipmentStatus{domain.ShipmentStatusPending}},
			port.ShipmentFilter{CarrierID: account.ID},
		)
	}

	seen := make(map[string]bool)
	var out []domain.Shipment
	for _, f := range filters {
		list, err := s.repo.ListShipments(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("list shipments: %w", err)
		}
		for _, sh := range list {
			if seen[sh.ID] {
				continue
			}
			seen[sh.ID] = true
			out = append(out, sh)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// QuoteInvoice prices a prospective purchase without reserving anything.
func (s *MarketplaceService) QuoteInvoice(ctx context.Context, listingID string, quantity decimal.Decimal) (domain.Invoice, error) {
	if err := domain.ValidateQuantity(quantity); err != nil {
		return domain.Invoice{}, err
	}
	listing, err := s.repo.GetListing(ctx, listingID)
	if errors.Is(err, port.ErrNotFound) {
		return domain.Invoice{}, ErrListingNotFound
	}
	if err != nil {
		return domain.Invoice{}, fmt.Errorf("load listing: %w", err)
	}
	if quantity.GreaterThan(listing.Area) {
		return domain.Invoice{}, domain.ErrExceedsAvailable
	}
	return domain.NewInvoice(quantity, listing.PricePerUnit), nil
}

// QuoteEarnings estimates a carrier's take for hauling a shipment.
func (s *MarketplaceService) QuoteEarnings(ctx context.Context, shipmentID string, distanceKm decimal.Decimal, carrier domain.Account) (domain.Earnings, error) {
	if !carrier.Can(domain.ActionHaul) {
		return domain.Earnings{}, ErrForbidden
	}
	shipment, err := s.loadShipment(ctx, shipmentID)
	if err != nil {
		return domain.Earnings{}, err
	}
	return domain.NewEarnings(distanceKm, carrier.PricePerKm, shipment.Quantity)
}

func (s *MarketplaceService) loadShipment(ctx context.Context, id string) (domain.Shipment, error) {
	shipment, err := s.repo.GetShipment(ctx, id)
	if errors.Is(err, port.ErrNotFound) {
		return domain.Shipment{}, ErrShipmentNotFound
	}
	if err != nil {
		return domain.Shipment{}, fmt.Errorf("load shipment: %w", err)
	}
	return shipment, nil
}

// transitionFailed maps a failed carrier transition. A lost conditional
// update is re-read so the caller learns whether another carrier won.
func (s *MarketplaceService) transitionFailed(ctx context.Context, op, shipmentID, carrierID string, err error) error {
	if !errors.Is(err, port.ErrConflict) {
		s.logger.Error(op+" failed", zap.String("shipment_id", shipmentID), zap.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	current, loadErr := s.loadShipment(ctx, shipmentID)
	if loadErr != nil {
		return loadErr
	}
	if current.TakenByOther(carrierID) {
		return ErrShipmentTaken
	}
	return domain.ErrInvalidTransition
}

func (s *MarketplaceService) stamp(at time.Time, notices ...domain.Notification) []domain.Notification {
	for i := range notices {
		notices[i].ID = s.newID()
		notices[i].CreatedAt = at
	}
	return notices
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
