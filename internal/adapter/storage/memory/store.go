// Package memory keeps every store in process memory. It backs STORE=memory
// and the service and handler tests; conditional writes follow the same
// status rules as the MySQL adapter.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/farm-market/internal/core/domain"
	"github.com/rl1809/farm-market/internal/port"
)

type Store struct {
	mu            sync.Mutex
	listings      map[string]domain.Listing
	shipments     map[string]domain.Shipment
	notifications []domain.Notification
	accounts      map[string]domain.Account
	emails        map[string]string
	idempotency   map[string]time.Time
	sessions      map[string]sessionEntry

	now func() time.Time
}

type sessionEntry struct {
	session   domain.Session
	expiresAt time.Time
}

const idempotencyTTL = 24 * time.Hour

func NewStore() *Store {
	return &Store{
		listings:    make(map[string]domain.Listing),
		shipments:   make(map[string]domain.Shipment),
		accounts:    make(map[string]domain.Account),
		emails:      make(map[string]string),
		idempotency: make(map[string]time.Time),
		sessions:    make(map[string]sessionEntry),
		now:         time.Now,
	}
}

var (
	_ port.MarketplaceRepository = (*Store)(nil)
	_ port.AccountRepository     = (*Store)(nil)
	_ port.CacheRepository       = (*Store)(nil)
)

func (s *Store) CreateListing(ctx context.Context, listing domain.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[listing.ID]; ok {
		return port.ErrDuplicate
	}
	s.listings[listing.ID] = listing
	return nil
}

func (s *Store) GetListing(ctx context.Context, id string) (domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return domain.Listing{}, port.ErrNotFound
	}
	return l, nil
}

func (s *Store) UpdateListing(ctx context.Context, listing domain.Listing, expected domain.ListingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.listings[listing.ID]
	if !ok {
		return port.ErrNotFound
	}
	if cur.Status != expected || cur.FarmerID != listing.FarmerID {
		return port.ErrConflict
	}
	listing.CreatedAt = cur.CreatedAt
	s.listings[listing.ID] = listing
	return nil
}

func (s *Store) DeleteListing(ctx context.Context, id, farmerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.listings[id]
	if !ok {
		return port.ErrNotFound
	}
	if cur.FarmerID != farmerID || cur.Status == domain.ListingStatusSold {
		return port.ErrConflict
	}
	delete(s.listings, id)
	return nil
}

func (s *Store) ListListings(ctx context.Context, filter port.ListingFilter) ([]domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Listing
	for _, l := range s.listings {
		if filter.FarmerID != "" && l.FarmerID != filter.FarmerID {
			continue
		}
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) Reserve(ctx context.Context, shipment domain.Shipment, notices []domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[shipment.ListingID]
	if !ok || l.Status != domain.ListingStatusActive || l.Area.LessThan(shipment.Quantity) {
		return port.ErrConflict
	}
	l.Status = domain.ListingStatusSold
	l.UpdatedAt = shipment.CreatedAt
	s.listings[l.ID] = l
	s.shipments[shipment.ID] = shipment
	s.notifications = append(s.notifications, notices...)
	return nil
}

func (s *Store) AcceptShipment(ctx context.Context, shipmentID, carrierID string, notices []domain.Notification) error {
	return s.transition(shipmentID, notices, func(sh *domain.Shipment) bool {
		if sh.Status != domain.ShipmentStatusPending {
			return false
		}
		sh.Status = domain.ShipmentStatusAccepted
		sh.CarrierID = carrierID
		return true
	})
}

func (s *Store) RejectShipment(ctx context.Context, shipmentID, carrierID string) error {
	return s.transition(shipmentID, nil, func(sh *domain.Shipment) bool {
		if sh.Status != domain.ShipmentStatusPending && !sh.AcceptedBy(carrierID) {
			return false
		}
		sh.Status = domain.ShipmentStatusRejected
		sh.CarrierID = ""
		return true
	})
}

func (s *Store) CancelShipment(ctx context.Context, shipmentID, buyerID string, notices []domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shipments[shipmentID]
	if !ok {
		return port.ErrNotFound
	}
	if sh.BuyerID != buyerID || !sh.Cancellable() {
		return port.ErrConflict
	}
	now := s.now().UTC()
	sh.Status = domain.ShipmentStatusCancelled
	sh.UpdatedAt = now
	s.shipments[sh.ID] = sh
	if l, ok := s.listings[sh.ListingID]; ok && l.Status == domain.ListingStatusSold {
		l.Status = domain.ListingStatusActive
		l.UpdatedAt = now
		s.listings[l.ID] = l
	}
	s.notifications = append(s.notifications, notices...)
	return nil
}

func (s *Store) DeliverShipment(ctx context.Context, shipmentID, carrierID string, notices []domain.Notification) error {
	return s.transition(shipmentID, notices, func(sh *domain.Shipment) bool {
		if !sh.AcceptedBy(carrierID) {
			return false
		}
		sh.Status = domain.ShipmentStatusDelivered
		return true
	})
}

func (s *Store) transition(shipmentID string, notices []domain.Notification, apply func(*domain.Shipment) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shipments[shipmentID]
	if !ok {
		return port.ErrNotFound
	}
	if !apply(&sh) {
		return port.ErrConflict
	}
	sh.UpdatedAt = s.now().UTC()
	s.shipments[sh.ID] = sh
	s.notifications = append(s.notifications, notices...)
	return nil
}

func (s *Store) GetShipment(ctx context.Context, id string) (domain.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shipments[id]
	if !ok {
		return domain.Shipment{}, port.ErrNotFound
	}
	return sh, nil
}

func (s *Store) ListShipments(ctx context.Context, filter port.ShipmentFilter) ([]domain.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Shipment
	for _, sh := range s.shipments {
		if len(filter.ShipmentIDs) > 0 && !slices.Contains(filter.ShipmentIDs, sh.ID) {
			continue
		}
		if filter.BuyerID != "" && sh.BuyerID != filter.BuyerID {
			continue
		}
		if filter.FarmerID != "" && sh.FarmerID != filter.FarmerID {
			continue
		}
		if filter.CarrierID != "" && sh.CarrierID != filter.CarrierID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, sh.Status) {
			continue
		}
		out = append(out, sh)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if s.notifications[i].UserID == userID {
			out = append(out, s.notifications[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) MarkNotificationsRead(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.notifications {
		if s.notifications[i].UserID == userID && !s.notifications[i].Read {
			s.notifications[i].Read = true
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateAccount(ctx context.Context, account domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.emails[account.Email]; ok {
		return port.ErrDuplicate
	}
	s.accounts[account.ID] = account
	s.emails[account.Email] = account.ID
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, port.ErrNotFound
	}
	return a, nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emails[email]
	if !ok {
		return domain.Account{}, port.ErrNotFound
	}
	return s.accounts[id], nil
}

func (s *Store) SetIdempotency(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exp, ok := s.idempotency[key]; ok && s.now().Before(exp) {
		return false, nil
	}
	s.idempotency[key] = s.now().Add(idempotencyTTL)
	return true, nil
}

func (s *Store) ReleaseIdempotency(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.idempotency, key)
	return nil
}

func (s *Store) SaveSession(ctx context.Context, session domain.Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = sessionEntry{session: session, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok || !s.now().Before(e.expiresAt) {
		return domain.Session{}, port.ErrNotFound
	}
	return e.session, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
