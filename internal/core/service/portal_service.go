package service

import (
	"context"

	"github.com/rl1809/farm-market/internal/core/domain"
)

// Overview is the landing data of a portal. Each role fills its own part.
type Overview struct {
	Role        domain.RoleName   `json:"role"`
	Listings    []domain.Listing  `json:"listings,omitempty"`
	Market      []domain.Listing  `json:"market,omitempty"`
	Shipments   []domain.Shipment `json:"shipments,omitempty"`
	OpenJobs    []domain.Shipment `json:"open_jobs,omitempty"`
	Assigned    []domain.Shipment `json:"assigned,omitempty"`
	UnreadCount int               `json:"unread_count"`
}

type Portal interface {
	Overview(ctx context.Context, account domain.Account) (Overview, error)
}

type PortalService struct {
	farmer  farmerPortal
	buyer   buyerPortal
	carrier carrierPortal
}

func NewPortalService(market *MarketplaceService, listings *ListingService, notifications *NotificationService) *PortalService {
	return &PortalService{
		farmer:  farmerPortal{market: market, listings: listings, notifications: notifications},
		buyer:   buyerPortal{market: market, notifications: notifications},
		carrier: carrierPortal{market: market, notifications: notifications},
	}
}

func (p *PortalService) For(role domain.Role) (Portal, error) {
	switch role.(type) {
	case domain.Farmer:
		return p.farmer, nil
	case domain.Buyer:
		return p.buyer, nil
	case domain.Carrier:
		return p.carrier, nil
	}
	return nil, domain.ErrUnknownRole
}

func (p *PortalService) Overview(ctx context.Context, account domain.Account) (Overview, error) {
	role, err := account.Role()
	if err != nil {
		return Overview{}, err
	}
	portal, err := p.For(role)
	if err != nil {
		return Overview{}, err
	}
	return portal.Overview(ctx, account)
}

type farmerPortal struct {
	market        *MarketplaceService
	listings      *ListingService
	notifications *NotificationService
}

func (f farmerPortal) Overview(ctx context.Context, account domain.Account) (Overview, error) {
	listings, err := f.listings.ListByOwner(ctx, account.ID)
	if err != nil {
		return Overview{}, err
	}
	sales, err := f.market.ShipmentsFor(ctx, account)
	if err != nil {
		return Overview{}, err
	}
	unread, err := f.notifications.Unread(ctx, account.ID)
	if err != nil {
		return Overview{}, err
	}
	return Overview{Role: domain.RoleFarmer, Listings: listings, Shipments: sales, UnreadCount: unread}, nil
}

type buyerPortal struct {
	market        *MarketplaceService
	notifications *NotificationService
}

func (b buyerPortal) Overview(ctx context.Context, account domain.Account) (Overview, error) {
	market, err := b.market.Market(ctx, domain.ListingStatusActive)
	if err != nil {
		return Overview{}, err
	}
	orders, err := b.market.ShipmentsFor(ctx, account)
	if err != nil {
		return Overview{}, err
	}
	unread, err := b.notifications.Unread(ctx, account.ID)
	if err != nil {
		return Overview{}, err
	}
	return Overview{Role: domain.RoleBuyer, Market: market, Shipments: orders, UnreadCount: unread}, nil
}

type carrierPortal struct {
	market        *MarketplaceService
	notifications *NotificationService
}

func (c carrierPortal) Overview(ctx context.Context, account domain.Account) (Overview, error) {
	jobs, err := c.market.ShipmentsFor(ctx, account)
	if err != nil {
		return Overview{}, err
	}
	out := Overview{Role: domain.RoleCarrier}
	for _, sh := range jobs {
		switch {
		case sh.Status == domain.ShipmentStatusPending:
			out.OpenJobs = append(out.OpenJobs, sh)
		case sh.CarrierID == account.ID:
			out.Assigned = append(out.Assigned, sh)
		}
	}
	unread, err := c.notifications.Unread(ctx, account.ID)
	if err != nil {
		return Overview{}, err
	}
	out.UnreadCount = unread
	return out, nil
}
