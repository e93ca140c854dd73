package port

import (
	"context"
	"errors"

	"github.com/rl1809/farm-market/internal/core/domain"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional write matched no row because
	// the stored status moved on since it was read.
	ErrConflict = errors.New("conditional update conflict")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("duplicate key")
)

type ListingFilter struct {
	FarmerID string
	Status   domain.ListingStatus
}

type ShipmentFilter struct {
	ShipmentIDs []string
	BuyerID     string
	FarmerID    string
	CarrierID   string
	Statuses    []domain.ShipmentStatus
}

type MarketplaceRepository interface {
	// CreateListing inserts a new listing
	CreateListing(ctx context.Context, listing domain.Listing) error

	// GetListing returns ErrNotFound when the listing does not exist
	GetListing(ctx context.Context, id string) (domain.Listing, error)

	// UpdateListing writes a farmer edit, guarded by the status the edit was based on
	UpdateListing(ctx context.Context, listing domain.Listing, expected domain.ListingStatus) error

	// DeleteListing removes a listing unless it is sold
	DeleteListing(ctx context.Context, id, farmerID string) error

	ListListings(ctx context.Context, filter ListingFilter) ([]domain.Listing, error)

	// Reserve flips the listing active->sold and inserts the shipment and
	// notifications in one transaction. ErrConflict means nothing was written.
	Reserve(ctx context.Context, shipment domain.Shipment, notices []domain.Notification) error

	// AcceptShipment moves pending->accepted for carrierID with notifications
	AcceptShipment(ctx context.Context, shipmentID, carrierID string, notices []domain.Notification) error

	// RejectShipment moves pending->rejected, or accepted->rejected when held by carrierID
	RejectShipment(ctx context.Context, shipmentID, carrierID string) error

	// CancelShipment moves pending|rejected->cancelled for buyerID and reopens the listing
	CancelShipment(ctx context.Context, shipmentID, buyerID string, notices []domain.Notification) error

	// DeliverShipment moves accepted->delivered for the assigned carrier
	DeliverShipment(ctx context.Context, shipmentID, carrierID string, notices []domain.Notification) error

	// GetShipment returns ErrNotFound when the shipment does not exist
	GetShipment(ctx context.Context, id string) (domain.Shipment, error)

	ListShipments(ctx context.Context, filter ShipmentFilter) ([]domain.Shipment, error)

	// ListNotifications returns the user's inbox, newest first
	ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error)

	// MarkNotificationsRead flags every unread notification of userID as read
	MarkNotificationsRead(ctx context.Context, userID string) (int64, error)
}

type AccountRepository interface {
	// CreateAccount returns ErrDuplicate when the email is registered
	CreateAccount(ctx context.Context, account domain.Account) error

	GetAccount(ctx context.Context, id string) (domain.Account, error)

	GetAccountByEmail(ctx context.Context, email string) (domain.Account, error)
}
