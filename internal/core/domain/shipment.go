package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ShipmentStatus string

const (
	ShipmentStatusPending   ShipmentStatus = "pending"
	ShipmentStatusAccepted  ShipmentStatus = "accepted"
	ShipmentStatusRejected  ShipmentStatus = "rejected"
	ShipmentStatusCancelled ShipmentStatus = "cancelled"
	ShipmentStatusDelivered ShipmentStatus = "delivered"
)

type ShipmentAction string

const (
	ShipmentActionAccept ShipmentAction = "accept"
	ShipmentActionReject ShipmentAction = "reject"
)

func (a ShipmentAction) Valid() bool {
	return a == ShipmentActionAccept || a == ShipmentActionReject
}

// Shipment is a purchase order for a listing, later picked up by a carrier.
type Shipment struct {
	ID          string          `json:"id" db:"id"`
	ListingID   string          `json:"listing_id" db:"listing_id"`
	CropName    string          `json:"crop_name" db:"crop_name"`
	Quantity    decimal.Decimal `json:"quantity" db:"quantity"`
	Unit        string          `json:"unit" db:"unit"`
	Origin      string          `json:"origin" db:"origin"`
	Destination string          `json:"destination" db:"destination"`
	BuyerID     string          `json:"buyer_id" db:"buyer_id"`
	BuyerName   string          `json:"buyer_name" db:"buyer_name"`
	FarmerID    string          `json:"farmer_id" db:"farmer_id"`
	FarmerName  string          `json:"farmer_name" db:"farmer_name"`
	CarrierID   string          `json:"carrier_id,omitempty" db:"carrier_id"`
	Status      ShipmentStatus  `json:"status" db:"status"`
	TotalPrice  decimal.Decimal `json:"total_price" db:"total_price"`
	PlatformFee decimal.Decimal `json:"platform_fee" db:"platform_fee"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Cancellable reports whether the buyer may still withdraw the order.
func (s Shipment) Cancellable() bool {
	return s.Status == ShipmentStatusPending || s.Status == ShipmentStatusRejected
}

// AcceptedBy reports whether carrierID currently holds the order.
func (s Shipment) AcceptedBy(carrierID string) bool {
	return s.Status == ShipmentStatusAccepted && s.CarrierID == carrierID
}

// TakenByOther reports whether a carrier other than carrierID holds the order.
func (s Shipment) TakenByOther(carrierID string) bool {
	return s.Status == ShipmentStatusAccepted && s.CarrierID != "" && s.CarrierID != carrierID
}
