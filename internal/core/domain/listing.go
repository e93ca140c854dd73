package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ListingStatus string

const (
	ListingStatusActive    ListingStatus = "active"
	ListingStatusHarvested ListingStatus = "harvested"
	ListingStatusSold      ListingStatus = "sold"
)

const DefaultUnit = "ton"

// Decimal places kept by the listings and shipments tables.
const (
	QuantityPlaces = 3
	PricePlaces    = 2
)

// ValidateQuantity accepts positive amounts the store can hold unrounded.
func ValidateQuantity(q decimal.Decimal) error {
	if !q.IsPositive() {
		return ErrInvalidQuantity
	}
	if !q.Equal(q.Truncate(QuantityPlaces)) {
		return ErrQuantityPrecision
	}
	return nil
}

// Listing is a crop lot a farmer offers on the market.
type Listing struct {
	ID           string          `json:"id" db:"id"`
	FarmerID     string          `json:"farmer_id" db:"farmer_id"`
	FarmerName   string          `json:"farmer_name" db:"farmer_name"`
	Name         string          `json:"name" db:"name"`
	Variety      string          `json:"variety" db:"variety"`
	Area         decimal.Decimal `json:"area" db:"area"` // quantity on offer, in Unit
	Unit         string          `json:"unit" db:"unit"`
	PricePerUnit decimal.Decimal `json:"price_per_unit" db:"price_per_unit"`
	SowingDate   string          `json:"sowing_date" db:"sowing_date"`
	HarvestDate  string          `json:"harvest_date" db:"harvest_date"`
	Status       ListingStatus   `json:"status" db:"status"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

func (l Listing) Purchasable() bool {
	return l.Status == ListingStatusActive
}

// Origin is the pickup description printed on shipments.
func (l Listing) Origin() string {
	if l.FarmerName == "" {
		return "Origin"
	}
	return "Farm of " + l.FarmerName
}

func (l Listing) Validate() error {
	if l.Name == "" {
		return ErrMissingName
	}
	if err := ValidateQuantity(l.Area); err != nil {
		return err
	}
	if l.PricePerUnit.IsNegative() {
		return ErrInvalidPrice
	}
	if !l.PricePerUnit.Equal(l.PricePerUnit.Truncate(PricePlaces)) {
		return ErrPricePrecision
	}
	return nil
}

// ListingPatch carries a farmer's partial edit. Nil fields are left untouched.
type ListingPatch struct {
	Name         *string          `json:"name"`
	Variety      *string          `json:"variety"`
	Area         *decimal.Decimal `json:"area"`
	Unit         *string          `json:"unit"`
	PricePerUnit *decimal.Decimal `json:"price_per_unit"`
	SowingDate   *string          `json:"sowing_date"`
	HarvestDate  *string          `json:"harvest_date"`
	Status       *ListingStatus   `json:"status"`
}

// Apply returns a copy of l with the patch applied. Only the farmer-editable
// statuses (active, harvested) can be set here; sold is owned by the
// marketplace flow.
func (p ListingPatch) Apply(l Listing) (Listing, error) {
	if p.Name != nil {
		l.Name = *p.Name
	}
	if p.Variety != nil {
		l.Variety = *p.Variety
	}
	if p.Area != nil {
		l.Area = *p.Area
	}
	if p.Unit != nil {
		l.Unit = *p.Unit
	}
	if p.PricePerUnit != nil {
		l.PricePerUnit = *p.PricePerUnit
	}
	if p.SowingDate != nil {
		l.SowingDate = *p.SowingDate
	}
	if p.HarvestDate != nil {
		l.HarvestDate = *p.HarvestDate
	}
	if p.Status != nil {
		if l.Status == ListingStatusSold {
			return l, ErrListingSold
		}
		switch *p.Status {
		case ListingStatusActive, ListingStatusHarvested:
			l.Status = *p.Status
		default:
			return l, ErrInvalidTransition
		}
	}
	if err := l.Validate(); err != nil {
		return l, err
	}
	return l, nil
}
