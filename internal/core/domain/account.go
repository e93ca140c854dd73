package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type RoleName string

const (
	RoleFarmer  RoleName = "farmer"
	RoleBuyer   RoleName = "buyer"
	RoleCarrier RoleName = "carrier"
)

type Action int

const (
	ActionManageListings Action = iota
	ActionReserve
	ActionCancelOrder
	ActionHaul
	ActionKeepRecords
)

// Role is the closed set of portal roles. Only Farmer, Buyer and Carrier
// implement it.
type Role interface {
	Name() RoleName
	Permits(Action) bool
	role()
}

type Farmer struct{}

func (Farmer) Name() RoleName { return RoleFarmer }
func (Farmer) role()          {}

func (Farmer) Permits(a Action) bool {
	return a == ActionManageListings || a == ActionKeepRecords
}

type Buyer struct{}

func (Buyer) Name() RoleName { return RoleBuyer }
func (Buyer) role()          {}

func (Buyer) Permits(a Action) bool {
	return a == ActionReserve || a == ActionCancelOrder
}

type Carrier struct{}

func (Carrier) Name() RoleName { return RoleCarrier }
func (Carrier) role()          {}

func (Carrier) Permits(a Action) bool {
	return a == ActionHaul
}

// ParseRole accepts canonical role names and the legacy portal names.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "farmer", "agricultor":
		return Farmer{}, nil
	case "buyer", "comprador":
		return Buyer{}, nil
	case "carrier", "logistics", "logistica":
		return Carrier{}, nil
	}
	return nil, ErrUnknownRole
}

type Account struct {
	ID           string          `json:"id" db:"id"`
	Name         string          `json:"name" db:"name"`
	Email        string          `json:"email" db:"email"`
	Farm         string          `json:"farm" db:"farm"`
	RoleName     RoleName        `json:"role" db:"role"`
	PricePerKm   decimal.Decimal `json:"price_per_km" db:"price_per_km"`
	MaxCapacity  decimal.Decimal `json:"max_capacity" db:"max_capacity"`
	PasswordHash []byte          `json:"-" db:"password_hash"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

func (a Account) Role() (Role, error) {
	return ParseRole(string(a.RoleName))
}

func (a Account) Can(act Action) bool {
	r, err := a.Role()
	return err == nil && r.Permits(act)
}

// Registration is the input to account creation.
type Registration struct {
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	Password    string          `json:"password"`
	Farm        string          `json:"farm"`
	Role        string          `json:"role"`
	PricePerKm  decimal.Decimal `json:"price_per_km"`
	MaxCapacity decimal.Decimal `json:"max_capacity"`
}

func (r Registration) Validate() (Role, error) {
	if strings.TrimSpace(r.Email) == "" {
		return nil, ErrInvalidEmail
	}
	if len(r.Password) < 6 {
		return nil, ErrWeakPassword
	}
	role, err := ParseRole(r.Role)
	if err != nil {
		return nil, err
	}
	switch role.(type) {
	case Farmer:
		if strings.TrimSpace(r.Farm) == "" {
			return nil, ErrMissingFarm
		}
	case Carrier:
		if !r.PricePerKm.IsPositive() {
			return nil, ErrInvalidCarrierRate
		}
		if !r.MaxCapacity.IsPositive() {
			return nil, ErrInvalidCapacity
		}
	}
	return role, nil
}
