package domain

import "github.com/shopspring/decimal"

var (
	// PlatformFeeRate applies to both the buyer subtotal and carrier gross.
	PlatformFeeRate = decimal.RequireFromString("0.10")

	ShippingEstimate = decimal.NewFromInt(150)
	DefaultRatePerKm = decimal.NewFromInt(15)
	LoadBonusPerUnit = decimal.RequireFromString("0.5")
)

type Invoice struct {
	Subtotal         decimal.Decimal `json:"subtotal"`
	PlatformFee      decimal.Decimal `json:"platform_fee"`
	ShippingEstimate decimal.Decimal `json:"shipping_estimate"`
	Total            decimal.Decimal `json:"total"`
}

// NewInvoice prices quantity units at unitPrice. Subtotal and PlatformFee are
// what a shipment records as TotalPrice and PlatformFee.
func NewInvoice(quantity, unitPrice decimal.Decimal) Invoice {
	subtotal := quantity.Mul(unitPrice)
	fee := PlatformFee(subtotal)
	return Invoice{
		Subtotal:         subtotal,
		PlatformFee:      fee,
		ShippingEstimate: ShippingEstimate,
		Total:            subtotal.Add(fee).Add(ShippingEstimate),
	}
}

func PlatformFee(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(PlatformFeeRate)
}

type Earnings struct {
	TransportCost decimal.Decimal `json:"transport_cost"`
	LoadBonus     decimal.Decimal `json:"load_bonus"`
	Gross         decimal.Decimal `json:"gross"`
	PlatformFee   decimal.Decimal `json:"platform_fee"`
	Net           decimal.Decimal `json:"net"`
}

// NewEarnings estimates what a carrier makes hauling quantity units over
// distanceKm. A zero ratePerKm falls back to DefaultRatePerKm.
func NewEarnings(distanceKm, ratePerKm, quantity decimal.Decimal) (Earnings, error) {
	if !distanceKm.IsPositive() {
		return Earnings{}, ErrInvalidDistance
	}
	if !ratePerKm.IsPositive() {
		ratePerKm = DefaultRatePerKm
	}
	transport := distanceKm.Mul(ratePerKm)
	bonus := quantity.Mul(LoadBonusPerUnit)
	gross := transport.Add(bonus)
	fee := PlatformFee(gross)
	return Earnings{
		TransportCost: transport,
		LoadBonus:     bonus,
		Gross:         gross,
		PlatformFee:   fee,
		Net:           gross.Sub(fee),
	}, nil
}
