package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is a create-once inbox message for exactly one user.
type Notification struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Message   string    `json:"message" db:"message"`
	Severity  Severity  `json:"severity" db:"severity"`
	Read      bool      `json:"read" db:"is_read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func SaleNotice(farmerID, buyerName, cropName string, quantity decimal.Decimal, unit string) Notification {
	return Notification{
		UserID:   farmerID,
		Message:  fmt.Sprintf("Sale completed! %s bought your %s (%s %s).", buyerName, cropName, quantity.String(), unit),
		Severity: SeveritySuccess,
	}
}

func AcceptedNotice(buyerID, cropName string) Notification {
	return Notification{
		UserID:   buyerID,
		Message:  fmt.Sprintf("Shipment accepted for %s.", cropName),
		Severity: SeveritySuccess,
	}
}

func CarrierAssignedNotice(farmerID, cropName string) Notification {
	return Notification{
		UserID:   farmerID,
		Message:  fmt.Sprintf("Carrier assigned to pick up %s.", cropName),
		Severity: SeverityInfo,
	}
}

func CancelledNotice(farmerID, cropName string) Notification {
	return Notification{
		UserID:   farmerID,
		Message:  fmt.Sprintf("Sale cancelled by the buyer (%s).", cropName),
		Severity: SeverityError,
	}
}

func DeliveredNotice(userID, cropName, destination string) Notification {
	return Notification{
		UserID:   userID,
		Message:  fmt.Sprintf("%s delivered to %s.", cropName, destination),
		Severity: SeveritySuccess,
	}
}
