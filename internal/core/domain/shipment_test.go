package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestShipmentPredicates(t *testing.T) {
	tests := []struct {
		status      ShipmentStatus
		carrier     string
		cancellable bool
		acceptedByC bool
		takenFromD  bool
	}{
		{ShipmentStatusPending, "", true, false, false},
		{ShipmentStatusRejected, "", true, false, false},
		{ShipmentStatusAccepted, "c", false, true, true},
		{ShipmentStatusDelivered, "c", false, false, false},
		{ShipmentStatusCancelled, "", false, false, false},
	}
	for _, tt := range tests {
		s := Shipment{Status: tt.status, CarrierID: tt.carrier}
		if s.Cancellable() != tt.cancellable {
			t.Errorf("%s: Cancellable = %v", tt.status, s.Cancellable())
		}
		if s.AcceptedBy("c") != tt.acceptedByC {
			t.Errorf("%s: AcceptedBy(c) = %v", tt.status, s.AcceptedBy("c"))
		}
		if s.TakenByOther("d") != tt.takenFromD {
			t.Errorf("%s: TakenByOther(d) = %v", tt.status, s.TakenByOther("d"))
		}
		if s.TakenByOther("c") {
			t.Errorf("%s: the holder is never another carrier", tt.status)
		}
	}

	if !ShipmentActionAccept.Valid() || !ShipmentActionReject.Valid() || ShipmentAction("ship").Valid() {
		t.Error("unexpected action validity")
	}
}

func TestRecordValidation(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	h := Harvest{CropName: "Corn", Quantity: decimal.NewFromInt(3)}.WithIdentity("h1", "f1", now, now)
	if err := h.Validate(); err != nil {
		t.Errorf("harvest: %v", err)
	}
	if err := (Harvest{Quantity: decimal.NewFromInt(3), Quality: QualityGood}).Validate(); err != ErrMissingName {
		t.Errorf("harvest without crop: %v", err)
	}
	if err := (Harvest{CropName: "Corn", Quality: "mythic", Quantity: decimal.NewFromInt(1)}).Validate(); err != ErrInvalidKind {
		t.Errorf("harvest quality: %v", err)
	}

	a := AgendaItem{Title: "Visit", Start: now}.WithIdentity("a1", "f1", now, now)
	if !a.End.Equal(a.Start) {
		t.Errorf("missing end defaults to start, got %v", a.End)
	}
	if err := a.Validate(); err != nil {
		t.Errorf("agenda: %v", err)
	}

	r := Reminder{Title: "Water", DueAt: now.Add(-time.Hour)}.WithIdentity("r1", "f1", now, now)
	if !r.Overdue(now) {
		t.Error("open reminder past due should be overdue")
	}
	r.Completed = true
	if r.Overdue(now) {
		t.Error("completed reminders are never overdue")
	}
}
