package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/farm-market/internal/core/domain"
	"github.com/rl1809/farm-market/internal/port"
)

func seed(t *testing.T, s *Store) (domain.Listing, domain.Shipment) {
	t.Helper()
	now := time.Now().UTC()
	l := domain.Listing{
		ID: "l1", FarmerID: "f1", Name: "Corn",
		Area: decimal.NewFromInt(10), PricePerUnit: decimal.NewFromInt(20),
		Status: domain.ListingStatusActive, CreatedAt: now,
	}
	if err := s.CreateListing(context.Background(), l); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	sh := domain.Shipment{
		ID: "s1", ListingID: l.ID, BuyerID: "b1", FarmerID: "f1",
		Quantity: decimal.NewFromInt(4), Status: domain.ShipmentStatusPending, CreatedAt: now,
	}
	if err := s.Reserve(context.Background(), sh, nil); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	return l, sh
}

func TestStore_CancelAfterCarrierRejects(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	l, sh := seed(t, s)

	if err := s.AcceptShipment(ctx, sh.ID, "c1", nil); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := s.RejectShipment(ctx, sh.ID, "c2"); err != port.ErrConflict {
		t.Errorf("another carrier must not reject an accepted shipment, got %v", err)
	}
	if err := s.CancelShipment(ctx, sh.ID, "b1", nil); err != port.ErrConflict {
		t.Errorf("accepted shipment must not be cancellable, got %v", err)
	}
	if err := s.RejectShipment(ctx, sh.ID, "c1"); err != nil {
		t.Fatalf("reject by assigned carrier: %v", err)
	}

	got, _ := s.GetShipment(ctx, sh.ID)
	if got.Status != domain.ShipmentStatusRejected || got.CarrierID != "" {
		t.Errorf("expected rejected and unassigned, got %s/%q", got.Status, got.CarrierID)
	}

	notice := domain.Notification{ID: "n1", UserID: "f1", Message: "cancelled"}
	if err := s.CancelShipment(ctx, sh.ID, "b1", []domain.Notification{notice}); err != nil {
		t.Fatalf("cancel rejected: %v", err)
	}
	listing, _ := s.GetListing(ctx, l.ID)
	if listing.Status != domain.ListingStatusActive {
		t.Errorf("expected listing active again, got %s", listing.Status)
	}
	inbox, _ := s.ListNotifications(ctx, "f1")
	if len(inbox) != 1 || inbox[0].ID != "n1" {
		t.Errorf("expected the cancel notice, got %+v", inbox)
	}
	if err := s.CancelShipment(ctx, sh.ID, "b1", nil); err != port.ErrConflict {
		t.Errorf("cancelled shipment must stay cancelled, got %v", err)
	}
}
