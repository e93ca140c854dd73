package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func ptr[T any](v T) *T { return &v }

func TestListingPatchApply(t *testing.T) {
	base := Listing{Name: "Corn", Area: decimal.NewFromInt(10), PricePerUnit: decimal.NewFromInt(20), Status: ListingStatusActive}

	got, err := ListingPatch{Name: ptr("Maize"), Area: ptr(decimal.NewFromInt(8))}.Apply(base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Maize" || !got.Area.Equal(decimal.NewFromInt(8)) || !got.PricePerUnit.Equal(decimal.NewFromInt(20)) {
		t.Errorf("unexpected result %+v", got)
	}
	if base.Name != "Corn" {
		t.Error("Apply must not modify its input")
	}

	tests := []struct {
		name  string
		start ListingStatus
		patch ListingPatch
		want  error
	}{
		{"harvest", ListingStatusActive, ListingPatch{Status: ptr(ListingStatusHarvested)}, nil},
		{"reopen", ListingStatusHarvested, ListingPatch{Status: ptr(ListingStatusActive)}, nil},
		{"cannot mark sold", ListingStatusActive, ListingPatch{Status: ptr(ListingStatusSold)}, ErrInvalidTransition},
		{"sold is final", ListingStatusSold, ListingPatch{Status: ptr(ListingStatusActive)}, ErrListingSold},
		{"bogus status", ListingStatusActive, ListingPatch{Status: ptr(ListingStatus("gone"))}, ErrInvalidTransition},
		{"empty name", ListingStatusActive, ListingPatch{Name: ptr("")}, ErrMissingName},
		{"zero area", ListingStatusActive, ListingPatch{Area: ptr(decimal.Zero)}, ErrInvalidQuantity},
		{"negative price", ListingStatusActive, ListingPatch{PricePerUnit: ptr(decimal.NewFromInt(-1))}, ErrInvalidPrice},
		{"area past store scale", ListingStatusActive, ListingPatch{Area: ptr(decimal.RequireFromString("1.0004"))}, ErrQuantityPrecision},
		{"area trailing zeros", ListingStatusActive, ListingPatch{Area: ptr(decimal.RequireFromString("2.5000"))}, nil},
		{"price past store scale", ListingStatusActive, ListingPatch{PricePerUnit: ptr(decimal.RequireFromString("19.999"))}, ErrPricePrecision},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := base
			l.Status = tt.start
			if _, err := tt.patch.Apply(l); err != tt.want {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestListingOrigin(t *testing.T) {
	if got := (Listing{FarmerName: "Ana"}).Origin(); got != "Farm of Ana" {
		t.Errorf("got %q", got)
	}
	if got := (Listing{}).Origin(); got != "Origin" {
		t.Errorf("got %q", got)
	}
}

func TestValidateQuantity(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{"4", nil},
		{"0.125", nil},
		{"1.2500", nil},
		{"0", ErrInvalidQuantity},
		{"-2", ErrInvalidQuantity},
		{"0.0004", ErrQuantityPrecision},
		{"3.1415", ErrQuantityPrecision},
	}
	for _, tt := range tests {
		if err := ValidateQuantity(decimal.RequireFromString(tt.in)); err != tt.want {
			t.Errorf("ValidateQuantity(%s) = %v, want %v", tt.in, err, tt.want)
		}
	}
}
