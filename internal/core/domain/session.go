package domain

import (
	"encoding/json"
	"time"
)

type Session struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SessionEventKind string

const (
	SessionSignedIn  SessionEventKind = "signed_in"
	SessionSignedOut SessionEventKind = "signed_out"
)

// SessionEvent is delivered to auth watchers on every sign-in and sign-out.
type SessionEvent struct {
	Kind      SessionEventKind `json:"kind"`
	AccountID string           `json:"account_id"`
	SessionID string           `json:"session_id"`
	At        time.Time        `json:"at"`
}

// Change is one entry on a live feed: the collection that changed, the
// affected document and its owner.
type Change struct {
	Collection string          `json:"collection"`
	Op         string          `json:"op"`
	ID         string          `json:"id"`
	OwnerID    string          `json:"owner_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

const (
	CollectionListings      = "crops"
	CollectionShipments     = "shipments"
	CollectionNotifications = "notifications"
	CollectionHarvests      = "harvests"
	CollectionReminders     = "reminders"
	CollectionAgenda        = "agenda"
)
