package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record is implemented by the owner-scoped documents a farmer keeps next to
// the marketplace: harvests, reminders and agenda items.
type Record[T any] interface {
	RecordID() string
	RecordOwner() string
	RecordCreatedAt() time.Time
	// WithIdentity stamps the storage identity and timestamps onto a copy of
	// the record, overwriting whatever the client sent for them.
	WithIdentity(id, ownerID string, createdAt, updatedAt time.Time) T
	Validate() error
}

type HarvestQuality string

const (
	QualityExcellent HarvestQuality = "excellent"
	QualityGood      HarvestQuality = "good"
	QualityFair      HarvestQuality = "fair"
	QualityPoor      HarvestQuality = "poor"
)

type Harvest struct {
	ID          string          `json:"id" bson:"_id"`
	OwnerID     string          `json:"owner_id" bson:"owner_id"`
	ListingID   string          `json:"listing_id" bson:"listing_id"`
	CropName    string          `json:"crop_name" bson:"crop_name"`
	HarvestDate string          `json:"harvest_date" bson:"harvest_date"`
	Quantity    decimal.Decimal `json:"quantity" bson:"quantity"`
	Unit        string          `json:"unit" bson:"unit"`
	Quality     HarvestQuality  `json:"quality" bson:"quality"`
	Notes       string          `json:"notes" bson:"notes"`
	CreatedAt   time.Time       `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" bson:"updated_at"`
}

func (h Harvest) RecordID() string           { return h.ID }
func (h Harvest) RecordOwner() string        { return h.OwnerID }
func (h Harvest) RecordCreatedAt() time.Time { return h.CreatedAt }

func (h Harvest) WithIdentity(id, ownerID string, createdAt, updatedAt time.Time) Harvest {
	h.ID, h.OwnerID = id, ownerID
	h.CreatedAt, h.UpdatedAt = createdAt, updatedAt
	if h.Unit == "" {
		h.Unit = "kg"
	}
	if h.Quality == "" {
		h.Quality = QualityGood
	}
	return h
}

func (h Harvest) Validate() error {
	if h.ListingID == "" && h.CropName == "" {
		return ErrMissingName
	}
	if !h.Quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	switch h.Quality {
	case QualityExcellent, QualityGood, QualityFair, QualityPoor:
		return nil
	}
	return ErrInvalidKind
}

type ReminderKind string

const (
	ReminderWater     ReminderKind = "water"
	ReminderFertilize ReminderKind = "fertilize"
	ReminderHarvest   ReminderKind = "harvest"
	ReminderOther     ReminderKind = "other"
)

type Reminder struct {
	ID        string       `json:"id" bson:"_id"`
	OwnerID   string       `json:"owner_id" bson:"owner_id"`
	Title     string       `json:"title" bson:"title"`
	DueAt     time.Time    `json:"due_at" bson:"due_at"`
	Kind      ReminderKind `json:"kind" bson:"kind"`
	Completed bool         `json:"completed" bson:"completed"`
	CreatedAt time.Time    `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" bson:"updated_at"`
}

func (r Reminder) RecordID() string           { return r.ID }
func (r Reminder) RecordOwner() string        { return r.OwnerID }
func (r Reminder) RecordCreatedAt() time.Time { return r.CreatedAt }

func (r Reminder) WithIdentity(id, ownerID string, createdAt, updatedAt time.Time) Reminder {
	r.ID, r.OwnerID = id, ownerID
	r.CreatedAt, r.UpdatedAt = createdAt, updatedAt
	if r.Kind == "" {
		r.Kind = ReminderOther
	}
	return r
}

func (r Reminder) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return ErrMissingTitle
	}
	switch r.Kind {
	case ReminderWater, ReminderFertilize, ReminderHarvest, ReminderOther:
		return nil
	}
	return ErrInvalidKind
}

// Overdue reports whether an open reminder is past due at now.
func (r Reminder) Overdue(now time.Time) bool {
	return !r.Completed && !r.DueAt.IsZero() && r.DueAt.Before(now)
}

type AgendaKind string

const (
	AgendaMeeting AgendaKind = "meeting"
	AgendaTask    AgendaKind = "task"
	AgendaVisit   AgendaKind = "visit"
	AgendaOther   AgendaKind = "other"
)

type AgendaItem struct {
	ID          string     `json:"id" bson:"_id"`
	OwnerID     string     `json:"owner_id" bson:"owner_id"`
	Title       string     `json:"title" bson:"title"`
	Start       time.Time  `json:"start" bson:"start"`
	End         time.Time  `json:"end" bson:"end"`
	AllDay      bool       `json:"all_day" bson:"all_day"`
	Description string     `json:"description" bson:"description"`
	Kind        AgendaKind `json:"kind" bson:"kind"`
	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" bson:"updated_at"`
}

func (a AgendaItem) RecordID() string           { return a.ID }
func (a AgendaItem) RecordOwner() string        { return a.OwnerID }
func (a AgendaItem) RecordCreatedAt() time.Time { return a.CreatedAt }

func (a AgendaItem) WithIdentity(id, ownerID string, createdAt, updatedAt time.Time) AgendaItem {
	a.ID, a.OwnerID = id, ownerID
	a.CreatedAt, a.UpdatedAt = createdAt, updatedAt
	if a.Kind == "" {
		a.Kind = AgendaOther
	}
	if a.End.IsZero() {
		a.End = a.Start
	}
	return a
}

func (a AgendaItem) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return ErrMissingTitle
	}
	if a.End.Before(a.Start) {
		return ErrInvalidSchedule
	}
	switch a.Kind {
	case AgendaMeeting, AgendaTask, AgendaVisit, AgendaOther:
		return nil
	}
	return ErrInvalidKind
}
