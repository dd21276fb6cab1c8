package item

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/foundly/foundly/internal/normalize"
)

// Type distinguishes lost reports from found reports.
type Type string

const (
	TypeLost  Type = "lost"
	TypeFound Type = "found"
)

// Opposite returns the pool an item of this type is matched against.
func (t Type) Opposite() Type {
	if t == TypeLost {
		return TypeFound
	}
	return TypeLost
}

// Status is the item lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusMatched  Status = "matched"
	StatusClaimed  Status = "claimed"
	StatusResolved Status = "resolved"
)

var statusRank = map[Status]int{
	StatusPending:  0,
	StatusMatched:  1,
	StatusClaimed:  2,
	StatusResolved: 3,
}

// CanAdvanceTo reports whether moving to the target status is allowed.
// The lifecycle only moves forward, with one exception: a matched item
// returns to pending when its match is rejected. Setting the same
// status again is allowed (no-op).
func (s Status) CanAdvanceTo(target Status) bool {
	if s == StatusMatched && target == StatusPending {
		return true
	}
	from, okFrom := statusRank[s]
	to, okTo := statusRank[target]
	return okFrom && okTo && to >= from
}

// Item is a lost or found report. Type is immutable after creation.
type Item struct {
	ID           string     `json:"id"`
	Type         Type       `json:"type"`
	Status       Status     `json:"status"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	Tags         []string   `json:"tags"`
	Color        string     `json:"color"`
	Category     string     `json:"category"`
	Lat          *float64   `json:"lat,omitempty"`
	Lng          *float64   `json:"lng,omitempty"`
	LocationText string     `json:"locationText"`
	OccurredAt   *time.Time `json:"occurredAt,omitempty"`
	ImageRefs    []string   `json:"imageRefs,omitempty"`
	ReportedBy   string     `json:"reportedBy"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// HasCoordinates reports whether both coordinates are present.
func (i *Item) HasCoordinates() bool {
	return i.Lat != nil && i.Lng != nil
}

// Normalize canonicalizes loosely-typed inbound fields in place. Applied
// at every boundary rather than trusting upstream collectors.
func (i *Item) Normalize() {
	i.Name = strings.TrimSpace(i.Name)
	i.Description = strings.TrimSpace(i.Description)
	i.Tags = normalize.Tags(i.Tags)
	i.Color = normalize.Color(i.Color)
	i.Category = strings.ToLower(strings.TrimSpace(i.Category))
	i.LocationText = strings.TrimSpace(i.LocationText)
}

// Report is the inbound payload for creating an item.
type Report struct {
	Type         string     `json:"type" validate:"required,oneof=lost found"`
	Name         string     `json:"name" validate:"required,max=200"`
	Description  string     `json:"description" validate:"max=4000"`
	Tags         []string   `json:"tags" validate:"max=30,dive,max=60"`
	Color        string     `json:"color" validate:"max=60"`
	Category     string     `json:"category" validate:"max=100"`
	Lat          *float64   `json:"lat" validate:"omitempty,latitude"`
	Lng          *float64   `json:"lng" validate:"omitempty,longitude"`
	LocationText string     `json:"locationText" validate:"max=500"`
	OccurredAt   *time.Time `json:"occurredAt"`
	ImageRefs    []string   `json:"imageRefs" validate:"max=10"`
	ReportedBy   string     `json:"reportedBy" validate:"required,max=120"`
}

var validate = validator.New()

// Validate checks the inbound report. Coordinates must come in pairs.
func (r *Report) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	if (r.Lat == nil) != (r.Lng == nil) {
		return fmt.Errorf("lat and lng must be provided together")
	}
	return nil
}

// ToItem converts a validated report into a normalized Item. The caller
// assigns ID and CreatedAt.
func (r *Report) ToItem() Item {
	it := Item{
		Type:         Type(r.Type),
		Status:       StatusPending,
		Name:         r.Name,
		Description:  r.Description,
		Tags:         r.Tags,
		Color:        r.Color,
		Category:     r.Category,
		Lat:          r.Lat,
		Lng:          r.Lng,
		LocationText: r.LocationText,
		OccurredAt:   r.OccurredAt,
		ImageRefs:    r.ImageRefs,
		ReportedBy:   r.ReportedBy,
	}
	it.Normalize()
	return it
}
