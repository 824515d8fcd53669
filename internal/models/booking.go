package models

import (
	"strings"
	"time"

	"gastbokning/internal/daterange"
)

// Booking statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Booking represents a guest apartment booking.
type Booking struct {
	ID               int64     `json:"id"`
	GuestName        string    `json:"name"`
	GuestEmail       string    `json:"email"`
	GuestPhone       string    `json:"phone"`
	StartDate        time.Time `json:"startDate"` // check-in day, midnight UTC
	EndDate          time.Time `json:"endDate"`   // check-out day, midnight UTC
	Notes            string    `json:"notes,omitempty"`
	Status           string    `json:"status"`
	ParkingRequested bool      `json:"parking"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Range returns the booked period.
func (b *Booking) Range() daterange.Range {
	return daterange.New(b.StartDate, b.EndDate)
}

// Nights returns the number of billable nights.
func (b *Booking) Nights() int {
	return daterange.Nights(b.StartDate, b.EndDate)
}

// IsActive reports whether the booking still occupies the apartment.
func (b *Booking) IsActive() bool {
	return b.Status != StatusCancelled
}

// OverlapsWith checks whether two bookings claim a common day under the policy.
// Cancelled bookings never overlap anything.
func (b *Booking) OverlapsWith(other *Booking, p daterange.Policy) bool {
	if !b.IsActive() || !other.IsActive() {
		return false
	}
	return daterange.Overlaps(b.Range(), other.Range(), p)
}

// ValidStatus reports whether s is a known booking status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// NormalizeStatus maps legacy spellings onto the known statuses.
// Unknown values fall back to pending so they stay visible to availability checks.
func NormalizeStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "confirmed", "bekräftad":
		return StatusConfirmed
	case "cancelled", "canceled", "avbokad":
		return StatusCancelled
	default:
		return StatusPending
	}
}

// ParseLegacyBool reads the loosely typed flags found in legacy rows
// ("true", "1", "ja", "yes", "t").
func ParseLegacyBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "1", "yes", "y", "ja", "j":
		return true
	}
	return false
}
