// Package availability answers whether a date range is free for a new booking.
package availability

import (
	"context"

	"gastbokning/internal/apperror"
	"gastbokning/internal/daterange"
	"gastbokning/internal/models"
)

// BookingLister returns the bookings that still occupy the apartment.
type BookingLister interface {
	ListActiveBookings(ctx context.Context) ([]models.Booking, error)
}

// Result of an availability check.
type Result struct {
	Available bool             `json:"available"`
	Conflicts []models.Booking `json:"overlappingBookings"`
}

// Checker compares a requested range against stored bookings.
type Checker struct {
	store  BookingLister
	policy daterange.Policy
}

// NewChecker creates a checker using the given overlap policy.
func NewChecker(store BookingLister, policy daterange.Policy) *Checker {
	return &Checker{store: store, policy: policy}
}

// Policy returns the overlap policy in effect.
func (c *Checker) Policy() daterange.Policy {
	return c.policy
}

// Check lists active bookings overlapping r. excludeID skips one booking,
// used when re-checking an existing booking against the others; pass 0 for none.
// A store failure is returned as an error and never reported as available.
func (c *Checker) Check(ctx context.Context, r daterange.Range, excludeID int64) (Result, error) {
	bookings, err := c.store.ListActiveBookings(ctx)
	if err != nil {
		return Result{}, apperror.External("bookings", "list active", err)
	}
	conflicts := Conflicts(bookings, r, excludeID, c.policy)
	return Result{Available: len(conflicts) == 0, Conflicts: conflicts}, nil
}

// Conflicts filters bookings that overlap r under the policy. Cancelled
// bookings and the booking with excludeID are ignored.
func Conflicts(bookings []models.Booking, r daterange.Range, excludeID int64, p daterange.Policy) []models.Booking {
	out := make([]models.Booking, 0)
	for i := range bookings {
		b := &bookings[i]
		if !b.IsActive() || (excludeID != 0 && b.ID == excludeID) {
			continue
		}
		if daterange.Overlaps(r, b.Range(), p) {
			out = append(out, *b)
		}
	}
	return out
}
