package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChargeKind is the description of a billed line.
type ChargeKind string

const (
	ChargeRental  ChargeKind = "apartment rental"
	ChargeParking ChargeKind = "parking"
)

// LineItem is one billable charge attributable to one booking.
type LineItem struct {
	BookingID       int64           `json:"bookingId"`
	ApartmentNumber string          `json:"apartmentNumber"`
	ResidentName    string          `json:"residentName"`
	Email           string          `json:"email"`
	Phone           string          `json:"phone"`
	PeriodLabel     string          `json:"period"`
	Description     ChargeKind      `json:"description"`
	Nights          int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	Tier            string          `json:"tier,omitempty"`
	MatchedBy       string          `json:"matchedBy,omitempty"`
}

// SkippedBooking records a booking that was excluded from billing and why.
type SkippedBooking struct {
	BookingID int64  `json:"bookingId"`
	GuestName string `json:"name"`
	Reason    string `json:"reason"`
}

// ReportMeta is the header block of a report.
type ReportMeta struct {
	Organization string    `json:"organization"`
	PeriodLabel  string    `json:"period"`
	Year         int       `json:"year"`
	Month        int       `json:"month"`
	Preparer     string    `json:"preparer"`
	GeneratedAt  time.Time `json:"generatedAt"`
}

// Report is the billing statement for one month.
type Report struct {
	Meta      ReportMeta       `json:"meta"`
	Items     []LineItem       `json:"lineItems"`
	Total     decimal.Decimal  `json:"totalAmount"`
	Directory []Resident       `json:"residentDirectory"`
	Skipped   []SkippedBooking `json:"skipped"`
}

// SumItems returns the sum of all line totals.
func SumItems(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.TotalAmount)
	}
	return total
}
