// Package billing turns one month of bookings into priced line items.
package billing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gastbokning/internal/apperror"
	"gastbokning/internal/daterange"
	"gastbokning/internal/models"
	"gastbokning/internal/pricing"
	"gastbokning/internal/residents"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BookingSource returns non-cancelled bookings whose check-in day falls in [from, to).
type BookingSource interface {
	BookingsStartingIn(ctx context.Context, from, to time.Time) ([]models.Booking, error)
}

// DirectorySource returns the resident directory.
type DirectorySource interface {
	ListResidents(ctx context.Context) ([]models.Resident, error)
}

// Request selects the billing month.
type Request struct {
	Year     int
	Month    int
	Preparer string
}

// Validate checks the month and year bounds.
func (r Request) Validate() error {
	verr := &apperror.ValidationError{}
	if r.Month < 1 || r.Month > 12 {
		verr.Add("month", "must be between 1 and 12")
	}
	if r.Year < 2000 || r.Year > 2100 {
		verr.Add("year", "must be between 2000 and 2100")
	}
	if verr.Empty() {
		return nil
	}
	return verr
}

// Observer is told about skipped bookings and unresolved guests, typically to count them.
type Observer interface {
	BookingSkipped(reason string)
	ApartmentUnresolved()
}

type nopObserver struct{}

func (nopObserver) BookingSkipped(string) {}
func (nopObserver) ApartmentUnresolved()  {}

// Aggregator builds monthly billing reports.
type Aggregator struct {
	bookings     BookingSource
	directory    DirectorySource
	calc         *pricing.Calculator
	logger       *zerolog.Logger
	organization string
	observer     Observer
	now          func() time.Time
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the time source used for generatedAt.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithObserver registers an observer for skipped bookings and unresolved apartments.
func WithObserver(o Observer) Option {
	return func(a *Aggregator) {
		if o != nil {
			a.observer = o
		}
	}
}

// NewAggregator wires an aggregator.
func NewAggregator(bookings BookingSource, directory DirectorySource, calc *pricing.Calculator,
	organization string, logger *zerolog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		bookings:     bookings,
		directory:    directory,
		calc:         calc,
		logger:       logger,
		organization: organization,
		observer:     nopObserver{},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ReasonNoNights is recorded for bookings whose end is not after their start.
const ReasonNoNights = "stay has no billable nights"

// BuildReport prices every booking that starts in the requested month.
// A booking spanning two months is billed in full in the month it starts.
func (a *Aggregator) BuildReport(ctx context.Context, req Request) (*models.Report, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	period := daterange.Month(req.Year, time.Month(req.Month))

	bookings, err := a.bookings.BookingsStartingIn(ctx, period.Start, period.End)
	if err != nil {
		return nil, apperror.External("bookings", "list for month", err)
	}
	directory, err := a.directory.ListResidents(ctx)
	if err != nil {
		return nil, apperror.External("residents", "list", err)
	}

	active := models.ActiveResidents(directory)
	resolver := residents.NewResolver(active)
	SortBookings(bookings)

	report := &models.Report{
		Meta: models.ReportMeta{
			Organization: a.organization,
			PeriodLabel:  MonthLabel(req.Year, time.Month(req.Month)),
			Year:         req.Year,
			Month:        req.Month,
			Preparer:     req.Preparer,
			GeneratedAt:  a.now().UTC().Truncate(time.Second),
		},
		Items:     make([]models.LineItem, 0, len(bookings)),
		Directory: active,
		Skipped:   make([]models.SkippedBooking, 0),
	}

	for i := range bookings {
		b := &bookings[i]
		if !b.IsActive() || !period.ContainsStart(b.StartDate) {
			continue
		}
		nights := b.Nights()
		if nights <= 0 {
			a.logger.Warn().
				Int64("booking_id", b.ID).
				Str("start", daterange.Format(b.StartDate)).
				Str("end", daterange.Format(b.EndDate)).
				Msg("Skipping booking without billable nights")
			report.Skipped = append(report.Skipped, models.SkippedBooking{
				BookingID: b.ID, GuestName: b.GuestName, Reason: ReasonNoNights,
			})
			a.observer.BookingSkipped(ReasonNoNights)
			continue
		}

		res := resolver.Resolve(residents.GuestOf(b))
		if !res.Resolved() {
			a.logger.Warn().
				Int64("booking_id", b.ID).
				Str("guest", b.GuestName).
				Msg("Could not resolve apartment for guest")
			a.observer.ApartmentUnresolved()
		}

		report.Items = append(report.Items, a.lineItems(b, nights, res)...)
	}

	report.Total = models.SumItems(report.Items)

	a.logger.Info().
		Int("year", req.Year).
		Int("month", req.Month).
		Int("items", len(report.Items)).
		Int("skipped", len(report.Skipped)).
		Str("total", report.Total.StringFixed(2)).
		Msg("Billing report built")

	return report, nil
}

func (a *Aggregator) lineItems(b *models.Booking, nights int, res residents.Resolution) []models.LineItem {
	quote := a.calc.Quote(b.StartDate)
	qty := decimal.NewFromInt(int64(nights))
	base := models.LineItem{
		BookingID:       b.ID,
		ApartmentNumber: res.Apartment,
		ResidentName:    b.GuestName,
		Email:           b.GuestEmail,
		Phone:           b.GuestPhone,
		PeriodLabel:     PeriodLabel(b.StartDate, b.EndDate),
		Nights:          nights,
		MatchedBy:       string(res.Method),
	}

	rental := base
	rental.Description = models.ChargeRental
	rental.UnitPrice = quote.Nightly
	rental.TotalAmount = quote.Nightly.Mul(qty)
	rental.Tier = quote.Tier
	items := []models.LineItem{rental}

	if b.ParkingRequested {
		parking := base
		parking.Description = models.ChargeParking
		parking.UnitPrice = a.calc.ParkingRate()
		parking.TotalAmount = parking.UnitPrice.Mul(qty)
		items = append(items, parking)
	}
	return items
}

// SortBookings orders bookings by check-in day, then creation time, then id.
func SortBookings(bs []models.Booking) {
	sort.SliceStable(bs, func(i, j int) bool {
		a, b := bs[i], bs[j]
		if !a.StartDate.Equal(b.StartDate) {
			return a.StartDate.Before(b.StartDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// PeriodLabel renders a stay as "1-8 July" or "28 July-3 August".
func PeriodLabel(start, end time.Time) string {
	if start.Month() == end.Month() && start.Year() == end.Year() {
		return fmt.Sprintf("%d-%d %s", start.Day(), end.Day(), start.Month())
	}
	return fmt.Sprintf("%d %s-%d %s", start.Day(), start.Month(), end.Day(), end.Month())
}

// MonthLabel renders a billing month as "July 2023".
func MonthLabel(year int, month time.Month) string {
	return fmt.Sprintf("%s %d", month, year)
}
