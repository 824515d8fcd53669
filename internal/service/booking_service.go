package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"gastbokning/internal/apperror"
	"gastbokning/internal/availability"
	"gastbokning/internal/daterange"
	"gastbokning/internal/events"
	"gastbokning/internal/lock"
	"gastbokning/internal/metrics"
	"gastbokning/internal/models"

	"github.com/rs/zerolog"
)

// BookingRepository is the storage used by BookingService. InsertIfAvailable
// and UpdateStatus must check for overlaps atomically with the write.
type BookingRepository interface {
	ListActiveBookings(ctx context.Context) ([]models.Booking, error)
	InsertIfAvailable(ctx context.Context, b *models.Booking) (*models.Booking, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	UpdateStatus(ctx context.Context, id int64, status string) (*models.Booking, error)
}

// EventPublisher publishes domain events.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// ErrBookingNotFound is returned by the repository for unknown ids.
var ErrBookingNotFound = errors.New("booking not found")

const bookingLockKey = "bookings"

// BookingService checks availability and creates or updates bookings.
type BookingService struct {
	repo    BookingRepository
	checker *availability.Checker
	locker  lock.Locker
	events  EventPublisher
	logger  *zerolog.Logger
	now     func() time.Time

	// isNotFound recognizes the repository's not-found error.
	isNotFound func(error) bool
}

// NewBookingService wires the booking service. A nil locker disables the advisory lock.
func NewBookingService(repo BookingRepository, policy daterange.Policy, locker lock.Locker,
	bus EventPublisher, isNotFound func(error) bool, logger *zerolog.Logger) *BookingService {
	if locker == nil {
		locker = lock.Noop{}
	}
	if isNotFound == nil {
		isNotFound = func(err error) bool { return errors.Is(err, ErrBookingNotFound) }
	}
	return &BookingService{
		repo:       repo,
		checker:    availability.NewChecker(repo, policy),
		locker:     locker,
		events:     bus,
		logger:     logger,
		now:        time.Now,
		isNotFound: isNotFound,
	}
}

// Policy returns the overlap policy in effect.
func (s *BookingService) Policy() daterange.Policy {
	return s.checker.Policy()
}

// ParseRange validates a pair of date strings into a bookable range.
func ParseRange(start, end string) (daterange.Range, error) {
	verr := &apperror.ValidationError{}
	startDate, err := daterange.ParseDate(start)
	if err != nil {
		verr.Add("startDate", err.Error())
	}
	endDate, err := daterange.ParseDate(end)
	if err != nil {
		verr.Add("endDate", err.Error())
	}
	if !verr.Empty() {
		return daterange.Range{}, verr
	}
	r := daterange.New(startDate, endDate)
	if err := r.Valid(); err != nil {
		return daterange.Range{}, apperror.NewValidation("endDate", "must be after startDate")
	}
	return r, nil
}

// CheckAvailability reports whether r is free.
func (s *BookingService) CheckAvailability(ctx context.Context, r daterange.Range) (availability.Result, error) {
	if err := r.Valid(); err != nil {
		return availability.Result{}, apperror.NewValidation("endDate", "must be after startDate")
	}
	res, err := s.checker.Check(ctx, r, 0)
	if err != nil {
		s.logger.Error().Err(err).Str("range", r.String()).Msg("Availability check failed")
		return availability.Result{}, err
	}
	metrics.IncAvailability(res.Available)
	return res, nil
}

// NewBooking is the input for Create.
type NewBooking struct {
	Name    string
	Email   string
	Phone   string
	Range   daterange.Range
	Notes   string
	Parking bool
	Status  string
}

// Create stores a booking if its dates are free. Overlaps yield
// *apperror.ConflictError; store failures a retryable ExternalServiceError.
func (s *BookingService) Create(ctx context.Context, in NewBooking) (*models.Booking, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, apperror.NewValidation("name", "is required")
	}
	if err := in.Range.Valid(); err != nil {
		return nil, apperror.NewValidation("endDate", "must be after startDate")
	}
	status := in.Status
	if status == "" {
		status = models.StatusPending
	}
	if !models.ValidStatus(status) || status == models.StatusCancelled {
		return nil, apperror.NewValidation("status", "must be pending or confirmed")
	}

	release, err := s.locker.Acquire(ctx, bookingLockKey)
	if err != nil {
		return nil, apperror.External("lock", "acquire", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to release booking lock")
		}
	}()

	created, err := s.repo.InsertIfAvailable(ctx, &models.Booking{
		GuestName:        strings.TrimSpace(in.Name),
		GuestEmail:       strings.TrimSpace(in.Email),
		GuestPhone:       strings.TrimSpace(in.Phone),
		StartDate:        in.Range.Start,
		EndDate:          in.Range.End,
		Notes:            in.Notes,
		Status:           status,
		ParkingRequested: in.Parking,
		CreatedAt:        s.now().UTC(),
	})
	if err != nil {
		var conflict *apperror.ConflictError
		if errors.As(err, &conflict) {
			s.logger.Info().Str("range", in.Range.String()).Int("conflicts", len(conflict.Conflicts)).Msg("Booking rejected, dates taken")
			return nil, err
		}
		s.logger.Error().Err(err).Str("range", in.Range.String()).Msg("Failed to store booking")
		return nil, apperror.External("bookings", "insert", err)
	}

	metrics.IncBookingCreated(created.Status)
	s.publish(events.TypeBookingCreated, created)
	s.logger.Info().Int64("booking_id", created.ID).Str("range", in.Range.String()).Msg("Booking created")
	return created, nil
}

// Get loads a booking.
func (s *BookingService) Get(ctx context.Context, id int64) (*models.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, s.mapRepoErr(err, id, "get")
	}
	return b, nil
}

// UpdateStatus changes a booking's status. Cancelling is a soft delete;
// re-activating a cancelled booking is re-checked against the others.
func (s *BookingService) UpdateStatus(ctx context.Context, id int64, status string) (*models.Booking, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !models.ValidStatus(status) {
		return nil, apperror.NewValidation("status", "must be one of pending, confirmed, cancelled")
	}

	release, err := s.locker.Acquire(ctx, bookingLockKey)
	if err != nil {
		return nil, apperror.External("lock", "acquire", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to release booking lock")
		}
	}()

	b, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		var conflict *apperror.ConflictError
		if errors.As(err, &conflict) {
			return nil, err
		}
		return nil, s.mapRepoErr(err, id, "update status")
	}

	metrics.IncStatusChanged(status)
	s.publish(events.TypeBookingStatusChanged, b)
	s.logger.Info().Int64("booking_id", id).Str("status", status).Msg("Booking status changed")
	return b, nil
}

func (s *BookingService) mapRepoErr(err error, id int64, op string) error {
	if s.isNotFound(err) {
		return &apperror.NotFoundError{Resource: "booking", ID: strconv.FormatInt(id, 10)}
	}
	s.logger.Error().Err(err).Int64("booking_id", id).Str("op", op).Msg("Booking store failed")
	return apperror.External("bookings", op, err)
}

func (s *BookingService) publish(eventType string, b *models.Booking) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishJSON(eventType, b); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Int64("booking_id", b.ID).Msg("Event handler failed")
	}
}
