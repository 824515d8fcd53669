package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"gastbokning/internal/apperror"
	"gastbokning/internal/daterange"
	"gastbokning/internal/events"
	"gastbokning/internal/lock"
	"gastbokning/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) ListActiveBookings(ctx context.Context) ([]models.Booking, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *mockRepo) InsertIfAvailable(ctx context.Context, b *models.Booking) (*models.Booking, error) {
	args := m.Called(ctx, b)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockRepo) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockRepo) UpdateStatus(ctx context.Context, id int64, status string) (*models.Booking, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }

type mockLocker struct {
	mock.Mock
	released int
}

func (m *mockLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	args := m.Called(ctx, key)
	if err := args.Error(0); err != nil {
		return nil, err
	}
	return func(context.Context) error {
		m.released++
		return nil
	}, nil
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func newService(repo *mockRepo, bus *mockEventBus, locker lock.Locker) *BookingService {
	logger := zerolog.New(io.Discard)
	svc := NewBookingService(repo, daterange.PolicyInclusive, locker, bus, nil, &logger)
	svc.now = func() time.Time { return time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("2023-07-01", "2023-07-08T00:00:00")
	require.NoError(t, err)
	assert.Equal(t, 7, r.Nights())

	_, err = ParseRange("", "2023-07-08")
	var verr *apperror.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "startDate")

	_, err = ParseRange("2023-07-08", "2023-07-08")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "must be after startDate", verr.Fields["endDate"])

	_, err = ParseRange("07/01/2023", "bad")
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)
}

func TestBookingService_CheckAvailability(t *testing.T) {
	repo := new(mockRepo)
	svc := newService(repo, new(mockEventBus), nil)
	ctx := context.Background()

	repo.On("ListActiveBookings", ctx).Return([]models.Booking{
		{ID: 1, StartDate: day(2023, 7, 1), EndDate: day(2023, 7, 5), Status: models.StatusConfirmed},
	}, nil).Once()

	res, err := svc.CheckAvailability(ctx, daterange.New(day(2023, 7, 5), day(2023, 7, 10)))
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Len(t, res.Conflicts, 1)

	repo.On("ListActiveBookings", ctx).Return(nil, errors.New("db down")).Once()
	_, err = svc.CheckAvailability(ctx, daterange.New(day(2023, 7, 20), day(2023, 7, 22)))
	assert.True(t, apperror.IsRetryable(err))

	_, err = svc.CheckAvailability(ctx, daterange.New(day(2023, 7, 22), day(2023, 7, 20)))
	var verr *apperror.ValidationError
	assert.ErrorAs(t, err, &verr)

	repo.AssertExpectations(t)
}

func TestBookingService_Create(t *testing.T) {
	ctx := context.Background()
	in := NewBooking{
		Name:    " Kristina Utas ",
		Email:   "tina@example.se",
		Range:   daterange.New(day(2023, 7, 1), day(2023, 7, 8)),
		Parking: true,
	}

	t.Run("stores and publishes", func(t *testing.T) {
		repo := new(mockRepo)
		bus := new(mockEventBus)
		locker := new(mockLocker)
		svc := newService(repo, bus, locker)

		locker.On("Acquire", ctx, bookingLockKey).Return(nil)
		repo.On("InsertIfAvailable", ctx, mock.MatchedBy(func(b *models.Booking) bool {
			return b.GuestName == "Kristina Utas" && b.Status == models.StatusPending &&
				b.ParkingRequested && b.CreatedAt.Equal(time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC))
		})).Return(&models.Booking{ID: 11, GuestName: "Kristina Utas", Status: models.StatusPending}, nil)
		bus.On("PublishJSON", events.TypeBookingCreated, mock.Anything).Return(nil)

		created, err := svc.Create(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, int64(11), created.ID)
		assert.Equal(t, 1, locker.released)
		repo.AssertExpectations(t)
		bus.AssertExpectations(t)
	})

	t.Run("conflict passes through", func(t *testing.T) {
		repo := new(mockRepo)
		bus := new(mockEventBus)
		svc := newService(repo, bus, nil)

		conflict := &apperror.ConflictError{Conflicts: []models.Booking{{ID: 3}}}
		repo.On("InsertIfAvailable", ctx, mock.Anything).Return(nil, conflict)

		_, err := svc.Create(ctx, in)
		assert.Same(t, conflict, err)
		bus.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
	})

	t.Run("store failure is external", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newService(repo, new(mockEventBus), nil)
		repo.On("InsertIfAvailable", ctx, mock.Anything).Return(nil, errors.New("disk full"))

		_, err := svc.Create(ctx, in)
		var ext *apperror.ExternalServiceError
		require.ErrorAs(t, err, &ext)
		assert.Equal(t, "bookings", ext.Service)
	})

	t.Run("lock not acquired", func(t *testing.T) {
		repo := new(mockRepo)
		locker := new(mockLocker)
		svc := newService(repo, new(mockEventBus), locker)
		locker.On("Acquire", ctx, bookingLockKey).Return(lock.ErrNotAcquired)

		_, err := svc.Create(ctx, in)
		assert.ErrorIs(t, err, lock.ErrNotAcquired)
		assert.True(t, apperror.IsRetryable(err))
		repo.AssertNotCalled(t, "InsertIfAvailable", mock.Anything, mock.Anything)
	})

	t.Run("validation", func(t *testing.T) {
		svc := newService(new(mockRepo), new(mockEventBus), nil)
		var verr *apperror.ValidationError

		_, err := svc.Create(ctx, NewBooking{Range: in.Range})
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "name")

		_, err = svc.Create(ctx, NewBooking{Name: "A", Range: daterange.New(day(2023, 7, 8), day(2023, 7, 8))})
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "endDate")

		_, err = svc.Create(ctx, NewBooking{Name: "A", Range: in.Range, Status: models.StatusCancelled})
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "status")
	})
}

func TestBookingService_GetAndUpdate(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	bus := new(mockEventBus)
	svc := newService(repo, bus, lock.Noop{})

	repo.On("GetBooking", ctx, int64(5)).Return(&models.Booking{ID: 5}, nil)
	repo.On("GetBooking", ctx, int64(6)).Return(nil, ErrBookingNotFound)

	b, err := svc.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), b.ID)

	_, err = svc.Get(ctx, 6)
	var nf *apperror.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "6", nf.ID)

	repo.On("UpdateStatus", ctx, int64(5), models.StatusCancelled).Return(&models.Booking{ID: 5, Status: models.StatusCancelled}, nil)
	bus.On("PublishJSON", events.TypeBookingStatusChanged, mock.Anything).Return(errors.New("subscriber failed"))

	updated, err := svc.UpdateStatus(ctx, 5, " Cancelled ")
	require.NoError(t, err, "event handler failures do not fail the update")
	assert.Equal(t, models.StatusCancelled, updated.Status)

	repo.On("UpdateStatus", ctx, int64(5), models.StatusConfirmed).Return(nil, &apperror.ConflictError{})
	_, err = svc.UpdateStatus(ctx, 5, models.StatusConfirmed)
	var conflict *apperror.ConflictError
	assert.ErrorAs(t, err, &conflict)

	repo.On("UpdateStatus", ctx, int64(6), models.StatusConfirmed).Return(nil, ErrBookingNotFound)
	_, err = svc.UpdateStatus(ctx, 6, models.StatusConfirmed)
	assert.ErrorAs(t, err, &nf)

	_, err = svc.UpdateStatus(ctx, 5, "archived")
	var verr *apperror.ValidationError
	assert.ErrorAs(t, err, &verr)
}
