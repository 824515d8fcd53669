package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"gastbokning/internal/apperror"
	"gastbokning/internal/daterange"
	"gastbokning/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	bookings []models.Booking
	err      error
}

func (f *fakeStore) ListActiveBookings(ctx context.Context) ([]models.Booking, error) {
	return f.bookings, f.err
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func booking(id int64, start, end time.Time, status string) models.Booking {
	return models.Booking{ID: id, GuestName: "Guest", StartDate: start, EndDate: end, Status: status}
}

func TestChecker_TouchingRangeBoundary(t *testing.T) {
	store := &fakeStore{bookings: []models.Booking{
		booking(1, day(2023, 7, 1), day(2023, 7, 5), models.StatusConfirmed),
	}}
	req := daterange.New(day(2023, 7, 5), day(2023, 7, 10))

	res, err := NewChecker(store, daterange.PolicyInclusive).Check(context.Background(), req, 0)
	require.NoError(t, err)
	assert.False(t, res.Available)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, int64(1), res.Conflicts[0].ID)

	res, err = NewChecker(store, daterange.PolicySameDayTurnover).Check(context.Background(), req, 0)
	require.NoError(t, err)
	assert.True(t, res.Available)
	assert.Empty(t, res.Conflicts)
}

func TestChecker_Check(t *testing.T) {
	store := &fakeStore{bookings: []models.Booking{
		booking(1, day(2023, 7, 1), day(2023, 7, 8), models.StatusConfirmed),
		booking(2, day(2023, 7, 10), day(2023, 7, 12), models.StatusCancelled),
		booking(3, day(2023, 7, 20), day(2023, 7, 25), models.StatusPending),
	}}
	checker := NewChecker(store, daterange.DefaultPolicy)

	tests := []struct {
		name      string
		r         daterange.Range
		excludeID int64
		want      []int64
	}{
		{name: "free gap", r: daterange.New(day(2023, 7, 13), day(2023, 7, 15)), want: []int64{}},
		{name: "cancelled booking ignored", r: daterange.New(day(2023, 7, 10), day(2023, 7, 12)), want: []int64{}},
		{name: "inside confirmed", r: daterange.New(day(2023, 7, 2), day(2023, 7, 3)), want: []int64{1}},
		{name: "pending counts", r: daterange.New(day(2023, 7, 24), day(2023, 7, 30)), want: []int64{3}},
		{name: "spans two bookings", r: daterange.New(day(2023, 7, 5), day(2023, 7, 21)), want: []int64{1, 3}},
		{name: "own booking excluded", r: daterange.New(day(2023, 7, 2), day(2023, 7, 6)), excludeID: 1, want: []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := checker.Check(context.Background(), tt.r, tt.excludeID)
			require.NoError(t, err)
			ids := make([]int64, 0, len(res.Conflicts))
			for _, b := range res.Conflicts {
				ids = append(ids, b.ID)
			}
			assert.Equal(t, tt.want, ids)
			assert.Equal(t, len(tt.want) == 0, res.Available)
		})
	}
}

func TestChecker_StoreFailureIsNeverAvailable(t *testing.T) {
	store := &fakeStore{err: errors.New("connection reset")}

	res, err := NewChecker(store, daterange.DefaultPolicy).Check(context.Background(),
		daterange.New(day(2023, 7, 1), day(2023, 7, 2)), 0)

	require.Error(t, err)
	assert.False(t, res.Available)
	assert.True(t, apperror.IsRetryable(err))
	var ext *apperror.ExternalServiceError
	assert.ErrorAs(t, err, &ext)
}
