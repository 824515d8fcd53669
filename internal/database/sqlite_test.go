package database

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gastbokning/internal/apperror"
	"gastbokning/internal/daterange"
	"gastbokning/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func newTestStore(t *testing.T, policy daterange.Policy) *Store {
	t.Helper()
	logger := zerolog.New(io.Discard)
	store, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "bookings.db"), policy, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newBooking(name string, start, end time.Time) *models.Booking {
	return &models.Booking{
		GuestName:  name,
		GuestEmail: name + "@example.se",
		StartDate:  start,
		EndDate:    end,
		Status:     models.StatusPending,
		CreatedAt:  time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSQLite_InsertAndGet(t *testing.T) {
	store := newTestStore(t, daterange.PolicyInclusive)
	ctx := context.Background()

	b := newBooking("anna", day(2023, 7, 1), day(2023, 7, 8))
	b.ParkingRequested = true
	b.Notes = "lgh 12"

	created, err := store.InsertIfAvailable(ctx, b)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	got, err := store.GetBooking(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "anna", got.GuestName)
	assert.Equal(t, day(2023, 7, 1), got.StartDate)
	assert.Equal(t, day(2023, 7, 8), got.EndDate)
	assert.True(t, got.ParkingRequested)
	assert.Equal(t, "lgh 12", got.Notes)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, b.CreatedAt, got.CreatedAt)

	_, err = store.GetBooking(ctx, 999)
	assert.True(t, IsNotFound(err))
}

func TestSQLite_InsertConflicts(t *testing.T) {
	ctx := context.Background()

	inclusive := newTestStore(t, daterange.PolicyInclusive)
	_, err := inclusive.InsertIfAvailable(ctx, newBooking("first", day(2023, 7, 1), day(2023, 7, 5)))
	require.NoError(t, err)

	_, err = inclusive.InsertIfAvailable(ctx, newBooking("second", day(2023, 7, 5), day(2023, 7, 10)))
	var conflict *apperror.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Len(t, conflict.Conflicts, 1)
	assert.Equal(t, "first", conflict.Conflicts[0].GuestName)

	turnover := newTestStore(t, daterange.PolicySameDayTurnover)
	_, err = turnover.InsertIfAvailable(ctx, newBooking("first", day(2023, 7, 1), day(2023, 7, 5)))
	require.NoError(t, err)
	_, err = turnover.InsertIfAvailable(ctx, newBooking("second", day(2023, 7, 5), day(2023, 7, 10)))
	require.NoError(t, err)
}

func TestSQLite_ConcurrentInsertsOnlyOneWins(t *testing.T) {
	store := newTestStore(t, daterange.PolicyInclusive)
	ctx := context.Background()

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.InsertIfAvailable(ctx, newBooking("racer", day(2023, 9, 1), day(2023, 9, 3)))
			mu.Lock()
			defer mu.Unlock()
			var conflict *apperror.ConflictError
			switch {
			case err == nil:
				created++
			case assert.ErrorAs(t, err, &conflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, conflicts)

	active, err := store.ListActiveBookings(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestSQLite_UpdateStatus(t *testing.T) {
	store := newTestStore(t, daterange.PolicyInclusive)
	ctx := context.Background()

	first, err := store.InsertIfAvailable(ctx, newBooking("first", day(2023, 7, 1), day(2023, 7, 5)))
	require.NoError(t, err)

	cancelled, err := store.UpdateStatus(ctx, first.ID, models.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	// The freed dates can be booked again.
	second, err := store.InsertIfAvailable(ctx, newBooking("second", day(2023, 7, 2), day(2023, 7, 4)))
	require.NoError(t, err)

	// Re-activating the cancelled booking now conflicts.
	_, err = store.UpdateStatus(ctx, first.ID, models.StatusConfirmed)
	var conflict *apperror.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Len(t, conflict.Conflicts, 1)
	assert.Equal(t, second.ID, conflict.Conflicts[0].ID)

	// Confirming an active booking does not conflict with itself.
	confirmed, err := store.UpdateStatus(ctx, second.ID, models.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, confirmed.Status)

	_, err = store.UpdateStatus(ctx, 999, models.StatusCancelled)
	assert.True(t, IsNotFound(err))
}

func TestSQLite_BookingsStartingIn(t *testing.T) {
	store := newTestStore(t, daterange.PolicyInclusive)
	ctx := context.Background()

	for _, b := range []*models.Booking{
		newBooking("june", day(2023, 6, 28), day(2023, 7, 2)),
		newBooking("july", day(2023, 7, 10), day(2023, 7, 12)),
		newBooking("spans", day(2023, 7, 29), day(2023, 8, 5)),
		newBooking("august", day(2023, 8, 10), day(2023, 8, 12)),
	} {
		_, err := store.InsertIfAvailable(ctx, b)
		require.NoError(t, err)
	}
	cancelled, err := store.InsertIfAvailable(ctx, newBooking("cancelled", day(2023, 7, 20), day(2023, 7, 22)))
	require.NoError(t, err)
	_, err = store.UpdateStatus(ctx, cancelled.ID, models.StatusCancelled)
	require.NoError(t, err)

	month := daterange.Month(2023, time.July)
	got, err := store.BookingsStartingIn(ctx, month.Start, month.End)
	require.NoError(t, err)

	names := []string{}
	for _, b := range got {
		names = append(names, b.GuestName)
	}
	assert.Equal(t, []string{"july", "spans"}, names)
}

func TestSQLite_LegacyRows(t *testing.T) {
	store := newTestStore(t, daterange.PolicyInclusive)
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx, `INSERT INTO bookings (name, email, startdate, enddate, status, parkering, createdat)
		VALUES ('Legacy Guest', ' OLD@example.se ', '2023-07-01T00:00:00', '2023-07-08 00:00:00+00', 'Confirmed', 'true', '2023-06-01 10:00:00')`)
	require.NoError(t, err)
	_, err = store.db.ExecContext(ctx, `INSERT INTO bookings (name, startdate, enddate, status, createdat)
		VALUES ('Old Cancel', '2023-07-10', '2023-07-12', 'avbokad', '2023-06-02 10:00:00')`)
	require.NoError(t, err)

	active, err := store.ListActiveBookings(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	b := active[0]
	assert.Equal(t, "OLD@example.se", b.GuestEmail)
	assert.Equal(t, day(2023, 7, 1), b.StartDate)
	assert.Equal(t, day(2023, 7, 8), b.EndDate)
	assert.Equal(t, models.StatusConfirmed, b.Status)
	assert.True(t, b.ParkingRequested)
	assert.Equal(t, time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC), b.CreatedAt)
	assert.Equal(t, 7, b.Nights())
}

func TestSQLite_InsertConflictsWithTimestampRows(t *testing.T) {
	store := newTestStore(t, daterange.PolicyInclusive)
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx, `INSERT INTO bookings (name, startdate, enddate, status, createdat)
		VALUES ('legacy', '2023-07-08T00:00:00', '2023-07-12T00:00:00', 'confirmed', '2023-06-01 10:00:00')`)
	require.NoError(t, err)

	_, err = store.InsertIfAvailable(ctx, newBooking("anna", day(2023, 7, 1), day(2023, 7, 8)))
	var conflict *apperror.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Len(t, conflict.Conflicts, 1)
	assert.Equal(t, "legacy", conflict.Conflicts[0].GuestName)

	_, err = store.InsertIfAvailable(ctx, newBooking("erik", day(2023, 7, 12), day(2023, 7, 14)))
	require.ErrorAs(t, err, &conflict)

	starting, err := store.BookingsStartingIn(ctx, day(2023, 7, 8), day(2023, 7, 9))
	require.NoError(t, err)
	require.Len(t, starting, 1)
	assert.Equal(t, "legacy", starting[0].GuestName)
}

func TestSQLite_Residents(t *testing.T) {
	store := newTestStore(t, daterange.PolicyInclusive)
	ctx := context.Background()

	empty, err := store.ListResidents(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, store.ReplaceResidents(ctx, []models.Resident{
		{ApartmentNumber: "4", ApartmentCode: "80 A", ResidentNames: "Kristina Utas", PrimaryEmail: "tina@example.se", ParkingSpace: "P1", IsActive: true},
		{ApartmentNumber: "9", ResidentNames: "Former Owner", IsActive: false},
	}))
	require.NoError(t, store.ReplaceResidents(ctx, []models.Resident{
		{ApartmentNumber: "4", ApartmentCode: "80 A", ResidentNames: "Kristina Utas", PrimaryEmail: "tina@example.se", ParkingSpace: "P1", IsActive: true},
		{ApartmentNumber: "12", ResidentNames: "Jacob Adaktusson", IsActive: true},
	}))

	got, err := store.ListResidents(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "80 A", got[0].ApartmentCode)
	assert.Equal(t, "P1", got[0].ParkingSpace)
	assert.True(t, got[1].IsActive)
	assert.Equal(t, "", got[1].PrimaryEmail)

	assert.NoError(t, store.Ping(ctx))
	assert.Equal(t, DriverSQLite, store.Driver())
}
