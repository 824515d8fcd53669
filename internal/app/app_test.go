package app

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"gastbokning/internal/apperror"
	"gastbokning/internal/billing"
	"gastbokning/internal/config"
	"gastbokning/internal/daterange"
	"gastbokning/internal/directory"
	"gastbokning/internal/models"
	"gastbokning/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "app.db")
	cfg, err := config.Parse([]byte("database:\n  path: " + dbPath + "\nreport:\n  organization: Test Cooperative\n" + extra))
	require.NoError(t, err)
	return cfg
}

func TestNew_EndToEnd(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.New(io.Discard)
	a, err := New(ctx, testConfig(t, ""), &logger)
	require.NoError(t, err)
	defer a.Close()

	requireReady(t, a)
	assert.False(t, a.Dispatcher.Enabled())

	require.NoError(t, a.Store.ReplaceResidents(ctx, []models.Resident{
		{ApartmentNumber: "4", ResidentNames: "Kristina Utas", PrimaryEmail: "tina@example.se", IsActive: true},
	}))

	rng, err := service.ParseRange("2023-07-01", "2023-07-08")
	require.NoError(t, err)
	_, err = a.Bookings.Create(ctx, service.NewBooking{Name: "Kristina Utas", Email: "tina@example.se", Range: rng, Parking: true})
	require.NoError(t, err)

	_, err = a.Bookings.Create(ctx, service.NewBooking{Name: "Someone", Range: daterange.New(rng.End, rng.End.AddDate(0, 0, 2))})
	var conflict *apperror.ConflictError
	require.ErrorAs(t, err, &conflict, "the default policy treats a shared turnover day as an overlap")

	doc, err := a.Reports.Generate(ctx, billing.Request{Year: 2023, Month: 7, Preparer: "Anna"}, "csv")
	require.NoError(t, err)
	assert.Equal(t, "billing-report-2023-07.csv", doc.Filename)
	assert.True(t, bytes.Contains(doc.Data, []byte("4,Kristina Utas,1-8 July,apartment rental,7,600.00,4200.00")))
	assert.True(t, bytes.Contains(doc.Data, []byte("4,Kristina Utas,1-8 July,parking,7,75.00,525.00")))
	assert.Equal(t, "4725.00", doc.Report.Total.StringFixed(2))

	err = a.Reports.Deliver(ctx, doc)
	assert.True(t, apperror.IsRetryable(err))
}

func TestNew_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	logger := zerolog.New(io.Discard)

	cfg := testConfig(t, "redis:\n  address: "+mr.Addr()+"\nlock:\n  enabled: true\ndirectory:\n  cache_ttl_seconds: 60\nbooking:\n  allow_same_day_turnover: true\n")
	a, err := New(ctx, cfg, &logger)
	require.NoError(t, err)
	defer a.Close()

	requireReady(t, a)
	_, cached := a.Directory.(*directory.CachedSource)
	assert.True(t, cached)

	first, err := service.ParseRange("2023-07-01", "2023-07-08")
	require.NoError(t, err)
	second, err := service.ParseRange("2023-07-08", "2023-07-10")
	require.NoError(t, err)

	_, err = a.Bookings.Create(ctx, service.NewBooking{Name: "A", Range: first})
	require.NoError(t, err)
	_, err = a.Bookings.Create(ctx, service.NewBooking{Name: "B", Range: second})
	require.NoError(t, err, "same-day turnover is allowed when configured")

	_, err = a.Reports.Preview(ctx, billing.Request{Year: 2023, Month: 7})
	require.NoError(t, err)
	assert.True(t, mr.Exists("gastbokning:residents"))

	mr.SetError("LOADING dataset")
	checks := a.ReadinessChecks()
	require.Contains(t, checks, "redis")
	assert.Error(t, checks["redis"](ctx))
	assert.NoError(t, checks["database"](ctx))
}

func requireReady(t *testing.T, a *App) {
	t.Helper()
	for name, check := range a.ReadinessChecks() {
		require.NoError(t, check(context.Background()), name)
	}
}
