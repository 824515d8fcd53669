package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gastbokning/internal/apperror"
	"gastbokning/internal/availability"
	"gastbokning/internal/daterange"
	"gastbokning/internal/models"

	"github.com/jmoiron/sqlx"
)

type bookingRow struct {
	ID        int64          `db:"id"`
	Name      string         `db:"name"`
	Email     sql.NullString `db:"email"`
	Phone     sql.NullString `db:"phone"`
	StartDate string         `db:"startdate"`
	EndDate   string         `db:"enddate"`
	Notes     sql.NullString `db:"notes"`
	Status    sql.NullString `db:"status"`
	Parking   sql.NullString `db:"parkering"`
	CreatedAt sql.NullString `db:"createdat"`
}

func (r bookingRow) toModel() (models.Booking, error) {
	start, err := daterange.ParseDate(r.StartDate)
	if err != nil {
		return models.Booking{}, fmt.Errorf("booking %d: startdate: %w", r.ID, err)
	}
	end, err := daterange.ParseDate(r.EndDate)
	if err != nil {
		return models.Booking{}, fmt.Errorf("booking %d: enddate: %w", r.ID, err)
	}
	return models.Booking{
		ID:               r.ID,
		GuestName:        strings.TrimSpace(r.Name),
		GuestEmail:       strings.TrimSpace(r.Email.String),
		GuestPhone:       strings.TrimSpace(r.Phone.String),
		StartDate:        start,
		EndDate:          end,
		Notes:            r.Notes.String,
		Status:           models.NormalizeStatus(r.Status.String),
		ParkingRequested: models.ParseLegacyBool(r.Parking.String),
		CreatedAt:        parseTimestamp(r.CreatedAt.String),
	}, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	daterange.DateLayout,
}

// parseTimestamp accepts the timestamp spellings found in legacy rows.
// Unparseable values yield the zero time, which sorts first.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// activeFilter excludes every cancelled spelling found in stored rows.
const activeFilter = `LOWER(COALESCE(status, '')) NOT IN ('cancelled', 'canceled', 'avbokad')`

func (s *Store) queryBookings(ctx context.Context, q sqlx.QueryerContext, where string, lock bool, args ...interface{}) ([]models.Booking, error) {
	query := s.dialect.bookingSelect
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY startdate, id"
	if lock {
		query += s.dialect.forUpdate
	}

	var rows []bookingRow
	if err := sqlx.SelectContext(ctx, q, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	out := make([]models.Booking, 0, len(rows))
	for _, r := range rows {
		b, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// ListActiveBookings returns every booking that is not cancelled.
func (s *Store) ListActiveBookings(ctx context.Context) ([]models.Booking, error) {
	return s.queryBookings(ctx, s.db, activeFilter, false)
}

// BookingsStartingIn returns active bookings whose check-in day is in [from, to).
func (s *Store) BookingsStartingIn(ctx context.Context, from, to time.Time) ([]models.Booking, error) {
	bookings, err := s.queryBookings(ctx, s.db,
		fmt.Sprintf("%s AND %s >= ? AND %s < ?", activeFilter, s.dialect.startDay, s.dialect.startDay), false,
		daterange.Format(from), daterange.Format(to))
	if err != nil {
		return nil, err
	}
	period := daterange.Range{Start: from, End: to}
	out := bookings[:0]
	for _, b := range bookings {
		if b.IsActive() && period.ContainsStart(b.StartDate) {
			out = append(out, b)
		}
	}
	return out, nil
}

// GetBooking loads one booking by id.
func (s *Store) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	bookings, err := s.queryBookings(ctx, s.db, "id = ?", false, id)
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return nil, ErrNotFound
	}
	return &bookings[0], nil
}

// conflictsTx lists active bookings overlapping r inside a transaction.
// The SQL filter is the inclusive superset; the policy is applied in Go.
func (s *Store) conflictsTx(ctx context.Context, tx *sqlx.Tx, r daterange.Range, excludeID int64) ([]models.Booking, error) {
	candidates, err := s.queryBookings(ctx, tx,
		fmt.Sprintf("%s AND %s <= ? AND %s >= ?", activeFilter, s.dialect.startDay, s.dialect.endDay), true,
		daterange.Format(r.End), daterange.Format(r.Start))
	if err != nil {
		return nil, err
	}
	return availability.Conflicts(candidates, r, excludeID, s.policy), nil
}

// InsertIfAvailable stores b only when no active booking overlaps it.
// The check and the insert run in one transaction; on conflict an
// *apperror.ConflictError listing the overlapping bookings is returned.
func (s *Store) InsertIfAvailable(ctx context.Context, b *models.Booking) (*models.Booking, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	r := b.Range()
	conflicts, err := s.conflictsTx(ctx, tx, r, 0)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, &apperror.ConflictError{Conflicts: conflicts}
	}

	created := *b
	if created.Status == "" {
		created.Status = models.StatusPending
	}
	created.CreatedAt = created.CreatedAt.UTC().Truncate(time.Second)

	query := `INSERT INTO bookings (name, email, phone, startdate, enddate, notes, status, parkering, createdat)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := []interface{}{
		created.GuestName, created.GuestEmail, created.GuestPhone,
		daterange.Format(created.StartDate), daterange.Format(created.EndDate),
		created.Notes, created.Status, created.ParkingRequested,
		created.CreatedAt.Format(time.RFC3339),
	}

	if s.dialect.returningID {
		err = tx.QueryRowxContext(ctx, tx.Rebind(query+" RETURNING id"), args...).Scan(&created.ID)
	} else {
		var res sql.Result
		res, err = tx.ExecContext(ctx, tx.Rebind(query), args...)
		if err == nil {
			created.ID, err = res.LastInsertId()
		}
	}
	if err != nil {
		if isExclusionViolation(err) {
			return nil, s.conflictAfterViolation(ctx, r, 0)
		}
		return nil, fmt.Errorf("insert booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isExclusionViolation(err) {
			return nil, s.conflictAfterViolation(ctx, r, 0)
		}
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info().
		Int64("booking_id", created.ID).
		Str("range", r.String()).
		Msg("Booking stored")
	return &created, nil
}

// conflictAfterViolation reloads the bookings a concurrent writer committed.
func (s *Store) conflictAfterViolation(ctx context.Context, r daterange.Range, excludeID int64) error {
	active, err := s.ListActiveBookings(ctx)
	if err != nil {
		return &apperror.ConflictError{}
	}
	return &apperror.ConflictError{Conflicts: availability.Conflicts(active, r, excludeID, s.policy)}
}

// UpdateStatus changes the status of a booking. Moving a cancelled booking
// back to an active status re-checks its dates against the other bookings.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status string) (*models.Booking, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := s.queryBookings(ctx, tx, "id = ?", true, id)
	if err != nil {
		return nil, err
	}
	if len(current) == 0 {
		return nil, ErrNotFound
	}
	b := current[0]

	if !b.IsActive() && status != models.StatusCancelled {
		conflicts, err := s.conflictsTx(ctx, tx, b.Range(), b.ID)
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			return nil, &apperror.ConflictError{Conflicts: conflicts}
		}
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE bookings SET status = ? WHERE id = ?`), status, id); err != nil {
		if isExclusionViolation(err) {
			return nil, s.conflictAfterViolation(ctx, b.Range(), b.ID)
		}
		return nil, fmt.Errorf("update status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	b.Status = status
	s.logger.Info().Int64("booking_id", id).Str("status", status).Msg("Booking status updated")
	return &b, nil
}

// IsNotFound reports whether err means the booking does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
