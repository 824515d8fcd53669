package database

import (
	"context"
	"database/sql"
	"fmt"

	"gastbokning/internal/models"
)

type residentRow struct {
	ApartmentNumber string         `db:"apartment_number"`
	ApartmentCode   sql.NullString `db:"apartment_code"`
	ResidentNames   string         `db:"resident_names"`
	Phone           sql.NullString `db:"phone"`
	PrimaryEmail    sql.NullString `db:"primary_email"`
	ParkingSpace    sql.NullString `db:"parking_space"`
	StorageSpace    sql.NullString `db:"storage_space"`
	IsActive        bool           `db:"is_active"`
}

// ListResidents returns the whole directory, active and inactive.
func (s *Store) ListResidents(ctx context.Context) ([]models.Resident, error) {
	var rows []residentRow
	err := s.db.SelectContext(ctx, &rows, `SELECT apartment_number, apartment_code, resident_names, phone,
		primary_email, parking_space, storage_space, is_active FROM residents ORDER BY id`)
	if err != nil {
		return nil, err
	}
	out := make([]models.Resident, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Resident{
			ApartmentNumber: r.ApartmentNumber,
			ApartmentCode:   r.ApartmentCode.String,
			ResidentNames:   r.ResidentNames,
			Phone:           r.Phone.String,
			PrimaryEmail:    r.PrimaryEmail.String,
			ParkingSpace:    r.ParkingSpace.String,
			StorageSpace:    r.StorageSpace.String,
			IsActive:        r.IsActive,
		})
	}
	return out, nil
}

// ReplaceResidents swaps the stored directory for rs in one transaction.
func (s *Store) ReplaceResidents(ctx context.Context, rs []models.Resident) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM residents`); err != nil {
		return fmt.Errorf("clear residents: %w", err)
	}
	for _, r := range rs {
		_, err := tx.NamedExecContext(ctx, `INSERT INTO residents
			(apartment_number, apartment_code, resident_names, phone, primary_email, parking_space, storage_space, is_active)
			VALUES (:apartment_number, :apartment_code, :resident_names, :phone, :primary_email, :parking_space, :storage_space, :is_active)`,
			residentRow{
				ApartmentNumber: r.ApartmentNumber,
				ApartmentCode:   nullString(r.ApartmentCode),
				ResidentNames:   r.ResidentNames,
				Phone:           nullString(r.Phone),
				PrimaryEmail:    nullString(r.PrimaryEmail),
				ParkingSpace:    nullString(r.ParkingSpace),
				StorageSpace:    nullString(r.StorageSpace),
				IsActive:        r.IsActive,
			})
		if err != nil {
			return fmt.Errorf("insert resident %s: %w", r.ApartmentNumber, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Info().Int("count", len(rs)).Msg("Resident directory replaced")
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
