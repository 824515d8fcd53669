// Package google reads the resident directory from a Google Sheets spreadsheet.
package google

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gastbokning/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsService reads directory rows from one spreadsheet range. The first
// row is a header naming the columns; column order is free.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	readRange     string
	logger        *zerolog.Logger
}

// NewSheetsService authenticates with a service account key file.
func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID, readRange string, logger *zerolog.Logger) (*SheetsService, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, sheets.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return NewSheetsServiceWithOptions(ctx, spreadsheetID, readRange, logger, option.WithCredentials(creds))
}

// NewSheetsServiceWithOptions builds the client from explicit options.
func NewSheetsServiceWithOptions(ctx context.Context, spreadsheetID, readRange string, logger *zerolog.Logger, opts ...option.ClientOption) (*SheetsService, error) {
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	if readRange == "" {
		readRange = "Residents!A:H"
	}
	return &SheetsService{service: srv, spreadsheetID: spreadsheetID, readRange: readRange, logger: logger}, nil
}

// ListResidents fetches and decodes the directory rows.
func (s *SheetsService) ListResidents(ctx context.Context) ([]models.Resident, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", s.readRange, err)
	}
	residents := parseRows(resp.Values)
	s.logger.Debug().Int("rows", len(residents)).Str("range", s.readRange).Msg("Resident directory loaded from sheet")
	return residents, nil
}

var headerAliases = map[string]string{
	"apartment_number": "number",
	"apartment":        "number",
	"lgh":              "number",
	"apartment_code":   "code",
	"code":             "code",
	"resident_names":   "names",
	"residents":        "names",
	"name":             "names",
	"phone":            "phone",
	"primary_email":    "email",
	"email":            "email",
	"parking_space":    "parking",
	"parking":          "parking",
	"storage_space":    "storage",
	"storage":          "storage",
	"is_active":        "active",
	"active":           "active",
}

// parseRows maps sheet rows onto residents. Rows without an apartment
// number are ignored; a missing active column means active.
func parseRows(values [][]interface{}) []models.Resident {
	if len(values) < 2 {
		return []models.Resident{}
	}
	index := make(map[string]int)
	for i, h := range values[0] {
		key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(fmt.Sprint(h)), " ", "_"))
		if field, ok := headerAliases[key]; ok {
			if _, seen := index[field]; !seen {
				index[field] = i
			}
		}
	}

	cell := func(row []interface{}, field string) string {
		i, ok := index[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(row[i]))
	}

	out := make([]models.Resident, 0, len(values)-1)
	for _, row := range values[1:] {
		number := cell(row, "number")
		if number == "" {
			continue
		}
		active := true
		if _, ok := index["active"]; ok {
			if v := cell(row, "active"); v != "" {
				active = models.ParseLegacyBool(v)
			}
		}
		out = append(out, models.Resident{
			ApartmentNumber: number,
			ApartmentCode:   cell(row, "code"),
			ResidentNames:   cell(row, "names"),
			Phone:           cell(row, "phone"),
			PrimaryEmail:    cell(row, "email"),
			ParkingSpace:    cell(row, "parking"),
			StorageSpace:    cell(row, "storage"),
			IsActive:        active,
		})
	}
	return out
}
