// Package report renders billing reports as CSV, PDF and XLSX documents.
// Renderers are pure: the same report always produces the same bytes.
package report

import (
	"fmt"
	"strings"

	"gastbokning/internal/apperror"
	"gastbokning/internal/models"
)

// Supported output formats.
const (
	FormatCSV  = "csv"
	FormatPDF  = "pdf"
	FormatXLSX = "xlsx"
)

// DefaultKind names the document in file names.
const DefaultKind = "billing-report"

// Renderer turns a report into a document.
type Renderer interface {
	Render(r *models.Report) ([]byte, error)
	ContentType() string
	Extension() string
}

// ForFormat returns the renderer for a format name.
func ForFormat(format string) (Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatCSV, "":
		return CSVRenderer{}, nil
	case FormatPDF:
		return PDFRenderer{}, nil
	case FormatXLSX:
		return XLSXRenderer{}, nil
	default:
		return nil, apperror.NewValidation("format", fmt.Sprintf("unsupported format %q; use csv, pdf or xlsx", format))
	}
}

// Filename builds "<kind>-<year>-<MM>.<ext>", e.g. "billing-report-2023-07.pdf".
func Filename(kind string, year, month int, ext string) string {
	if kind == "" {
		kind = DefaultKind
	}
	return fmt.Sprintf("%s-%d-%02d.%s", kind, year, month, ext)
}

// Table columns shared by all formats.
var (
	itemColumns      = []string{"Apartment", "Name", "Period", "Charge description", "Quantity", "Unit price", "Total"}
	directoryColumns = []string{"Apartment", "Name", "Parking space", "Storage space"}
)

const (
	directoryTitle  = "Resident directory"
	generatedLayout = "2006-01-02 15:04 MST"
)

func money(it models.LineItem) (unit, total string) {
	return it.UnitPrice.StringFixed(2), it.TotalAmount.StringFixed(2)
}

func itemRow(it models.LineItem) []string {
	unit, total := money(it)
	return []string{
		it.ApartmentNumber,
		it.ResidentName,
		it.PeriodLabel,
		string(it.Description),
		fmt.Sprint(it.Nights),
		unit,
		total,
	}
}

func directoryRow(r models.Resident) []string {
	return []string{r.ApartmentNumber, r.ResidentNames, r.ParkingSpace, r.StorageSpace}
}

func renderErr(format string, err error) error {
	return &apperror.RenderError{Format: format, Err: err}
}
