package report

import (
	"bytes"
	"fmt"

	"gastbokning/internal/models"

	"github.com/xuri/excelize/v2"
)

// XLSXRenderer writes a workbook with a "Billing" sheet and a "Residents" sheet.
type XLSXRenderer struct{}

func (XLSXRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}
func (XLSXRenderer) Extension() string { return FormatXLSX }

// Render implements Renderer.
func (XLSXRenderer) Render(r *models.Report) ([]byte, error) {
	w := newSheetWriter()
	defer w.Close()

	stamp := r.Meta.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z")
	if err := w.file.SetDocProps(&excelize.DocProperties{
		Title:    "Billing report " + r.Meta.PeriodLabel,
		Creator:  r.Meta.Organization,
		Created:  stamp,
		Modified: stamp,
	}); err != nil {
		return nil, renderErr(FormatXLSX, err)
	}

	if err := w.billing(r); err != nil {
		return nil, renderErr(FormatXLSX, err)
	}
	if err := w.residents(r.Directory); err != nil {
		return nil, renderErr(FormatXLSX, err)
	}

	var buf bytes.Buffer
	if err := w.Save(&buf); err != nil {
		return nil, renderErr(FormatXLSX, err)
	}
	return buf.Bytes(), nil
}

// sheetWriter appends rows to the current sheet of an excelize workbook.
type sheetWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

func newSheetWriter() *sheetWriter {
	return &sheetWriter{file: excelize.NewFile()}
}

// AddSheet starts a new sheet; the first call renames the default one.
func (w *sheetWriter) AddSheet(name string) error {
	if len(name) > 31 {
		name = name[:31]
	}
	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	w.currentSheet = name
	w.currentRow = 1
	return nil
}

// WriteHeader writes a bold header row.
func (w *sheetWriter) WriteHeader(columns []string) error {
	row := make([]interface{}, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	first := w.currentRow
	if err := w.WriteRow(row); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	startCell, _ := excelize.CoordinatesToCellName(1, first)
	endCell, _ := excelize.CoordinatesToCellName(len(columns), first)
	return w.file.SetCellStyle(w.currentSheet, startCell, endCell, style)
}

// WriteRow writes one data row.
func (w *sheetWriter) WriteRow(row []interface{}) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	cell, err := excelize.CoordinatesToCellName(1, w.currentRow)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.currentSheet, cell, &row); err != nil {
		return err
	}
	w.currentRow++
	return nil
}

func (w *sheetWriter) skip() { w.currentRow++ }

func (w *sheetWriter) billing(r *models.Report) error {
	if err := w.AddSheet("Billing"); err != nil {
		return err
	}
	meta := [][]interface{}{
		{"Organization", r.Meta.Organization},
		{"Period", r.Meta.PeriodLabel},
		{"Preparer", r.Meta.Preparer},
		{"Generated", r.Meta.GeneratedAt.UTC().Format(generatedLayout)},
	}
	for _, m := range meta {
		if err := w.WriteRow(m); err != nil {
			return err
		}
	}
	w.skip()

	if err := w.WriteHeader(itemColumns); err != nil {
		return err
	}
	for _, it := range r.Items {
		if err := w.WriteRow([]interface{}{
			it.ApartmentNumber,
			it.ResidentName,
			it.PeriodLabel,
			string(it.Description),
			it.Nights,
			it.UnitPrice.InexactFloat64(),
			it.TotalAmount.InexactFloat64(),
		}); err != nil {
			return err
		}
	}
	if err := w.WriteRow([]interface{}{"Total", nil, nil, nil, nil, nil, r.Total.InexactFloat64()}); err != nil {
		return err
	}
	return w.file.SetColWidth(w.currentSheet, "A", "G", 18)
}

func (w *sheetWriter) residents(rs []models.Resident) error {
	if err := w.AddSheet("Residents"); err != nil {
		return err
	}
	if err := w.WriteHeader(directoryColumns); err != nil {
		return err
	}
	for _, res := range rs {
		if err := w.WriteRow([]interface{}{res.ApartmentNumber, res.ResidentNames, res.ParkingSpace, res.StorageSpace}); err != nil {
			return err
		}
	}
	return w.file.SetColWidth(w.currentSheet, "A", "D", 22)
}

// Save writes the workbook.
func (w *sheetWriter) Save(out *bytes.Buffer) error {
	return w.file.Write(out)
}

// Close releases resources.
func (w *sheetWriter) Close() error {
	return w.file.Close()
}
