package report

import (
	"bytes"
	"encoding/csv"

	"gastbokning/internal/models"
)

// CSVRenderer writes the report as comma-separated values with a
// metadata preamble and the resident directory appended.
type CSVRenderer struct{}

func (CSVRenderer) ContentType() string { return "text/csv; charset=utf-8" }
func (CSVRenderer) Extension() string   { return FormatCSV }

// Render implements Renderer.
func (CSVRenderer) Render(r *models.Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	blank := func() {
		w.Flush()
		buf.WriteByte('\n')
	}

	records := [][]string{
		{"Organization", r.Meta.Organization},
		{"Period", r.Meta.PeriodLabel},
		{"Preparer", r.Meta.Preparer},
		{"Generated", r.Meta.GeneratedAt.UTC().Format(generatedLayout)},
	}
	if err := w.WriteAll(records); err != nil {
		return nil, renderErr(FormatCSV, err)
	}
	blank()

	records = [][]string{itemColumns}
	for _, it := range r.Items {
		records = append(records, itemRow(it))
	}
	records = append(records, []string{"Total", "", "", "", "", "", r.Total.StringFixed(2)})
	if err := w.WriteAll(records); err != nil {
		return nil, renderErr(FormatCSV, err)
	}
	blank()

	records = [][]string{{directoryTitle}, directoryColumns}
	for _, res := range r.Directory {
		records = append(records, directoryRow(res))
	}
	if err := w.WriteAll(records); err != nil {
		return nil, renderErr(FormatCSV, err)
	}
	return buf.Bytes(), nil
}
