package report

import (
	"bytes"
	"fmt"

	"gastbokning/internal/models"

	"github.com/go-pdf/fpdf"
)

// A4 portrait layout in millimetres.
const (
	pageHeight   = 297.0
	marginLeft   = 15.0
	marginTop    = 15.0
	marginRight  = 15.0
	footerHeight = 15.0
	rowHeight    = 6.0
	contentWidth = 210.0 - marginLeft - marginRight

	bottomLimit = pageHeight - footerHeight
)

var (
	itemWidths      = []float64{22, 42, 34, 30, 14, 18, 20}
	itemAligns      = []string{"L", "L", "L", "L", "R", "R", "R"}
	directoryWidths = []float64{30, 90, 30, 30}
)

// PDFRenderer lays the report out on A4 pages. Table headers repeat after
// every page break and the resident directory carries a continuation title.
type PDFRenderer struct{}

func (PDFRenderer) ContentType() string { return "application/pdf" }
func (PDFRenderer) Extension() string   { return FormatPDF }

// Render implements Renderer.
func (PDFRenderer) Render(r *models.Report) ([]byte, error) {
	pdf := layout(r, true)
	if pdf.Err() {
		return nil, renderErr(FormatPDF, pdf.Error())
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, renderErr(FormatPDF, err)
	}
	return buf.Bytes(), nil
}

type pdfDoc struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func layout(r *models.Report, compress bool) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(compress)
	generated := r.Meta.GeneratedAt.UTC()
	pdf.SetCreationDate(generated)
	pdf.SetModificationDate(generated)
	pdf.SetCatalogSort(true)
	pdf.SetMargins(marginLeft, marginTop, marginRight)
	pdf.SetAutoPageBreak(false, footerHeight)
	pdf.AliasNbPages("")

	d := &pdfDoc{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	pdf.SetTitle(d.tr(fmt.Sprintf("Billing report %s", r.Meta.PeriodLabel)), false)
	pdf.SetAuthor(d.tr(r.Meta.Organization), false)

	pdf.SetFooterFunc(func() {
		pdf.SetY(-footerHeight + 4)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(110, 110, 110)
		pdf.CellFormat(contentWidth/2, 5, "Generated "+generated.Format(generatedLayout), "", 0, "L", false, 0, "")
		pdf.CellFormat(contentWidth/2, 5, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	})

	pdf.AddPage()
	d.titleBlock(r)
	d.itemsTable(r)
	d.directory(r.Directory)
	return pdf
}

func (d *pdfDoc) titleBlock(r *models.Report) {
	pdf := d.pdf
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(contentWidth, 9, d.tr("Billing report - guest apartment"), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, line := range [][2]string{
		{"Organization", r.Meta.Organization},
		{"Period", r.Meta.PeriodLabel},
		{"Prepared by", r.Meta.Preparer},
	} {
		pdf.CellFormat(30, 5.5, line[0]+":", "", 0, "L", false, 0, "")
		pdf.CellFormat(contentWidth-30, 5.5, d.tr(line[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

// ensure starts a new page when h more millimetres would cross the footer,
// calling onBreak to redraw headers. It reports whether a break happened.
func (d *pdfDoc) ensure(h float64, onBreak func()) bool {
	if d.pdf.GetY()+h <= bottomLimit {
		return false
	}
	d.pdf.AddPage()
	if onBreak != nil {
		onBreak()
	}
	return true
}

func (d *pdfDoc) header(cols []string, widths []float64) {
	pdf := d.pdf
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, c := range cols {
		pdf.CellFormat(widths[i], rowHeight+1, d.tr(c), "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 9)
}

func (d *pdfDoc) row(values []string, widths []float64, aligns []string) {
	for i, v := range values {
		align := "L"
		if aligns != nil {
			align = aligns[i]
		}
		d.pdf.CellFormat(widths[i], rowHeight, d.fit(v, widths[i]-2), "1", 0, align, false, 0, "")
	}
	d.pdf.Ln(-1)
}

// fit truncates text so it stays inside a cell of width w.
func (d *pdfDoc) fit(s string, w float64) string {
	s = d.tr(s)
	if d.pdf.GetStringWidth(s) <= w {
		return s
	}
	for len(s) > 0 && d.pdf.GetStringWidth(s+"...") > w {
		s = s[:len(s)-1]
	}
	return s + "..."
}

func (d *pdfDoc) itemsTable(r *models.Report) {
	pdf := d.pdf
	redraw := func() { d.header(itemColumns, itemWidths) }

	d.ensure(rowHeight*2, nil)
	redraw()

	if len(r.Items) == 0 {
		pdf.SetFont("Helvetica", "I", 9)
		pdf.CellFormat(contentWidth, rowHeight, "No billable bookings in this period.", "1", 1, "C", false, 0, "")
	}
	for _, it := range r.Items {
		d.ensure(rowHeight, redraw)
		d.row(itemRow(it), itemWidths, itemAligns)
	}

	d.ensure(rowHeight+2, redraw)
	pdf.SetFont("Helvetica", "B", 10)
	labelWidth := contentWidth - itemWidths[len(itemWidths)-1]
	pdf.CellFormat(labelWidth, rowHeight+2, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(itemWidths[len(itemWidths)-1], rowHeight+2, r.Total.StringFixed(2), "1", 1, "R", false, 0, "")
	pdf.Ln(8)
}

func (d *pdfDoc) directory(rs []models.Resident) {
	pdf := d.pdf
	title := func(text string) {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(contentWidth, 8, text, "", 1, "L", false, 0, "")
		d.header(directoryColumns, directoryWidths)
	}

	d.ensure(8+rowHeight*2+1, nil)
	title(directoryTitle)
	for _, res := range rs {
		d.ensure(rowHeight, func() { title(directoryTitle + " (continued)") })
		d.row(directoryRow(res), directoryWidths, nil)
	}
}
