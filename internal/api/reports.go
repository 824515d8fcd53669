package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"gastbokning/internal/apperror"
	"gastbokning/internal/billing"
	"gastbokning/internal/metrics"
	"gastbokning/internal/models"
	"gastbokning/internal/report"
)

const (
	formatPreview   = "preview"
	defaultPreparer = "Admin"
)

// ReportQuery holds the query parameters of GET /bookings/report.
type ReportQuery struct {
	Format    string `json:"format" validate:"oneof=preview csv pdf xlsx"`
	Month     int    `json:"month" validate:"gte=1,lte=12"`
	Year      int    `json:"year" validate:"gte=2000,lte=2100"`
	Preparer  string `json:"preparer" validate:"max=200"`
	SendEmail bool   `json:"sendEmail"`
}

// PreviewSummary totals a preview.
type PreviewSummary struct {
	TotalAmount string `json:"totalAmount"`
	TotalItems  int    `json:"totalItems"`
	Month       int    `json:"month"`
	Year        int    `json:"year"`
	Period      string `json:"period"`
}

// PreviewResponse is returned for format=preview.
type PreviewResponse struct {
	LineItems         []models.LineItem       `json:"lineItems"`
	ResidentDirectory []models.Resident       `json:"residentDirectory"`
	Skipped           []models.SkippedBooking `json:"skipped"`
	Summary           PreviewSummary          `json:"summary"`
}

// DeliveryResponse is returned when sendEmail=true.
type DeliveryResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Filename  string `json:"filename,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// handleReport previews, downloads or delivers the monthly billing report.
// GET /bookings/report?format=preview|csv|pdf|xlsx&month=7&year=2023&preparer=Anna&sendEmail=true
func (s *HTTPServer) handleReport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("report")

	q, err := s.parseReportQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	req := billing.Request{Year: q.Year, Month: q.Month, Preparer: q.Preparer}

	if q.SendEmail {
		s.deliverReport(w, r, q, req)
		return
	}

	if q.Format == formatPreview {
		rep, err := s.reports.Preview(r.Context(), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, previewOf(rep))
		return
	}

	doc, err := s.reports.Generate(r.Context(), req, q.Format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, doc.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Data)
}

func (s *HTTPServer) deliverReport(w http.ResponseWriter, r *http.Request, q ReportQuery, req billing.Request) {
	format := q.Format
	if format == formatPreview {
		format = report.FormatPDF
	}
	doc, err := s.reports.Generate(r.Context(), req, format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.reports.Deliver(r.Context(), doc); err != nil {
		s.logger.Error().Err(err).Str("filename", doc.Filename).Msg("Report delivery failed")
		var eerr *apperror.ExternalServiceError
		writeJSON(w, http.StatusBadGateway, DeliveryResponse{
			Success:   false,
			Message:   "the report was generated but could not be sent",
			Filename:  doc.Filename,
			Retryable: errors.As(err, &eerr),
		})
		return
	}
	writeJSON(w, http.StatusOK, DeliveryResponse{
		Success:  true,
		Message:  fmt.Sprintf("report %s sent", doc.Filename),
		Filename: doc.Filename,
	})
}

func (s *HTTPServer) parseReportQuery(r *http.Request) (ReportQuery, error) {
	values := r.URL.Query()
	now := s.now()
	q := ReportQuery{
		Format:   strings.ToLower(strings.TrimSpace(values.Get("format"))),
		Month:    int(now.Month()),
		Year:     now.Year(),
		Preparer: strings.TrimSpace(values.Get("preparer")),
	}
	if q.Format == "" {
		q.Format = formatPreview
	}
	if q.Preparer == "" {
		q.Preparer = strings.TrimSpace(values.Get("reporterName"))
	}
	if q.Preparer == "" {
		q.Preparer = defaultPreparer
	}

	verr := &apperror.ValidationError{}
	if v := values.Get("month"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			verr.Add("month", "must be a number")
		}
		q.Month = n
	}
	if v := values.Get("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			verr.Add("year", "must be a number")
		}
		q.Year = n
	}
	if v := values.Get("sendEmail"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			verr.Add("sendEmail", "must be true or false")
		}
		q.SendEmail = b
	}
	if !verr.Empty() {
		return q, verr
	}
	return q, s.check(&q)
}

func previewOf(rep *models.Report) PreviewResponse {
	resp := PreviewResponse{
		LineItems:         rep.Items,
		ResidentDirectory: rep.Directory,
		Skipped:           rep.Skipped,
		Summary: PreviewSummary{
			TotalAmount: rep.Total.StringFixed(2),
			TotalItems:  len(rep.Items),
			Month:       rep.Meta.Month,
			Year:        rep.Meta.Year,
			Period:      rep.Meta.PeriodLabel,
		},
	}
	if resp.LineItems == nil {
		resp.LineItems = []models.LineItem{}
	}
	if resp.ResidentDirectory == nil {
		resp.ResidentDirectory = []models.Resident{}
	}
	if resp.Skipped == nil {
		resp.Skipped = []models.SkippedBooking{}
	}
	return resp
}
