package service

import (
	"context"
	"fmt"

	"gastbokning/internal/apperror"
	"gastbokning/internal/billing"
	"gastbokning/internal/delivery"
	"gastbokning/internal/events"
	"gastbokning/internal/metrics"
	"gastbokning/internal/models"
	"gastbokning/internal/report"

	"github.com/rs/zerolog"
)

// ReportBuilder produces the billing data for a month.
type ReportBuilder interface {
	BuildReport(ctx context.Context, req billing.Request) (*models.Report, error)
}

// Deliverer sends a rendered document.
type Deliverer interface {
	Enabled() bool
	Deliver(ctx context.Context, msg delivery.Message) error
}

// Document is a rendered report ready for download or delivery.
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
	Report      *models.Report
}

// ReportService renders monthly billing reports and hands them to delivery.
// Generation and delivery are separate steps so a failed delivery never
// discards a rendered document.
type ReportService struct {
	builder   ReportBuilder
	deliverer Deliverer
	events    EventPublisher
	kind      string
	logger    *zerolog.Logger
}

// NewReportService wires the report service. kind prefixes file names.
func NewReportService(builder ReportBuilder, deliverer Deliverer, bus EventPublisher, kind string, logger *zerolog.Logger) *ReportService {
	if kind == "" {
		kind = report.DefaultKind
	}
	return &ReportService{builder: builder, deliverer: deliverer, events: bus, kind: kind, logger: logger}
}

// Preview returns the report data without rendering a document.
func (s *ReportService) Preview(ctx context.Context, req billing.Request) (*models.Report, error) {
	return s.builder.BuildReport(ctx, req)
}

// Generate builds and renders the report for one month.
func (s *ReportService) Generate(ctx context.Context, req billing.Request, format string) (*Document, error) {
	renderer, err := report.ForFormat(format)
	if err != nil {
		return nil, err
	}
	rep, err := s.builder.BuildReport(ctx, req)
	if err != nil {
		return nil, err
	}
	data, err := renderer.Render(rep)
	if err != nil {
		s.logger.Error().Err(err).Str("format", renderer.Extension()).Int("month", req.Month).Int("year", req.Year).Msg("Failed to render report")
		return nil, err
	}
	metrics.IncReport(renderer.Extension())

	doc := &Document{
		Filename:    report.Filename(s.kind, req.Year, req.Month, renderer.Extension()),
		ContentType: renderer.ContentType(),
		Data:        data,
		Report:      rep,
	}
	s.logger.Info().
		Str("filename", doc.Filename).
		Int("bytes", len(data)).
		Int("items", len(rep.Items)).
		Msg("Report generated")
	return doc, nil
}

// DeliveryEnabled reports whether any delivery channel is configured.
func (s *ReportService) DeliveryEnabled() bool {
	return s.deliverer != nil && s.deliverer.Enabled()
}

// Deliver sends a generated document. Failures are retryable
// ExternalServiceErrors; the document stays valid.
func (s *ReportService) Deliver(ctx context.Context, doc *Document) error {
	if s.deliverer == nil {
		return apperror.External("delivery", "send", delivery.ErrNoChannels)
	}
	meta := doc.Report.Meta
	msg := delivery.Message{
		Subject: fmt.Sprintf("Billing report %s - %s", meta.PeriodLabel, meta.Organization),
		Body: fmt.Sprintf("Billing report for the guest apartment, %s.\nPrepared by: %s\nLine items: %d\nTotal: %s\n",
			meta.PeriodLabel, meta.Preparer, len(doc.Report.Items), doc.Report.Total.StringFixed(2)),
		Attachment: delivery.Attachment{
			Filename:    doc.Filename,
			ContentType: doc.ContentType,
			Data:        doc.Data,
		},
	}

	if err := s.deliverer.Deliver(ctx, msg); err != nil {
		metrics.IncDelivery(false)
		return err
	}
	metrics.IncDelivery(true)

	if s.events != nil {
		if err := s.events.PublishJSON(events.TypeReportDelivered, map[string]interface{}{
			"filename": doc.Filename,
			"year":     meta.Year,
			"month":    meta.Month,
		}); err != nil {
			s.logger.Warn().Err(err).Msg("Event handler failed")
		}
	}
	return nil
}
