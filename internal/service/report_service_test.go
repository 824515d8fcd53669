package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"gastbokning/internal/apperror"
	"gastbokning/internal/billing"
	"gastbokning/internal/delivery"
	"gastbokning/internal/events"
	"gastbokning/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBuilder struct {
	mock.Mock
}

func (m *mockBuilder) BuildReport(ctx context.Context, req billing.Request) (*models.Report, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Report), args.Error(1)
}

type mockDeliverer struct {
	mock.Mock
}

func (m *mockDeliverer) Enabled() bool { return m.Called().Bool(0) }

func (m *mockDeliverer) Deliver(ctx context.Context, msg delivery.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func julyReport() *models.Report {
	return &models.Report{
		Meta: models.ReportMeta{
			Organization: "Test Cooperative",
			PeriodLabel:  "July 2023",
			Year:         2023,
			Month:        7,
			Preparer:     "Anna",
			GeneratedAt:  time.Date(2023, 8, 1, 9, 30, 0, 0, time.UTC),
		},
		Items: []models.LineItem{{
			BookingID:       1,
			ApartmentNumber: "4",
			ResidentName:    "Kristina Utas",
			PeriodLabel:     "1-8 July",
			Description:     models.ChargeRental,
			Nights:          7,
			UnitPrice:       decimal.NewFromInt(600),
			TotalAmount:     decimal.NewFromInt(4200),
		}},
		Total: decimal.NewFromInt(4200),
	}
}

func newReportService(b ReportBuilder, d Deliverer, bus EventPublisher) *ReportService {
	logger := zerolog.New(io.Discard)
	return NewReportService(b, d, bus, "", &logger)
}

func TestReportService_Generate(t *testing.T) {
	ctx := context.Background()
	req := billing.Request{Year: 2023, Month: 7, Preparer: "Anna"}

	builder := new(mockBuilder)
	builder.On("BuildReport", ctx, req).Return(julyReport(), nil)
	svc := newReportService(builder, nil, nil)

	doc, err := svc.Generate(ctx, req, "")
	require.NoError(t, err)
	assert.Equal(t, "billing-report-2023-07.csv", doc.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", doc.ContentType)
	assert.True(t, bytes.Contains(doc.Data, []byte("4,Kristina Utas,1-8 July,apartment rental,7,600.00,4200.00")))

	doc, err = svc.Generate(ctx, req, "pdf")
	require.NoError(t, err)
	assert.Equal(t, "billing-report-2023-07.pdf", doc.Filename)
	assert.True(t, bytes.HasPrefix(doc.Data, []byte("%PDF-")))

	_, err = svc.Generate(ctx, req, "docx")
	var verr *apperror.ValidationError
	assert.ErrorAs(t, err, &verr)

	builder.AssertNumberOfCalls(t, "BuildReport", 2)
}

func TestReportService_GenerateBuildError(t *testing.T) {
	ctx := context.Background()
	req := billing.Request{Year: 2023, Month: 13}
	builder := new(mockBuilder)
	builder.On("BuildReport", ctx, req).Return(nil, apperror.NewValidation("month", "must be between 1 and 12"))

	_, err := newReportService(builder, nil, nil).Generate(ctx, req, "csv")
	var verr *apperror.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestReportService_Deliver(t *testing.T) {
	ctx := context.Background()
	req := billing.Request{Year: 2023, Month: 7, Preparer: "Anna"}
	builder := new(mockBuilder)
	builder.On("BuildReport", ctx, req).Return(julyReport(), nil)

	t.Run("sends attachment and publishes", func(t *testing.T) {
		d := new(mockDeliverer)
		bus := new(mockEventBus)
		svc := newReportService(builder, d, bus)
		doc, err := svc.Generate(ctx, req, "csv")
		require.NoError(t, err)

		d.On("Deliver", ctx, mock.MatchedBy(func(m delivery.Message) bool {
			return m.Subject == "Billing report July 2023 - Test Cooperative" &&
				m.Attachment.Filename == "billing-report-2023-07.csv" &&
				bytes.Equal(m.Attachment.Data, doc.Data)
		})).Return(nil)
		bus.On("PublishJSON", events.TypeReportDelivered, mock.Anything).Return(nil)

		require.NoError(t, svc.Deliver(ctx, doc))
		d.AssertExpectations(t)
		bus.AssertExpectations(t)
	})

	t.Run("failure keeps the document", func(t *testing.T) {
		d := new(mockDeliverer)
		svc := newReportService(builder, d, nil)
		doc, err := svc.Generate(ctx, req, "csv")
		require.NoError(t, err)
		before := append([]byte(nil), doc.Data...)

		d.On("Deliver", ctx, mock.Anything).Return(apperror.External("email", "send", errors.New("503")))
		err = svc.Deliver(ctx, doc)
		assert.True(t, apperror.IsRetryable(err))
		assert.Equal(t, before, doc.Data)
	})

	t.Run("no deliverer", func(t *testing.T) {
		svc := newReportService(builder, nil, nil)
		assert.False(t, svc.DeliveryEnabled())
		err := svc.Deliver(ctx, &Document{Report: julyReport()})
		assert.ErrorIs(t, err, delivery.ErrNoChannels)
		assert.True(t, apperror.IsRetryable(err))
	})
}
