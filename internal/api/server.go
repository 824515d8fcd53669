// Package api exposes the booking and billing operations over HTTP/JSON.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"gastbokning/internal/apperror"
	"gastbokning/internal/availability"
	"gastbokning/internal/billing"
	"gastbokning/internal/daterange"
	"gastbokning/internal/models"
	"gastbokning/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// BookingService is the booking side used by the handlers.
type BookingService interface {
	CheckAvailability(ctx context.Context, r daterange.Range) (availability.Result, error)
	Create(ctx context.Context, in service.NewBooking) (*models.Booking, error)
	Get(ctx context.Context, id int64) (*models.Booking, error)
	UpdateStatus(ctx context.Context, id int64, status string) (*models.Booking, error)
}

// ReportService is the billing side used by the handlers.
type ReportService interface {
	Preview(ctx context.Context, req billing.Request) (*models.Report, error)
	Generate(ctx context.Context, req billing.Request, format string) (*service.Document, error)
	Deliver(ctx context.Context, doc *service.Document) error
}

// HTTPServer serves the public API.
type HTTPServer struct {
	bookings BookingService
	reports  ReportService
	apiKey   string
	validate *validator.Validate
	logger   *zerolog.Logger
	now      func() time.Time
	server   *http.Server
}

// NewHTTPServer builds the router. An empty apiKey disables the X-Api-Key check.
func NewHTTPServer(addr, apiKey string, bookings BookingService, reports ReportService, readTimeout time.Duration, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		bookings: bookings,
		reports:  reports,
		apiKey:   apiKey,
		validate: newValidator(),
		logger:   logger,
		now:      time.Now,
	}

	r := mux.NewRouter()
	r.Use(s.authMiddleware)
	r.HandleFunc("/bookings/check-availability", s.handleCheckAvailability).Methods(http.MethodPost)
	r.HandleFunc("/bookings/report", s.handleReport).Methods(http.MethodGet)
	r.HandleFunc("/bookings", s.handleCreateBooking).Methods(http.MethodPost)
	r.HandleFunc("/bookings/{id:[0-9]+}", s.handleGetBooking).Methods(http.MethodGet)
	r.HandleFunc("/bookings/{id:[0-9]+}/status", s.handleUpdateStatus).Methods(http.MethodPut)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	})

	s.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
	}
	return s
}

// Handler returns the routed handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting API server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			key := r.Header.Get("X-Api-Key")
			if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid or missing API key"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Error               string            `json:"error"`
	Fields              map[string]string `json:"fields,omitempty"`
	OverlappingBookings []models.Booking  `json:"overlappingBookings,omitempty"`
	Retryable           bool              `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes. Internal details of
// external and render failures are logged, not returned.
func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperror.HTTPStatus(err)
	resp := errorResponse{Error: err.Error()}

	var (
		verr *apperror.ValidationError
		cerr *apperror.ConflictError
		eerr *apperror.ExternalServiceError
	)
	switch {
	case errors.As(err, &verr):
		resp.Error = "validation failed"
		resp.Fields = verr.Fields
	case errors.As(err, &cerr):
		resp.Error = "the requested dates overlap an existing booking"
		resp.OverlappingBookings = cerr.Conflicts
		if resp.OverlappingBookings == nil {
			resp.OverlappingBookings = []models.Booking{}
		}
	case errors.As(err, &eerr):
		resp.Error = fmt.Sprintf("%s is unavailable, try again later", eerr.Service)
		resp.Retryable = true
	case status >= http.StatusInternalServerError:
		resp.Error = "internal error"
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Msg("Request failed")
	}
	writeJSON(w, status, resp)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return apperror.NewValidation("body", "invalid JSON body")
	}
	return nil
}

// check runs struct validation and reports failures by JSON field name.

func (s *HTTPServer) check(v interface{}) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.NewValidation("body", err.Error())
	}
	out := &apperror.ValidationError{}
	for _, fe := range verrs {
		out.Add(fe.Field(), fieldMessage(fe))
	}
	return out
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	default:
		return "is invalid"
	}
}
