package api

import (
	"net/http"
	"strconv"
	"strings"

	"gastbokning/internal/apperror"
	"gastbokning/internal/metrics"
	"gastbokning/internal/models"
	"gastbokning/internal/service"

	"github.com/gorilla/mux"
)

// AvailabilityRequest is the body of POST /bookings/check-availability.
type AvailabilityRequest struct {
	StartDate string `json:"startDate" validate:"required"`
	EndDate   string `json:"endDate" validate:"required"`
}

// AvailabilityResponse is its answer.
type AvailabilityResponse struct {
	Available           bool             `json:"available"`
	OverlappingBookings []models.Booking `json:"overlappingBookings"`
}

// CreateBookingRequest is the body of POST /bookings.
type CreateBookingRequest struct {
	Name      string `json:"name" validate:"required,max=200"`
	Email     string `json:"email" validate:"omitempty,email,max=200"`
	Phone     string `json:"phone" validate:"omitempty,max=50"`
	StartDate string `json:"startDate" validate:"required"`
	EndDate   string `json:"endDate" validate:"required"`
	Notes     string `json:"notes" validate:"max=2000"`
	Parking   bool   `json:"parking"`
	Status    string `json:"status" validate:"omitempty,oneof=pending confirmed"`
}

// StatusRequest is the body of PUT /bookings/{id}/status.
type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed cancelled"`
}

// handleCheckAvailability reports whether a date range is free.
// POST /bookings/check-availability
func (s *HTTPServer) handleCheckAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("check_availability")

	var req AvailabilityRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.check(&req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rng, err := service.ParseRange(req.StartDate, req.EndDate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.bookings.CheckAvailability(r.Context(), rng)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityResponse{Available: res.Available, OverlappingBookings: res.Conflicts})
}

// handleCreateBooking stores a booking when its dates are free.
// POST /bookings
func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_booking")

	var req CreateBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if err := s.check(&req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rng, err := service.ParseRange(req.StartDate, req.EndDate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	created, err := s.bookings.Create(r.Context(), service.NewBooking{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Range:   rng,
		Notes:   req.Notes,
		Parking: req.Parking,
		Status:  req.Status,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleGetBooking returns one booking.
// GET /bookings/{id}
func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("get_booking")

	id, err := bookingID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.bookings.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleUpdateStatus confirms or cancels a booking.
// PUT /bookings/{id}/status
func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("update_status")

	id, err := bookingID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req StatusRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if err := s.check(&req); err != nil {
		s.writeError(w, r, err)
		return
	}

	b, err := s.bookings.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func bookingID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.NewValidation("id", "must be a positive integer")
	}
	return id, nil
}
