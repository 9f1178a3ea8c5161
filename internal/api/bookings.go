package api

import (
	"net/http"

	"spadesk/internal/catalog"
	"spadesk/internal/model"
	"spadesk/internal/schedule"
)

type catalogResponse struct {
	Resources []catalog.Resource `json:"resources"`
	Services  []catalog.Service  `json:"services"`
}

func (s *HTTPServer) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, catalogResponse{
		Resources: s.deps.Catalog.Resources(),
		Services:  s.deps.Catalog.Services(),
	})
}

// handleGrid returns the day's bookings per resource.
// GET /api/v1/grid?date=YYYY-MM-DD
func (s *HTTPServer) handleGrid(w http.ResponseWriter, r *http.Request) {
	date, err := queryDate(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rows, err := s.deps.Schedule.Grid(r.Context(), date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "resources": rows})
}

type createBookingRequest struct {
	ServiceID  int64               `json:"service_id"`
	StaffID    *int64              `json:"staff_id,omitempty"`
	Date       string              `json:"date"`
	Time       string              `json:"time"`
	ClientName string              `json:"client_name"`
	Status     model.BookingStatus `json:"status,omitempty"`
	ResourceID string              `json:"resource_id,omitempty"`
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	start, err := startAt(req.Date, req.Time)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	b, err := s.deps.Schedule.CreateBooking(r.Context(), schedule.CreateBookingRequest{
		ServiceID:  req.ServiceID,
		StaffID:    req.StaffID,
		StartAt:    start,
		ClientName: req.ClientName,
		Status:     req.Status,
		ResourceID: req.ResourceID,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	b, err := s.deps.Bookings.GetBooking(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type moveRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// handleMoveBooking moves a booking; for a combo leg the pair moves and the new time is the pair's start.
func (s *HTTPServer) handleMoveBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	start, err := startAt(req.Date, req.Time)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	b, err := s.deps.Schedule.MoveBooking(r.Context(), id, start)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Schedule.CancelBooking(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": model.StatusCancelled})
}

func (s *HTTPServer) handleBookingStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req struct {
		Status model.BookingStatus `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	rows, err := s.deps.Schedule.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

type createComboRequest struct {
	ServiceID    int64               `json:"service_id"`
	StaffID      *int64              `json:"staff_id,omitempty"`
	AddonStaffID *int64              `json:"addon_staff_id,omitempty"`
	Date         string              `json:"date"`
	Time         string              `json:"time"`
	HeadSpaFirst bool                `json:"head_spa_first"`
	ClientName   string              `json:"client_name"`
	Status       model.BookingStatus `json:"status,omitempty"`
}

func (s *HTTPServer) handleCreateCombo(w http.ResponseWriter, r *http.Request) {
	var req createComboRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	start, err := startAt(req.Date, req.Time)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	pair, err := s.deps.Schedule.CreateCombo(r.Context(), schedule.CreateComboRequest{
		ServiceID:    req.ServiceID,
		StaffID:      req.StaffID,
		AddonStaffID: req.AddonStaffID,
		StartAt:      start,
		HeadSpaFirst: req.HeadSpaFirst,
		ClientName:   req.ClientName,
		Status:       req.Status,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pair)
}

func (s *HTTPServer) handleMoveCombo(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	start, err := startAt(req.Date, req.Time)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	pair, err := s.deps.Schedule.MoveCombo(r.Context(), r.PathValue("link"), start)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}
