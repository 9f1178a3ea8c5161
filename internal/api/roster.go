package api

import (
	"net/http"

	"spadesk/internal/availability"
	"spadesk/internal/model"
	"spadesk/internal/roster"
)

// handleAvailability lists the effective state of every active staff member.
// GET /api/v1/availability?date=YYYY-MM-DD
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	date, err := queryDate(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	staff, err := s.deps.Roster.ListStaff(r.Context(), true)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	states, err := s.deps.Availability.Day(r.Context(), date, staff)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	type entry struct {
		Name string `json:"name"`
		availability.Effective
	}
	out := make([]entry, len(states))
	for i, st := range states {
		out[i] = entry{Name: staff[i].Name, Effective: st}
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "staff": out})
}

type toggleRequest struct {
	StaffID int64  `json:"staff_id"`
	Date    string `json:"date"`
	// Online sets the switch; nil flips it.
	Online *bool `json:"online,omitempty"`
}

func (s *HTTPServer) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := s.deps.Roster.GetStaff(r.Context(), req.StaffID); err != nil {
		s.fail(w, r, err)
		return
	}
	var (
		eff availability.Effective
		err error
	)
	if req.Online != nil {
		eff, err = s.deps.Availability.SetOnline(r.Context(), req.StaffID, req.Date, *req.Online)
	} else {
		eff, err = s.deps.Availability.Toggle(r.Context(), req.StaffID, req.Date)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eff)
}

func (s *HTTPServer) handleListStaff(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	staff, err := s.deps.Roster.ListStaff(r.Context(), activeOnly)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if staff == nil {
		staff = []model.Staff{}
	}
	writeJSON(w, http.StatusOK, staff)
}

func (s *HTTPServer) handleCreateStaff(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Role string `json:"role,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	member, err := s.deps.Roster.CreateStaff(r.Context(), req.Name, req.Role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func (s *HTTPServer) handleRemoveStaff(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Roster.RemoveStaff(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListShifts returns the roster of a month.
// GET /api/v1/shifts?scope=YYYY-MM
func (s *HTTPServer) handleListShifts(w http.ResponseWriter, r *http.Request) {
	shifts, err := s.deps.Roster.ListShifts(r.Context(), r.URL.Query().Get("scope"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if shifts == nil {
		shifts = []model.Shift{}
	}
	writeJSON(w, http.StatusOK, shifts)
}

func (s *HTTPServer) handleUpsertShift(w http.ResponseWriter, r *http.Request) {
	var req roster.ShiftInput
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	change, err := s.deps.Roster.UpsertShift(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, change)
}
