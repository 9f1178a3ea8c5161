// Package api serves the JSON endpoints used by the front-desk display.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"spadesk/internal/availability"
	"spadesk/internal/bizclock"
	"spadesk/internal/catalog"
	"spadesk/internal/draftsync"
	"spadesk/internal/importer"
	"spadesk/internal/model"
	"spadesk/internal/report"
	"spadesk/internal/roster"
	"spadesk/internal/schedule"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// maxUploadBytes bounds workbook uploads.
const maxUploadBytes = 10 << 20

// BookingReader loads single bookings. *db.DB implements it.
type BookingReader interface {
	GetBooking(ctx context.Context, id int64) (*model.Booking, error)
}

// Deps are the services behind the endpoints. Sheets may be nil.
type Deps struct {
	Catalog      *catalog.Catalog
	Bookings     BookingReader
	Schedule     *schedule.Service
	Sync         *draftsync.Service
	Availability *availability.Overlay
	Roster       *roster.Service
	Reports      *report.Generator
	Sheets       *importer.SheetsSource
}

// Limits configure the per-client rate limiter.
type Limits struct {
	RPS   float64
	Burst int
}

type HTTPServer struct {
	deps   Deps
	server *http.Server
	logger *zerolog.Logger
}

func NewHTTPServer(addr string, deps Deps, limits Limits, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{deps: deps, logger: logger}

	mux := http.NewServeMux()
	s.routes(mux)

	handler := withMetrics(mux)
	handler = rateLimit(rate.Limit(limits.RPS), limits.Burst, handler)
	handler = s.recoverer(handler)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the full middleware chain, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/catalog", s.handleCatalog)
	mux.HandleFunc("GET /api/v1/grid", s.handleGrid)

	mux.HandleFunc("POST /api/v1/bookings", s.handleCreateBooking)
	mux.HandleFunc("GET /api/v1/bookings/{id}", s.handleGetBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/move", s.handleMoveBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/cancel", s.handleCancelBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/status", s.handleBookingStatus)
	mux.HandleFunc("POST /api/v1/combos", s.handleCreateCombo)
	mux.HandleFunc("POST /api/v1/combos/{link}/move", s.handleMoveCombo)

	mux.HandleFunc("GET /api/v1/availability", s.handleAvailability)
	mux.HandleFunc("POST /api/v1/availability/toggle", s.handleToggle)

	mux.HandleFunc("GET /api/v1/staff", s.handleListStaff)
	mux.HandleFunc("POST /api/v1/staff", s.handleCreateStaff)
	mux.HandleFunc("DELETE /api/v1/staff/{id}", s.handleRemoveStaff)
	mux.HandleFunc("GET /api/v1/shifts", s.handleListShifts)
	mux.HandleFunc("PUT /api/v1/shifts", s.handleUpsertShift)

	mux.HandleFunc("GET /api/v1/sync/{scope}", s.handleSyncStatus)
	mux.HandleFunc("POST /api/v1/sync/{scope}/import", s.handleImport)
	mux.HandleFunc("GET /api/v1/sync/{scope}/drafts", s.handleListDrafts)
	mux.HandleFunc("POST /api/v1/sync/{scope}/publish", s.handlePublish)
	mux.HandleFunc("POST /api/v1/sync/{scope}/discard", s.handleDiscard)
	mux.HandleFunc("PATCH /api/v1/drafts/{id}", s.handleUpdateDraft)
	mux.HandleFunc("DELETE /api/v1/drafts/{id}", s.handleDeleteDraft)

	mux.HandleFunc("GET /api/v1/reports/tables", s.handleTablesReport)
	mux.HandleFunc("GET /api/v1/reports/{scope}", s.handleMonthlyReport)
}

// Start serves until ctx is cancelled.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctxShutdown)
	}()

	s.logger.Info().Str("addr", s.server.Addr).Msg("API server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panic")
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// fail maps domain errors onto HTTP statuses.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrConcurrentModification):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrResourceUnavailable),
		errors.Is(err, model.ErrComboLegConflict),
		errors.Is(err, model.ErrSyncMetaMissing),
		errors.Is(err, model.ErrBrokenCombo):
		return http.StatusConflict
	case errors.Is(err, model.ErrDraftEditForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidInput),
		errors.Is(err, model.ErrInvalidInterval),
		errors.Is(err, model.ErrUnknownService),
		errors.Is(err, model.ErrStaffNotAllowed),
		errors.Is(err, model.ErrNotCombo),
		errors.Is(err, model.ErrComboService),
		errors.Is(err, model.ErrInvalidTransition):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", model.ErrInvalidInput, err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", model.ErrInvalidInput, r.PathValue("id"))
	}
	return id, nil
}

func pathScope(r *http.Request) (string, error) {
	scope, err := bizclock.ParseScope(r.PathValue("scope"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	return scope.Key(), nil
}

// startAt combines the display layer's date and HH:mm fields.
func startAt(date, clock string) (time.Time, error) {
	t, err := bizclock.At(date, clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	return t, nil
}

func queryDate(r *http.Request) (string, error) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = bizclock.FormatDate(time.Now())
	}
	if _, err := bizclock.ParseDate(date); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	return date, nil
}
