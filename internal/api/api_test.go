package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"spadesk/internal/availability"
	"spadesk/internal/bizclock"
	"spadesk/internal/catalog"
	"spadesk/internal/db"
	"spadesk/internal/db/dbtest"
	"spadesk/internal/draftsync"
	"spadesk/internal/events"
	"spadesk/internal/model"
	"spadesk/internal/report"
	"spadesk/internal/roster"
	"spadesk/internal/schedule"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(catalog.File{
		Resources: []catalog.Resource{
			{ID: "HS1", Name: "Head Spa 1", Category: catalog.CategoryHeadSpa},
			{ID: "AR1", Name: "Aroma 1", Category: catalog.CategoryAromaRoom},
			{ID: "MS1", Name: "Seat 1", Category: catalog.CategoryMassageSeat},
			{ID: "MS2", Name: "Seat 2", Category: catalog.CategoryMassageSeat},
		},
		Services: []catalog.Service{
			{ID: 1, Name: "Thai Massage 60", Category: "Massage", Type: catalog.ServiceSingle, DurationMinutes: 60},
			{ID: 2, Name: "Aroma Oil 60", Category: "Aroma", Type: catalog.ServiceSingle, DurationMinutes: 60},
			{ID: 3, Name: "Massage + Head Spa 90", Type: catalog.ServiceCombo, DurationMinutes: 90, MassageMinutes: 60, HeadSpaMinutes: 30},
			{ID: 4, Name: "Head Spa 30", Category: "Head Spa", Type: catalog.ServiceSingle, DurationMinutes: 30},
		},
	})
	require.NoError(t, err)
	return c
}

type testEnv struct {
	db      *db.DB
	handler http.Handler
}

func newEnv(t *testing.T, limits Limits) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)
	d := dbtest.Open(t)
	c := testCatalog(t)
	bus := events.NewEventBus()

	now := func() time.Time {
		ts, _ := bizclock.At("2026-03-05", "09:00")
		return ts
	}
	deps := Deps{
		Catalog:      c,
		Bookings:     d,
		Schedule:     schedule.NewService(d, c, bus, 3, &logger),
		Sync:         draftsync.NewService(d, c, bus, draftsync.Options{Now: now}, &logger),
		Availability: availability.NewOverlay(d, availability.NewMemoryStore(), &logger),
		Roster:       roster.NewService(d, bus, logger),
		Reports:      report.NewGenerator(d, c, &logger),
	}
	return &testEnv{db: d, handler: NewHTTPServer(":0", deps, limits, &logger).Handler()}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("publish: %w", model.ErrConcurrentModification), http.StatusServiceUnavailable},
		{model.ErrResourceUnavailable, http.StatusConflict},
		{model.ErrComboLegConflict, http.StatusConflict},
		{model.ErrSyncMetaMissing, http.StatusConflict},
		{model.ErrBrokenCombo, http.StatusConflict},
		{model.ErrDraftEditForbidden, http.StatusForbidden},
		{fmt.Errorf("booking 7: %w", model.ErrNotFound), http.StatusNotFound},
		{model.ErrInvalidInput, http.StatusBadRequest},
		{model.ErrInvalidInterval, http.StatusBadRequest},
		{model.ErrUnknownService, http.StatusBadRequest},
		{model.ErrStaffNotAllowed, http.StatusBadRequest},
		{model.ErrInvalidTransition, http.StatusBadRequest},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestCreateBooking(t *testing.T) {
	env := newEnv(t, Limits{})

	rec := env.do(t, http.MethodPost, "/api/v1/bookings", map[string]any{
		"service_id": 1, "date": "2026-03-10", "time": "10:00", "client_name": "Ann",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[model.Booking](t, rec)
	assert.Equal(t, "MS1", first.ResourceID)
	assert.Equal(t, model.StatusConfirmed, first.Status)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d", first.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ann", decode[model.Booking](t, rec).ClientName)

	rec = env.do(t, http.MethodPost, "/api/v1/bookings", map[string]any{
		"service_id": 1, "date": "2026-03-10", "time": "10:30", "client_name": "Ben",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "MS2", decode[model.Booking](t, rec).ResourceID)

	rec = env.do(t, http.MethodPost, "/api/v1/bookings", map[string]any{
		"service_id": 1, "date": "2026-03-10", "time": "10:45", "client_name": "Cat",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/grid?date=2026-03-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	grid := decode[struct {
		Resources []schedule.GridRow `json:"resources"`
	}](t, rec)
	require.Len(t, grid.Resources, 4)
	assert.Len(t, grid.Resources[2].Bookings, 1)
}

func TestCreateBooking_BadRequests(t *testing.T) {
	env := newEnv(t, Limits{})

	tests := []struct {
		name string
		body any
		want int
	}{
		{"unknown field", map[string]any{"service_id": 1, "colour": "red"}, http.StatusBadRequest},
		{"bad time", map[string]any{"service_id": 1, "date": "2026-03-10", "time": "25:00"}, http.StatusBadRequest},
		{"unknown service", map[string]any{"service_id": 99, "date": "2026-03-10", "time": "10:00"}, http.StatusBadRequest},
		{"combo on single endpoint", map[string]any{"service_id": 3, "date": "2026-03-10", "time": "10:00"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/bookings", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Contains(t, decode[map[string]string](t, rec), "error")
		})
	}

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/bookings/999", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/bookings/abc", nil).Code)
}

func TestCreateCombo(t *testing.T) {
	env := newEnv(t, Limits{})

	rec := env.do(t, http.MethodPost, "/api/v1/combos", map[string]any{
		"service_id": 3, "date": "2026-03-10", "time": "10:00", "client_name": "Dan",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	pair := decode[model.ComboPair](t, rec)
	assert.Equal(t, "MS1", pair.Primary.ResourceID)
	assert.Equal(t, "HS1", pair.Addon.ResourceID)
	assert.Equal(t, pair.Primary.ComboLinkID, pair.Addon.ComboLinkID)

	rec = env.do(t, http.MethodPost, "/api/v1/combos", map[string]any{
		"service_id": 3, "date": "2026-03-10", "time": "10:00", "client_name": "Eve",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/combos/"+pair.Primary.ComboLinkID+"/move", map[string]any{
		"date": "2026-03-10", "time": "13:00",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	moved := decode[model.ComboPair](t, rec)
	assert.Equal(t, "13:00", bizclock.FormatClock(moved.Primary.StartAt))
	assert.Equal(t, "14:00", bizclock.FormatClock(moved.Addon.StartAt))
}

func TestImportPublishFlow(t *testing.T) {
	env := newEnv(t, Limits{})

	rec := env.do(t, http.MethodPost, "/api/v1/sync/2026-03/import", map[string]any{
		"rows": []draftsync.Row{
			{Line: 2, Date: "2026-03-10", Time: "10:00", ClientName: "Ann", Services: [2]string{"Thai Massage 60"}},
			{Line: 3, Date: "2026-03-10", Time: "11:00", ClientName: "Bob", Services: [2]string{"Pedicure"}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	imported := decode[draftsync.ImportResult](t, rec)
	assert.Equal(t, 1, imported.Drafted)
	require.Len(t, imported.Skipped, 1)
	assert.Equal(t, 3, imported.Skipped[0].Line)

	rec = env.do(t, http.MethodGet, "/api/v1/sync/2026-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[draftsync.StatusReport](t, rec)
	assert.Equal(t, model.SyncDrafting, status.State)
	assert.Equal(t, 1, status.Drafts)

	rec = env.do(t, http.MethodGet, "/api/v1/sync/2026-03/drafts", nil)
	drafts := decode[[]model.Booking](t, rec)
	require.Len(t, drafts, 1)

	rec = env.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/drafts/%d", drafts[0].ID), map[string]any{
		"date": "2026-03-10", "time": "15:00",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	edited := decode[[]model.Booking](t, rec)
	require.Len(t, edited, 1)
	assert.True(t, edited[0].IsLocked)

	rec = env.do(t, http.MethodPost, "/api/v1/sync/2026-03/publish", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decode[draftsync.PublishResult](t, rec).Promoted)

	rec = env.do(t, http.MethodGet, "/api/v1/grid?date=2026-03-10", nil)
	grid := decode[struct {
		Resources []schedule.GridRow `json:"resources"`
	}](t, rec)
	assert.Len(t, grid.Resources[2].Bookings, 1)

	// The published row is live now and no longer editable as a draft.
	rec = env.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/drafts/%d", drafts[0].ID), map[string]any{"client_name": "Zed"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestImportWorkbookUpload(t *testing.T) {
	env := newEnv(t, Limits{})

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Date", "Time", "Client", "Service 1", "Service 2", "Minutes 1", "Minutes 2", "Staff 1", "Staff 2", "Order"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"2026-03-12", "14:00", "Kim", "Aroma Oil 60"}))
	var wb bytes.Buffer
	require.NoError(t, f.Write(&wb))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "march.xlsx")
	require.NoError(t, err)
	_, err = part.Write(wb.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/2026-03/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[draftsync.ImportResult](t, rec)
	assert.Equal(t, 1, result.Drafted)
}

func TestImportFromSheetsNotConfigured(t *testing.T) {
	env := newEnv(t, Limits{})
	rec := env.do(t, http.MethodPost, "/api/v1/sync/2026-03/import?source=sheets", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDiscardAndBadScope(t *testing.T) {
	env := newEnv(t, Limits{})

	rec := env.do(t, http.MethodPost, "/api/v1/sync/2026-03/import", map[string]any{
		"rows": []draftsync.Row{{Line: 2, Date: "2026-03-10", Time: "10:00", ClientName: "Ann", Services: [2]string{"Thai Massage 60"}}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/v1/sync/2026-03/discard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[draftsync.DiscardResult](t, rec).Deleted)

	rec = env.do(t, http.MethodGet, "/api/v1/sync/2026-03", nil)
	assert.Equal(t, model.SyncIdle, decode[draftsync.StatusReport](t, rec).State)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/sync/2026-13", nil).Code)
}

func TestStaffShiftsAndToggle(t *testing.T) {
	env := newEnv(t, Limits{})

	rec := env.do(t, http.MethodPost, "/api/v1/staff", map[string]any{"name": "Mai"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	mai := decode[model.Staff](t, rec)

	rec = env.do(t, http.MethodPost, "/api/v1/availability/toggle", map[string]any{
		"staff_id": mai.ID, "date": "2026-03-10",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, availability.Online, decode[availability.Effective](t, rec).State)

	rec = env.do(t, http.MethodPut, "/api/v1/shifts", map[string]any{
		"staff_id": mai.ID, "date": "2026-03-10", "status": "AL",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	online := true
	rec = env.do(t, http.MethodPost, "/api/v1/availability/toggle", map[string]any{
		"staff_id": mai.ID, "date": "2026-03-10", "online": online,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	eff := decode[availability.Effective](t, rec)
	assert.Equal(t, availability.ForcedOff, eff.State)
	assert.Equal(t, model.ShiftAL, eff.Reason)

	rec = env.do(t, http.MethodGet, "/api/v1/shifts?scope=2026-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Shift](t, rec), 1)

	rec = env.do(t, http.MethodPost, "/api/v1/availability/toggle", map[string]any{"staff_id": 999, "date": "2026-03-10"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/staff/%d", mai.ID), nil).Code)
	rec = env.do(t, http.MethodGet, "/api/v1/staff", nil)
	assert.Empty(t, decode[[]model.Staff](t, rec))
}

func TestMonthlyReportDownload(t *testing.T) {
	env := newEnv(t, Limits{})
	rec := env.do(t, http.MethodPost, "/api/v1/bookings", map[string]any{
		"service_id": 2, "date": "2026-03-10", "time": "10:00", "client_name": "Ann",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/reports/2026-03", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, xlsxMediaType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "spadesk_2026-03.xlsx")

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Bookings")
}

func TestRateLimit(t *testing.T) {
	env := newEnv(t, Limits{RPS: 1, Burst: 1})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/catalog", nil).Code)
	rec := env.do(t, http.MethodGet, "/api/v1/catalog", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestFail_ConcurrentModificationIsRetryable(t *testing.T) {
	logger := zerolog.Nop()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/2026-03/publish", nil)
	(&HTTPServer{logger: &logger}).fail(rec, req, fmt.Errorf("publish: %w", model.ErrConcurrentModification))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
