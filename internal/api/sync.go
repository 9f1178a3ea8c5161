package api

import (
	"fmt"
	"mime"
	"net/http"

	"spadesk/internal/draftsync"
	"spadesk/internal/importer"
	"spadesk/internal/model"
)

const xlsxMediaType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *HTTPServer) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	scope, err := pathScope(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	report, err := s.deps.Sync.Status(r.Context(), scope)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleImport drafts a month from one of three inputs: a JSON {"rows": [...]} body,
// an xlsx upload (raw body or multipart field "file"), or ?source=sheets with an optional &range=.
func (s *HTTPServer) handleImport(w http.ResponseWriter, r *http.Request) {
	scope, err := pathScope(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rows, err := s.importRows(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.deps.Sync.BeginImport(r.Context(), scope, rows)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) importRows(w http.ResponseWriter, r *http.Request) ([]draftsync.Row, error) {
	if r.URL.Query().Get("source") == "sheets" {
		if s.deps.Sheets == nil {
			return nil, fmt.Errorf("%w: google sheets import is not configured", model.ErrInvalidInput)
		}
		src := s.deps.Sheets
		if rng := r.URL.Query().Get("range"); rng != "" {
			src = src.WithRange(rng)
		}
		rows, err := src.Rows(r.Context())
		if err != nil {
			return nil, fmt.Errorf("sheets import: %w", err)
		}
		return rows, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case xlsxMediaType:
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		return s.readWorkbook(r, importer.NewXLSXSource(r.Body, r.URL.Query().Get("sheet")))
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("%w: missing file field: %v", model.ErrInvalidInput, err)
		}
		defer file.Close()
		return s.readWorkbook(r, importer.NewXLSXSource(file, r.FormValue("sheet")))
	default:
		var body struct {
			Rows []draftsync.Row `json:"rows"`
		}
		if err := decodeJSON(r, &body); err != nil {
			return nil, err
		}
		return body.Rows, nil
	}
}

func (s *HTTPServer) readWorkbook(r *http.Request, src importer.Source) ([]draftsync.Row, error) {
	rows, err := src.Rows(r.Context())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	return rows, nil
}

func (s *HTTPServer) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	scope, err := pathScope(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	drafts, err := s.deps.Sync.ListDrafts(r.Context(), scope)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if drafts == nil {
		drafts = []model.Booking{}
	}
	writeJSON(w, http.StatusOK, drafts)
}

func (s *HTTPServer) handlePublish(w http.ResponseWriter, r *http.Request) {
	scope, err := pathScope(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.deps.Sync.Publish(r.Context(), scope)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleDiscard(w http.ResponseWriter, r *http.Request) {
	scope, err := pathScope(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.deps.Sync.Discard(r.Context(), scope)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// draftPatchRequest takes date and time together; either both or neither.
type draftPatchRequest struct {
	Date       string  `json:"date,omitempty"`
	Time       string  `json:"time,omitempty"`
	ResourceID *string `json:"resource_id,omitempty"`
	StaffID    *int64  `json:"staff_id,omitempty"`
	ClientName *string `json:"client_name,omitempty"`
}

func (s *HTTPServer) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req draftPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	patch := draftsync.DraftPatch{ResourceID: req.ResourceID, StaffID: req.StaffID, ClientName: req.ClientName}
	if req.Date != "" || req.Time != "" {
		start, err := startAt(req.Date, req.Time)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		patch.StartAt = &start
	}
	rows, err := s.deps.Sync.UpdateDraft(r.Context(), id, patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *HTTPServer) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.deps.Sync.DeleteDraft(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
