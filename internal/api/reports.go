package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"spadesk/internal/bizclock"
	"spadesk/internal/report"
)

func (s *HTTPServer) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	scope, err := pathScope(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := s.deps.Reports.Monthly(r.Context(), scope, &buf); err != nil {
		s.fail(w, r, err)
		return
	}
	parsed, _ := bizclock.ParseScope(scope)
	writeFile(w, report.Filename(parsed), &buf)
}

func (s *HTTPServer) handleTablesReport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.deps.Reports.Tables(r.Context(), &buf); err != nil {
		s.fail(w, r, err)
		return
	}
	writeFile(w, "spadesk_tables.xlsx", &buf)
}

func writeFile(w http.ResponseWriter, filename string, buf *bytes.Buffer) {
	w.Header().Set("Content-Type", xlsxMediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
