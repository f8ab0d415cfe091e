package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"holidaylet/internal/apperr"
	"holidaylet/internal/importer"
	"holidaylet/shared/access"
	"holidaylet/shared/audit"
)

const maxUploadSize = 10 << 20

// ImportRequest is the JSON body of POST /api/import. Unknown row keys are
// ignored so spreadsheets exported with extra columns can be posted as is.
type ImportRequest struct {
	Mode string         `json:"mode"` // "skip" (default) or "strict"
	Rows []importer.Row `json:"rows"`
}

// handleImport imports bookings from JSON rows or an uploaded CSV/XLSX file.
// POST /api/import
func (s *HTTPServer) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}
	if !requireOwner(w, r) {
		return
	}
	if s.importer == nil {
		writeError(w, http.StatusServiceUnavailable, "import is not available")
		return
	}

	var (
		rows []importer.Row
		mode string
		err  error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		rows, mode, err = readUpload(w, r)
	} else {
		var req ImportRequest
		if derr := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadSize)).Decode(&req); derr != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		rows, mode = req.Rows, req.Mode
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	res, err := s.importer.Import(r.Context(), access.ActorFrom(r.Context()), rows, importer.ParseMode(mode))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// readUpload reads the "file" part as XLSX when its name ends in .xlsx and
// as CSV otherwise.
func readUpload(w http.ResponseWriter, r *http.Request) ([]importer.Row, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, "", apperr.Invalid("file", "invalid upload: %v", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", apperr.Invalid("file", "file is required")
	}
	defer file.Close()

	var rows []importer.Row
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".xlsx":
		rows, err = importer.ReadXLSX(file)
	default:
		rows, err = importer.ReadCSV(file)
	}
	if err != nil {
		return nil, "", err
	}
	return rows, r.FormValue("mode"), nil
}

// handleExport streams the bookings and rates workbook.
// GET /api/export
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !requireOwner(w, r) {
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "export is not available")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", audit.GenerateFilename(time.Now().In(s.loc))))
	if err := s.exporter.Export(r.Context(), w); err != nil {
		// the workbook is written in one piece at the end, so a failure
		// normally leaves the response untouched
		w.Header().Del("Content-Disposition")
		s.writeServiceError(w, r, err)
	}
}
