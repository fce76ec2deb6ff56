package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/backoffice/internal/core"
	"github.com/JonMunkholm/backoffice/internal/logging"
)

// ============================================================================
// Imports
// ============================================================================

// handleImport parses an uploaded supplier file and imports it synchronously.
// A run that finished with row errors is still a 200; the result carries the
// counts and the logged errors.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	req, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.WithFields(r.Context(), "supplier", req.Supplier, "file", req.FileName).
		Info("import upload received", "file_type", req.FileType, "rows", len(req.Table.Rows))

	res, err := s.service.Import(withImportMetadata(r.Context(), r), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handlePreviewImport reports what importing the uploaded file would do
// without writing anything.
func (s *Server) handlePreviewImport(w http.ResponseWriter, r *http.Request) {
	req, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Import.Timeout)
	defer cancel()

	res, err := s.service.PreviewImport(ctx, req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ----------------------------------------------------------------------------
// History
// ----------------------------------------------------------------------------

func (s *Server) handleImportHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := s.service.ListImports(r.Context(), core.ImportQuery{
		Supplier:    q.Get("supplier"),
		Status:      core.ImportStatus(q.Get("status")),
		PageRequest: pageParams(r, core.DefaultPageSize),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	importNo, err := pathID(r, "importNo")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	rec, err := s.service.GetImport(r.Context(), importNo)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleImportErrors(w http.ResponseWriter, r *http.Request) {
	importNo, err := int64Param("import_no", r.URL.Query().Get("import_no"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	page, err := s.service.ListImportErrors(r.Context(), importNo, pageParams(r, core.DefaultErrorPageSize))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleDeleteImport removes a finished run with its error log and staging
// rows. Runs still processing are refused with 409.
func (s *Server) handleDeleteImport(w http.ResponseWriter, r *http.Request) {
	importNo, err := pathID(r, "importNo")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.service.DeleteImport(r.Context(), importNo); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleImportStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.ImportStatistics(r.Context(),
		r.URL.Query().Get("supplier"),
		parseIntParam(r, "days", core.DefaultStatsDays),
	)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
