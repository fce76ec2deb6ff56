package web

import (
	"bytes"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/backoffice/internal/core"
	"github.com/JonMunkholm/backoffice/internal/mapping"
	"github.com/JonMunkholm/backoffice/internal/rules"
	"github.com/JonMunkholm/backoffice/internal/web/templates"
)

// ============================================================================
// Basic mapping rules
// ============================================================================

func (s *Server) handleListBasicRules(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.ListBasicRules(r.Context(), r.URL.Query().Get("supplier"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[mapping.MappingRule]{Data: list})
}

func (s *Server) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.ListSuppliers(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[rules.SupplierSummary]{Data: list})
}

type replaceRulesRequest struct {
	Rules []mapping.MappingRule `json:"rules"`
}

// handleReplaceBasicRules replaces every basic rule of the supplier in the
// path with the submitted list.
func (s *Server) handleReplaceBasicRules(w http.ResponseWriter, r *http.Request) {
	var req replaceRulesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	saved, err := s.service.ReplaceBasicRules(r.Context(), chi.URLParam(r, "supplier"), req.Rules)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[mapping.MappingRule]{Data: saved})
}

func (s *Server) handleUpdateBasicRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var patch core.BasicRulePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		s.respondError(w, r, err)
		return
	}
	rule, err := s.service.UpdateBasicRule(r.Context(), id, patch)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteBasicRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.service.DeleteBasicRule(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExportBasicRules downloads rules as CSV or YAML. The export is
// buffered so a failure still gets a JSON error instead of a cut download.
func (s *Server) handleExportBasicRules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var buf bytes.Buffer
	name, err := s.service.ExportBasicRules(r.Context(), q.Get("supplier"), q.Get("format"), &buf)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	contentType := "text/csv; charset=utf-8"
	if strings.HasSuffix(name, "."+core.ExportYAML) {
		contentType = "application/yaml"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", fmt.Sprint(buf.Len()))
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleTestBasic(w http.ResponseWriter, r *http.Request) {
	var req sampleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	res, err := s.service.TestBasic(r.Context(), req.Supplier, req.SampleData)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleTestRules runs a sample through the whole pipeline. HTMX clients get
// the preview fragment.
func (s *Server) handleTestRules(w http.ResponseWriter, r *http.Request) {
	var req sampleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	res, err := s.service.TestRules(r.Context(), req.Supplier, req.SampleData)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if wantsHTML(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := templates.RuleTestPreview(res).Render(r.Context(), w); err != nil {
			slog.Error("render rule test preview", "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}
