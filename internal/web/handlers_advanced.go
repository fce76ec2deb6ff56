package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/JonMunkholm/backoffice/internal/core"
	"github.com/JonMunkholm/backoffice/internal/mapping"
)

// ============================================================================
// Advanced mapping rules
// ============================================================================

func (s *Server) handleListAdvancedRules(w http.ResponseWriter, r *http.Request) {
	supplier := strings.TrimSpace(r.URL.Query().Get("supplier"))
	if supplier == "" {
		s.respondError(w, r, fmt.Errorf("%w: supplier is required", errBadRequest))
		return
	}
	list, err := s.service.ListAdvancedRules(r.Context(), supplier)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[mapping.AdvancedRule]{Data: list})
}

func (s *Server) handleGetAdvancedRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	rule, err := s.service.GetAdvancedRule(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// Create request bodies carry the shared header fields next to the
// type-specific ones.
type (
	valueMappingRequest struct {
		core.AdvancedRuleHeader
		Mappings mapping.ValueMappingPayload `json:"mappings"`
	}
	conditionalSkipRequest struct {
		core.AdvancedRuleHeader
		Conditions mapping.ConditionalSkipPayload `json:"conditions"`
	}
	calculationRequest struct {
		core.AdvancedRuleHeader
		mapping.CalculationPayload
	}
	textTransformRequest struct {
		core.AdvancedRuleHeader
		mapping.TextTransformPayload
	}
)

func (s *Server) handleCreateValueMapping(w http.ResponseWriter, r *http.Request) {
	var req valueMappingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	rule, err := s.service.CreateValueMapping(r.Context(), req.AdvancedRuleHeader, req.Mappings)
	s.respondCreated(w, r, rule, err)
}

func (s *Server) handleCreateConditionalSkip(w http.ResponseWriter, r *http.Request) {
	var req conditionalSkipRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	rule, err := s.service.CreateConditionalSkip(r.Context(), req.AdvancedRuleHeader, req.Conditions)
	s.respondCreated(w, r, rule, err)
}

func (s *Server) handleCreateCalculation(w http.ResponseWriter, r *http.Request) {
	var req calculationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	rule, err := s.service.CreateCalculation(r.Context(), req.AdvancedRuleHeader, req.CalculationPayload)
	s.respondCreated(w, r, rule, err)
}

func (s *Server) handleCreateTextTransform(w http.ResponseWriter, r *http.Request) {
	var req textTransformRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	rule, err := s.service.CreateTextTransform(r.Context(), req.AdvancedRuleHeader, req.TextTransformPayload)
	s.respondCreated(w, r, rule, err)
}

func (s *Server) respondCreated(w http.ResponseWriter, r *http.Request, rule mapping.AdvancedRule, err error) {
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleUpdateAdvancedRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var patch core.AdvancedRulePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		s.respondError(w, r, err)
		return
	}
	rule, err := s.service.UpdateAdvancedRule(r.Context(), id, patch)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleDeleteAdvancedRule deactivates the rule; it stays readable by id.
func (s *Server) handleDeleteAdvancedRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.service.DeleteAdvancedRule(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTestAdvanced(w http.ResponseWriter, r *http.Request) {
	var req sampleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	res, err := s.service.TestAdvanced(r.Context(), req.Supplier, req.SampleData)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
