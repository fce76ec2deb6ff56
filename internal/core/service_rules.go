package core

// service_rules.go holds the rule management operations. Every mutation goes
// through the configured rules.Store; when that store is a rules.Cache the
// affected supplier's snapshot is dropped as part of the call.

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/JonMunkholm/backoffice/internal/mapping"
	"github.com/JonMunkholm/backoffice/internal/rules"
)

// ============================================================================
// Basic rules
// ============================================================================

// ListBasicRules returns a supplier's basic rules, or every rule when
// supplier is empty.
func (s *Service) ListBasicRules(ctx context.Context, supplier string) ([]mapping.MappingRule, error) {
	return s.rules.BasicRules(ctx, strings.TrimSpace(supplier))
}

// ListSuppliers returns every supplier with its basic rule count.
func (s *Service) ListSuppliers(ctx context.Context) ([]rules.SupplierSummary, error) {
	return s.rules.Suppliers(ctx)
}

// ReplaceBasicRules swaps a supplier's whole basic rule set.
func (s *Service) ReplaceBasicRules(ctx context.Context, supplier string, in []mapping.MappingRule) ([]mapping.MappingRule, error) {
	supplier = strings.TrimSpace(supplier)
	if supplier == "" {
		return nil, fmt.Errorf("%w: supplier is required", rules.ErrInvalidRule)
	}

	saved, err := s.rules.ReplaceBasicRules(ctx, supplier, in)
	if err != nil {
		return nil, err
	}
	s.logger.Info("basic rules replaced", "supplier", supplier, "rule_count", len(saved))
	s.warnUnknownTypes(saved...)
	return saved, nil
}

// warnUnknownTypes logs rules whose type coercion will pass values through
// unchanged. Such rules are accepted, but the type is most likely a typo.
func (s *Service) warnUnknownTypes(list ...mapping.MappingRule) {
	for _, r := range list {
		if !mapping.KnownType(r.Type) {
			s.logger.Warn("unknown rule type, values pass through uncoerced",
				"supplier", r.Supplier, "file_field", r.FileField, "type", r.Type)
		}
	}
}

// BasicRulePatch is a partial update of a basic rule. Nil fields are kept.
type BasicRulePatch struct {
	FileField  *string `json:"file_field"`
	DBField    *string `json:"db_field"`
	Type       *string `json:"type"`
	Condition  *string `json:"condition"`
	FixedValue *string `json:"fixed_value"`
	Priority   *int    `json:"priority"`
}

// UpdateBasicRule applies patch to the rule with id.
func (s *Service) UpdateBasicRule(ctx context.Context, id int64, patch BasicRulePatch) (mapping.MappingRule, error) {
	rule, err := s.rules.BasicRule(ctx, id)
	if err != nil {
		return mapping.MappingRule{}, err
	}

	setString(&rule.FileField, patch.FileField)
	setString(&rule.DBField, patch.DBField)
	setString(&rule.Type, patch.Type)
	setString(&rule.Condition, patch.Condition)
	setString(&rule.FixedValue, patch.FixedValue)
	if patch.Priority != nil {
		rule.Priority = *patch.Priority
	}
	if err := rule.Validate(); err != nil {
		return mapping.MappingRule{}, err
	}

	saved, err := s.rules.SaveBasicRule(ctx, rule)
	if err != nil {
		return mapping.MappingRule{}, err
	}
	s.warnUnknownTypes(saved)
	return saved, nil
}

// DeleteBasicRule removes one basic rule.
func (s *Service) DeleteBasicRule(ctx context.Context, id int64) error {
	supplier, err := s.rules.DeleteBasicRule(ctx, id)
	if err != nil {
		return err
	}
	s.logger.Info("basic rule deleted", "rule_id", id, "supplier", supplier)
	return nil
}

// Export formats.
const (
	ExportCSV  = "csv"
	ExportYAML = "yaml"
)

// ExportBasicRules writes a supplier's rules to w and returns the download
// file name. CSV carries the basic rules only (all suppliers when supplier is
// empty); YAML is a rule file with the supplier's basic and active advanced
// rules, loadable with --rules-file.
func (s *Service) ExportBasicRules(ctx context.Context, supplier, format string, w io.Writer) (string, error) {
	supplier = strings.TrimSpace(supplier)
	now := time.Now()

	switch strings.ToLower(format) {
	case "", ExportCSV:
		list, err := s.rules.BasicRules(ctx, supplier)
		if err != nil {
			return "", err
		}
		name := supplier
		if name == "" {
			name = "all"
		}
		return rules.ExportFileName(name, ExportCSV, now), rules.WriteCSV(w, list)

	case ExportYAML, "yml":
		if supplier == "" {
			return "", fmt.Errorf("%w: supplier is required for yaml export", rules.ErrInvalidRule)
		}
		set, err := rules.Load(ctx, s.rules, supplier)
		if err != nil {
			return "", err
		}
		return rules.ExportFileName(supplier, ExportYAML, now), rules.WriteYAML(w, set)

	default:
		return "", fmt.Errorf("%w: unknown export format %q", rules.ErrInvalidRule, format)
	}
}

// ============================================================================
// Advanced rules
// ============================================================================

// ListAdvancedRules returns a supplier's active advanced rules in the order
// they are applied.
func (s *Service) ListAdvancedRules(ctx context.Context, supplier string) ([]mapping.AdvancedRule, error) {
	return s.rules.AdvancedRules(ctx, strings.TrimSpace(supplier))
}

// GetAdvancedRule returns one advanced rule, active or not.
func (s *Service) GetAdvancedRule(ctx context.Context, id int64) (mapping.AdvancedRule, error) {
	return s.rules.AdvancedRule(ctx, id)
}

// AdvancedRuleHeader carries the fields every advanced rule type shares.
// Priority zero means the default of 1.
type AdvancedRuleHeader struct {
	Supplier    string `json:"supplier"`
	RuleName    string `json:"rule_name"`
	SourceField string `json:"source_field"`
	TargetField string `json:"target_field"`
	Priority    int    `json:"priority"`
}

// CreateValueMapping creates a value_mapping rule.
func (s *Service) CreateValueMapping(ctx context.Context, h AdvancedRuleHeader, mappings mapping.ValueMappingPayload) (mapping.AdvancedRule, error) {
	return s.createAdvanced(ctx, h, mappings)
}

// CreateConditionalSkip creates a conditional_skip rule.
func (s *Service) CreateConditionalSkip(ctx context.Context, h AdvancedRuleHeader, conditions mapping.ConditionalSkipPayload) (mapping.AdvancedRule, error) {
	return s.createAdvanced(ctx, h, conditions)
}

// CreateCalculation creates a calculation rule.
func (s *Service) CreateCalculation(ctx context.Context, h AdvancedRuleHeader, calc mapping.CalculationPayload) (mapping.AdvancedRule, error) {
	return s.createAdvanced(ctx, h, calc)
}

// CreateTextTransform creates a text_transform rule.
func (s *Service) CreateTextTransform(ctx context.Context, h AdvancedRuleHeader, t mapping.TextTransformPayload) (mapping.AdvancedRule, error) {
	return s.createAdvanced(ctx, h, t)
}

func (s *Service) createAdvanced(ctx context.Context, h AdvancedRuleHeader, p mapping.Payload) (mapping.AdvancedRule, error) {
	priority := h.Priority
	if priority == 0 {
		priority = 1
	}
	rule := mapping.AdvancedRule{
		Supplier:    strings.TrimSpace(h.Supplier),
		RuleName:    strings.TrimSpace(h.RuleName),
		RuleType:    p.RuleType(),
		SourceField: strings.TrimSpace(h.SourceField),
		TargetField: strings.TrimSpace(h.TargetField),
		Conditions:  p,
		Priority:    priority,
		IsActive:    true,
	}
	if err := rule.Validate(); err != nil {
		return mapping.AdvancedRule{}, err
	}

	created, err := s.rules.CreateAdvancedRule(ctx, rule)
	if err != nil {
		return mapping.AdvancedRule{}, err
	}
	s.logger.Info("advanced rule created",
		"rule_id", created.ID,
		"supplier", created.Supplier,
		"rule_type", created.RuleType,
	)
	return created, nil
}

// AdvancedRulePatch is a partial update of an advanced rule. Conditions are
// decoded against the rule's existing type; the type itself never changes.
type AdvancedRulePatch struct {
	RuleName    *string         `json:"rule_name"`
	SourceField *string         `json:"source_field"`
	TargetField *string         `json:"target_field"`
	Priority    *int            `json:"priority"`
	IsActive    *bool           `json:"is_active"`
	Conditions  json.RawMessage `json:"conditions"`
}

// UpdateAdvancedRule applies patch to the rule with id.
func (s *Service) UpdateAdvancedRule(ctx context.Context, id int64, patch AdvancedRulePatch) (mapping.AdvancedRule, error) {
	rule, err := s.rules.AdvancedRule(ctx, id)
	if err != nil {
		return mapping.AdvancedRule{}, err
	}

	setString(&rule.RuleName, patch.RuleName)
	setString(&rule.SourceField, patch.SourceField)
	setString(&rule.TargetField, patch.TargetField)
	if patch.Priority != nil {
		rule.Priority = *patch.Priority
	}
	if patch.IsActive != nil {
		rule.IsActive = *patch.IsActive
	}
	if len(patch.Conditions) > 0 && string(patch.Conditions) != "null" {
		p, err := mapping.DecodeConditions(rule.RuleType, patch.Conditions)
		if err != nil {
			return mapping.AdvancedRule{}, err
		}
		rule.Conditions = p
	}
	if err := rule.Validate(); err != nil {
		return mapping.AdvancedRule{}, err
	}

	return s.rules.SaveAdvancedRule(ctx, rule)
}

// DeleteAdvancedRule deactivates a rule. The row is kept.
func (s *Service) DeleteAdvancedRule(ctx context.Context, id int64) error {
	supplier, err := s.rules.DeactivateAdvancedRule(ctx, id)
	if err != nil {
		return err
	}
	s.logger.Info("advanced rule deactivated", "rule_id", id, "supplier", supplier)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}
