// Package rules stores supplier mapping rules.
//
// [Store] is the persistence-agnostic interface the rest of the application
// uses. [PGStore] keeps rules in PostgreSQL, [MemoryStore] keeps them in
// memory (optionally loaded from a YAML file), and [Cache] decorates any
// Store with per-supplier snapshots that are invalidated on every mutation.
package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/backoffice/internal/mapping"
)

var (
	// ErrNotFound is returned when a rule id or supplier has no rules.
	ErrNotFound = errors.New("rule not found")

	// ErrInvalidRule is returned when a rule fails validation.
	ErrInvalidRule = mapping.ErrInvalidRule
)

// SupplierSummary is one row of the supplier list.
type SupplierSummary struct {
	Supplier  string `json:"supplier"`
	RuleCount int64  `json:"rule_count"`
}

// Store persists basic and advanced rules.
type Store interface {
	// BasicRules returns rules for supplier ordered by priority and id, or
	// every supplier's rules when supplier is empty.
	BasicRules(ctx context.Context, supplier string) ([]mapping.MappingRule, error)
	BasicRule(ctx context.Context, id int64) (mapping.MappingRule, error)
	Suppliers(ctx context.Context) ([]SupplierSummary, error)
	// ReplaceBasicRules atomically swaps a supplier's whole rule set.
	ReplaceBasicRules(ctx context.Context, supplier string, rules []mapping.MappingRule) ([]mapping.MappingRule, error)
	SaveBasicRule(ctx context.Context, rule mapping.MappingRule) (mapping.MappingRule, error)
	// DeleteBasicRule removes a rule and returns the supplier it belonged to.
	DeleteBasicRule(ctx context.Context, id int64) (string, error)

	// AdvancedRules returns the active rules for supplier in application order.
	AdvancedRules(ctx context.Context, supplier string) ([]mapping.AdvancedRule, error)
	AdvancedRule(ctx context.Context, id int64) (mapping.AdvancedRule, error)
	CreateAdvancedRule(ctx context.Context, rule mapping.AdvancedRule) (mapping.AdvancedRule, error)
	SaveAdvancedRule(ctx context.Context, rule mapping.AdvancedRule) (mapping.AdvancedRule, error)
	// DeactivateAdvancedRule soft-deletes a rule and returns its supplier.
	DeactivateAdvancedRule(ctx context.Context, id int64) (string, error)
}

// Loader returns a supplier's complete rule snapshot.
type Loader interface {
	LoadRuleSet(ctx context.Context, supplier string) (mapping.RuleSet, error)
}

// Load returns the rule snapshot for supplier, using s's own loader when it
// has one.
func Load(ctx context.Context, s Store, supplier string) (mapping.RuleSet, error) {
	if l, ok := s.(Loader); ok {
		return l.LoadRuleSet(ctx, supplier)
	}
	return loadFromStore(ctx, s, supplier)
}

func loadFromStore(ctx context.Context, s Store, supplier string) (mapping.RuleSet, error) {
	basic, err := s.BasicRules(ctx, supplier)
	if err != nil {
		return mapping.RuleSet{}, err
	}
	advanced, err := s.AdvancedRules(ctx, supplier)
	if err != nil {
		return mapping.RuleSet{}, err
	}
	return mapping.NewRuleSet(supplier, basic, advanced), nil
}

// normalizeReplacement assigns the supplier and default priorities to a
// replacement set and validates every rule. A rule without a priority gets its
// 1-based position.
func normalizeReplacement(supplier string, in []mapping.MappingRule) ([]mapping.MappingRule, error) {
	if supplier == "" {
		return nil, fmt.Errorf("%w: supplier is required", ErrInvalidRule)
	}
	out := make([]mapping.MappingRule, len(in))
	for i, r := range in {
		r.ID = 0
		r.Supplier = supplier
		if r.Priority == 0 {
			r.Priority = i + 1
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		out[i] = r
	}
	return out, nil
}
