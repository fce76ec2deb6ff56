package rules

// yamlfile.go reads and writes rule files.
//
// A rule file lets a batch run without database rule tables and is also the
// YAML export format:
//
//	suppliers:
//	  acme:
//	    basic:
//	      - file_field: part_number
//	        db_field: supplier_part_no
//	        type: string
//	    advanced:
//	      - rule_name: usd to jpy
//	        rule_type: calculation
//	        target_field: price
//	        conditions:
//	          formula: unit_price_usd * 150
//	          variables: [unit_price_usd]

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/backoffice/internal/mapping"
)

type ruleFile struct {
	Suppliers map[string]ruleFileSupplier `yaml:"suppliers"`
}

type ruleFileSupplier struct {
	Basic    []mapping.MappingRule `yaml:"basic,omitempty"`
	Advanced []ruleFileAdvanced    `yaml:"advanced,omitempty"`
}

type ruleFileAdvanced struct {
	RuleName    string    `yaml:"rule_name"`
	RuleType    string    `yaml:"rule_type"`
	SourceField string    `yaml:"source_field,omitempty"`
	TargetField string    `yaml:"target_field,omitempty"`
	Priority    int       `yaml:"priority,omitempty"`
	IsActive    *bool     `yaml:"is_active,omitempty"`
	Conditions  yaml.Node `yaml:"conditions"`
}

// LoadFile reads a YAML rule file into a new MemoryStore.
func LoadFile(path string) (*MemoryStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rule file: %w", err)
	}
	defer f.Close()

	store := NewMemoryStore()
	if err := store.LoadYAML(context.Background(), f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return store, nil
}

// LoadYAML adds the rules in r to the store. Each supplier's basic rules
// replace any it already had.
func (m *MemoryStore) LoadYAML(ctx context.Context, r io.Reader) error {
	var doc ruleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return fmt.Errorf("parse rule file: %w", err)
	}

	suppliers := make([]string, 0, len(doc.Suppliers))
	for s := range doc.Suppliers {
		suppliers = append(suppliers, s)
	}
	sort.Strings(suppliers)

	for _, supplier := range suppliers {
		entry := doc.Suppliers[supplier]

		if _, err := m.ReplaceBasicRules(ctx, supplier, entry.Basic); err != nil {
			return fmt.Errorf("supplier %s: %w", supplier, err)
		}

		for i, a := range entry.Advanced {
			rule, err := a.toRule(supplier)
			if err != nil {
				return fmt.Errorf("supplier %s advanced rule %d: %w", supplier, i+1, err)
			}
			if _, err := m.CreateAdvancedRule(ctx, rule); err != nil {
				return fmt.Errorf("supplier %s advanced rule %q: %w", supplier, a.RuleName, err)
			}
		}
	}
	return nil
}

func (a ruleFileAdvanced) toRule(supplier string) (mapping.AdvancedRule, error) {
	var raw any
	if err := a.Conditions.Decode(&raw); err != nil {
		return mapping.AdvancedRule{}, fmt.Errorf("conditions: %w", err)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return mapping.AdvancedRule{}, fmt.Errorf("conditions: %w", err)
	}
	ruleType := mapping.RuleType(a.RuleType)
	cond, err := mapping.DecodeConditions(ruleType, b)
	if err != nil {
		return mapping.AdvancedRule{}, err
	}

	priority := a.Priority
	if priority == 0 {
		priority = 1
	}
	active := true
	if a.IsActive != nil {
		active = *a.IsActive
	}

	return mapping.AdvancedRule{
		Supplier:    supplier,
		RuleName:    a.RuleName,
		RuleType:    ruleType,
		SourceField: a.SourceField,
		TargetField: a.TargetField,
		Conditions:  cond,
		Priority:    priority,
		IsActive:    active,
	}, nil
}

// WriteYAML writes one supplier's rules in rule-file format.
func WriteYAML(w io.Writer, set mapping.RuleSet) error {
	entry := ruleFileSupplier{
		Basic: make([]mapping.MappingRule, len(set.Basic)),
	}
	for i, r := range set.Basic {
		r.ID = 0
		r.Supplier = ""
		entry.Basic[i] = r
	}

	for _, r := range set.Advanced {
		b, err := json.Marshal(r.Conditions)
		if err != nil {
			return fmt.Errorf("encode conditions for %q: %w", r.RuleName, err)
		}
		var raw any
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}

		a := ruleFileAdvanced{
			RuleName:    r.RuleName,
			RuleType:    string(r.RuleType),
			SourceField: r.SourceField,
			TargetField: r.TargetField,
			Priority:    r.Priority,
		}
		if !r.IsActive {
			inactive := false
			a.IsActive = &inactive
		}
		if err := a.Conditions.Encode(raw); err != nil {
			return fmt.Errorf("encode conditions for %q: %w", r.RuleName, err)
		}
		entry.Advanced = append(entry.Advanced, a)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(ruleFile{Suppliers: map[string]ruleFileSupplier{set.Supplier: entry}}); err != nil {
		return fmt.Errorf("write yaml: %w", err)
	}
	return enc.Close()
}
