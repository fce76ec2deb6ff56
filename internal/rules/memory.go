package rules

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/backoffice/internal/mapping"
)

// MemoryStore keeps rules in process memory. It backs offline batch runs
// driven by a YAML rule file, and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	basic    map[int64]mapping.MappingRule
	advanced map[int64]mapping.AdvancedRule
	nextID   int64
	now      func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		basic:    make(map[int64]mapping.MappingRule),
		advanced: make(map[int64]mapping.AdvancedRule),
		now:      time.Now,
	}
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

// ----------------------------------------------------------------------------
// Basic rules
// ----------------------------------------------------------------------------

func (m *MemoryStore) BasicRules(_ context.Context, supplier string) ([]mapping.MappingRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]mapping.MappingRule, 0)
	for _, r := range m.basic {
		if supplier == "" || r.Supplier == supplier {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Supplier != out[j].Supplier {
			return out[i].Supplier < out[j].Supplier
		}
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) BasicRule(_ context.Context, id int64) (mapping.MappingRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.basic[id]
	if !ok {
		return mapping.MappingRule{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) Suppliers(_ context.Context) ([]SupplierSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int64)
	for _, r := range m.basic {
		counts[r.Supplier]++
	}
	out := make([]SupplierSummary, 0, len(counts))
	for s, n := range counts {
		out = append(out, SupplierSummary{Supplier: s, RuleCount: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Supplier < out[j].Supplier })
	return out, nil
}

func (m *MemoryStore) ReplaceBasicRules(_ context.Context, supplier string, rules []mapping.MappingRule) ([]mapping.MappingRule, error) {
	normalized, err := normalizeReplacement(supplier, rules)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, r := range m.basic {
		if r.Supplier == supplier {
			delete(m.basic, id)
		}
	}
	now := m.now()
	for i := range normalized {
		normalized[i].ID = m.id()
		normalized[i].CreatedAt = now
		normalized[i].UpdatedAt = now
		m.basic[normalized[i].ID] = normalized[i]
	}
	return normalized, nil
}

func (m *MemoryStore) SaveBasicRule(_ context.Context, rule mapping.MappingRule) (mapping.MappingRule, error) {
	if err := rule.Validate(); err != nil {
		return mapping.MappingRule{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.basic[rule.ID]
	if !ok {
		return mapping.MappingRule{}, ErrNotFound
	}
	rule.Supplier = existing.Supplier
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = m.now()
	m.basic[rule.ID] = rule
	return rule, nil
}

func (m *MemoryStore) DeleteBasicRule(_ context.Context, id int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.basic[id]
	if !ok {
		return "", ErrNotFound
	}
	delete(m.basic, id)
	return r.Supplier, nil
}

// ----------------------------------------------------------------------------
// Advanced rules
// ----------------------------------------------------------------------------

func (m *MemoryStore) AdvancedRules(_ context.Context, supplier string) ([]mapping.AdvancedRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]mapping.AdvancedRule, 0)
	for _, r := range m.advanced {
		if r.Supplier == supplier && r.IsActive {
			out = append(out, r)
		}
	}
	mapping.SortAdvanced(out)
	return out, nil
}

func (m *MemoryStore) AdvancedRule(_ context.Context, id int64) (mapping.AdvancedRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.advanced[id]
	if !ok {
		return mapping.AdvancedRule{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) CreateAdvancedRule(_ context.Context, rule mapping.AdvancedRule) (mapping.AdvancedRule, error) {
	if err := rule.Validate(); err != nil {
		return mapping.AdvancedRule{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rule.ID = m.id()
	rule.CreatedAt = m.now()
	rule.UpdatedAt = rule.CreatedAt
	m.advanced[rule.ID] = rule
	return rule, nil
}

func (m *MemoryStore) SaveAdvancedRule(_ context.Context, rule mapping.AdvancedRule) (mapping.AdvancedRule, error) {
	if err := rule.Validate(); err != nil {
		return mapping.AdvancedRule{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.advanced[rule.ID]
	if !ok {
		return mapping.AdvancedRule{}, ErrNotFound
	}
	rule.Supplier = existing.Supplier
	rule.RuleType = existing.RuleType
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = m.now()
	m.advanced[rule.ID] = rule
	return rule, nil
}

func (m *MemoryStore) DeactivateAdvancedRule(_ context.Context, id int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.advanced[id]
	if !ok {
		return "", ErrNotFound
	}
	r.IsActive = false
	r.UpdatedAt = m.now()
	m.advanced[id] = r
	return r.Supplier, nil
}
