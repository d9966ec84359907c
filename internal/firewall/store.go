package firewall

import (
	"slices"
	"sync"
)

// RuleStore owns the ordered rule collection. Insertion order is evaluation
// order, so the earliest-added matching rule wins.
type RuleStore struct {
	mu     sync.RWMutex
	rules  []Rule
	nextID int
}

// NewRuleStore creates an empty store. Ids start at 1.
func NewRuleStore() *RuleStore {
	return &RuleStore{nextID: 1}
}

// Add validates a draft, assigns the next id and appends the rule.
// Ids are never reused, even after the highest rule is removed.
func (s *RuleStore) Add(d RuleDraft) (Rule, error) {
	rule, err := d.compile()
	if err != nil {
		return Rule{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rule.ID = s.nextID
	s.nextID++
	s.rules = append(s.rules, rule)
	return rule, nil
}

// Remove deletes the rule with the given id. It returns false, not an
// error, when no such rule exists.
func (s *RuleStore) Remove(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.rules, func(r Rule) bool { return r.ID == id })
	if i < 0 {
		return false
	}
	s.rules = slices.Delete(s.rules, i, i+1)
	return true
}

// Get returns the rule with the given id.
func (s *RuleStore) Get(id int) (Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.rules {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}

// List returns a copy of the rules in evaluation order.
func (s *RuleStore) List() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Len returns the number of rules.
func (s *RuleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}
