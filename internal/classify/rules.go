package classify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/store"
)

// RuleTable is an immutable, ordered keyword-to-category table. A keyword
// matches when it is contained in the normalized description, or when the
// (short) description is contained in the keyword. The first matching rule
// wins, so evaluation is deterministic.
type RuleTable struct {
	Version int
	rules   []store.CategoryRule
}

// NewRuleTable builds a table from the given rules, ordered by priority.
// The input slice is copied; the table never changes after construction.
func NewRuleTable(version int, rules []store.CategoryRule) *RuleTable {
	ordered := append([]store.CategoryRule(nil), rules...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })
	return &RuleTable{Version: version, rules: ordered}
}

// Match scans the table in order and returns the category id of the first
// rule whose keyword matches the normalized description.
func (t *RuleTable) Match(normalized string) (int64, bool) {
	if normalized == "" {
		return 0, false
	}
	for _, rule := range t.rules {
		keyword := Normalize(rule.Keyword)
		if keyword == "" {
			continue
		}
		if strings.Contains(normalized, keyword) || strings.Contains(keyword, normalized) {
			return rule.CategoryID, true
		}
	}
	return 0, false
}

// Len returns the number of rules in the table.
func (t *RuleTable) Len() int { return len(t.rules) }

// RuleSet holds the active RuleTable and supports explicit versioned
// reloads. Readers always see a complete table; Reload swaps the pointer
// atomically and never mutates a published table in place.
type RuleSet struct {
	repo    store.RuleRepository
	current atomic.Pointer[RuleTable]
	version atomic.Int64
}

// NewRuleSet creates a RuleSet backed by the given repository. Load must be
// called before the set is used.
func NewRuleSet(repo store.RuleRepository) *RuleSet {
	return &RuleSet{repo: repo}
}

// Load reads the rule table from the repository and publishes it under a new
// version. It is also the reload operation: runtime rule changes require an
// explicit Load, there is no in-place mutation path.
func (s *RuleSet) Load(ctx context.Context) error {
	rules, err := s.repo.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("rule set load: %w", err)
	}
	version := int(s.version.Add(1))
	s.current.Store(NewRuleTable(version, rules))
	return nil
}

// Table returns the active table. It returns an empty table when Load has
// never succeeded, so callers degrade to the default category rather than
// dereferencing nil.
func (s *RuleSet) Table() *RuleTable {
	if t := s.current.Load(); t != nil {
		return t
	}
	return NewRuleTable(0, nil)
}
