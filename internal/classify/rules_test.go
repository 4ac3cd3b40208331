package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/store"
)

func testRules() []store.CategoryRule {
	return []store.CategoryRule{
		{Priority: 1, Keyword: "starbucks", CategoryID: 1},
		{Priority: 2, Keyword: "coffee", CategoryID: 1},
		{Priority: 3, Keyword: "coffee bean roastery", CategoryID: 1},
		{Priority: 4, Keyword: "emart", CategoryID: 2},
		{Priority: 5, Keyword: "salary", CategoryID: 5},
	}
}

// mockRuleRepository returns a fixed rule set, and can be told to fail.
type mockRuleRepository struct {
	rules []store.CategoryRule
	err   error
	calls int
}

func (m *mockRuleRepository) ListRules(ctx context.Context) ([]store.CategoryRule, error) {
	m.calls++
	return m.rules, m.err
}

func TestRuleTableMatch(t *testing.T) {
	table := NewRuleTable(1, testRules())

	tests := []struct {
		name       string
		normalized string
		wantID     int64
		wantOK     bool
	}{
		{"keyword contained in description", "starbucks gangnam", 1, true},
		{"exact match", "emart", 2, true},
		{"short description contained in keyword", "coffee bean", 1, true},
		{"first match wins over later rules", "starbucks coffee", 1, true},
		{"no match", "kb card payment", 0, false},
		{"empty description", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := table.Match(tt.normalized)
			if id != tt.wantID || ok != tt.wantOK {
				t.Errorf("Match(%q) = (%d, %v), want (%d, %v)", tt.normalized, id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestRuleTableMatchDeterministic(t *testing.T) {
	table := NewRuleTable(1, testRules())
	first, _ := table.Match("starbucks coffee")
	for i := 0; i < 50; i++ {
		got, _ := table.Match("starbucks coffee")
		if got != first {
			t.Fatalf("Match is not deterministic: run %d got %d, first run got %d", i, got, first)
		}
	}
}

func TestRuleTableOrdering(t *testing.T) {
	// Priorities out of slice order; the table must sort them.
	rules := []store.CategoryRule{
		{Priority: 20, Keyword: "kb", CategoryID: 9},
		{Priority: 10, Keyword: "kb card", CategoryID: 3},
	}
	table := NewRuleTable(1, rules)

	id, ok := table.Match("kb card payment")
	if !ok || id != 3 {
		t.Errorf("Match = (%d, %v), want the lower-priority-number rule (3, true)", id, ok)
	}
}

func TestRuleSetLoadAndReload(t *testing.T) {
	repo := &mockRuleRepository{rules: testRules()}
	set := NewRuleSet(repo)

	if err := set.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	v1 := set.Table()
	if v1.Version != 1 || v1.Len() != 5 {
		t.Errorf("table v1: version=%d len=%d, want 1/5", v1.Version, v1.Len())
	}

	// Reload publishes a new version; the old table is untouched.
	repo.rules = testRules()[:2]
	if err := set.Load(context.Background()); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	v2 := set.Table()
	if v2.Version != 2 || v2.Len() != 2 {
		t.Errorf("table v2: version=%d len=%d, want 2/2", v2.Version, v2.Len())
	}
	if v1.Len() != 5 {
		t.Error("reload mutated the previously published table")
	}
}

func TestRuleSetLoadFailureKeepsOldTable(t *testing.T) {
	repo := &mockRuleRepository{rules: testRules()}
	set := NewRuleSet(repo)
	if err := set.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	repo.err = errors.New("backend down")
	if err := set.Load(context.Background()); err == nil {
		t.Fatal("expected reload error")
	}
	if set.Table().Len() != 5 {
		t.Error("failed reload must keep the previous table")
	}
}

func TestRuleSetUnloadedTableIsEmptyNotNil(t *testing.T) {
	set := NewRuleSet(&mockRuleRepository{})
	table := set.Table()
	if table == nil {
		t.Fatal("Table returned nil before Load")
	}
	if _, ok := table.Match("anything"); ok {
		t.Error("empty table matched something")
	}
}
