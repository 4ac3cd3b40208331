package bigquery

import (
	"context"
	"fmt"

	"google.golang.org/api/iterator"

	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/store"
)

// RuleRow mirrors the category_rules table schema.
type RuleRow struct {
	Priority   int64  `bigquery:"priority"`
	Keyword    string `bigquery:"keyword"`
	CategoryID int64  `bigquery:"category_id"`
}

// ListRules implements store.RuleRepository.
func (s *Store) ListRules(ctx context.Context) ([]store.CategoryRule, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT priority, keyword, category_id FROM %s ORDER BY priority
	`, s.table(categoryRulesTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRules: query read: %w", err)
	}

	var rules []store.CategoryRule
	for {
		var row RuleRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRules: iterate: %w", err)
		}
		rules = append(rules, store.CategoryRule{
			Priority:   int(row.Priority),
			Keyword:    row.Keyword,
			CategoryID: row.CategoryID,
		})
	}
	return rules, nil
}
