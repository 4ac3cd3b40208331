package classify

import (
	"context"

	"github.com/rs/zerolog"
)

// Classifier resolves a free-text description to a category id. Classify is
// total: for any input, including the empty string, it returns exactly one
// valid category id and never returns an error. Resolution order is
// rules, cache, external resolver, default.
type Classifier struct {
	rules     *RuleSet
	cache     Cache
	resolver  Resolver // nil disables the external fallback
	defaultID int64
	log       zerolog.Logger
}

// NewClassifier wires a classifier. resolver may be nil, in which case
// unmatched descriptions go straight to the default category.
func NewClassifier(rules *RuleSet, cache Cache, resolver Resolver, defaultID int64, log zerolog.Logger) *Classifier {
	return &Classifier{
		rules:     rules,
		cache:     cache,
		resolver:  resolver,
		defaultID: defaultID,
		log:       log,
	}
}

// DefaultCategoryID returns the deterministic fallback category.
func (c *Classifier) DefaultCategoryID() int64 { return c.defaultID }

// Classify resolves one description. All external failures are logged and
// degraded; they never reach the caller.
func (c *Classifier) Classify(ctx context.Context, description string) int64 {
	normalized := Normalize(description)
	if normalized == "" {
		return c.defaultID
	}

	table := c.rules.Table()
	if id, ok := table.Match(normalized); ok {
		return id
	}

	if id, ok, err := c.cache.Get(ctx, normalized); err != nil {
		// Advisory cache: an error is just a miss.
		c.log.Warn().Err(err).Str("description", normalized).Msg("Classification cache lookup failed")
	} else if ok {
		return id
	}

	if c.resolver == nil {
		return c.defaultID
	}

	label, err := c.resolver.ResolveLabel(ctx, description)
	if err != nil {
		c.log.Warn().Err(err).Str("description", normalized).Msg("External resolution failed, using default category")
		return c.defaultID
	}

	id, ok := table.Match(Normalize(label))
	if !ok {
		c.log.Debug().Str("description", normalized).Str("label", label).Msg("Resolved label matched no rule, using default category")
		return c.defaultID
	}

	// Cache writes happen only on successful external resolution.
	if err := c.cache.Set(ctx, normalized, id); err != nil {
		c.log.Warn().Err(err).Str("description", normalized).Msg("Classification cache write failed")
	}
	return id
}

// ClassifyAll resolves a set of distinct descriptions in one pass and
// returns description -> category id. Duplicate descriptions share one
// resolution.
func (c *Classifier) ClassifyAll(ctx context.Context, descriptions []string) map[string]int64 {
	result := make(map[string]int64, len(descriptions))
	for _, desc := range descriptions {
		if _, done := result[desc]; done {
			continue
		}
		result[desc] = c.Classify(ctx, desc)
	}
	return result
}
