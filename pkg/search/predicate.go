package search

import (
	"fmt"
	"strings"
)

// Predicate is a WHERE-clause fragment for an attribute search
type Predicate struct {
	// SQL holds one placeholder per bind key, in BindKeys order
	SQL string
	// BindKeys are the attribute keys whose values fill the placeholders
	BindKeys []string
}

// Placeholders returns the number of placeholders in the predicate
func (p Predicate) Placeholders() int {
	return len(p.BindKeys)
}

// BuildPredicate assembles the attribute predicate in attribute order.
// Values are never part of the fragment; they are bound by Bind.
func BuildPredicate(attrs Attributes, keys *KeyResolver) (Predicate, error) {
	if len(attrs) == 0 {
		return Predicate{}, newValidationError("attributes", "at least one attribute is required")
	}
	if keys == nil {
		keys = DefaultKeyResolver()
	}

	seen := make(map[string]bool, len(attrs))
	conditions := make([]string, 0, len(attrs))
	bindKeys := make([]string, 0, len(attrs))

	for _, attr := range attrs {
		target, err := keys.resolve(attr.Key)
		if err != nil {
			return Predicate{}, err
		}

		folded := strings.ToLower(attr.Key)
		if seen[folded] {
			return Predicate{}, newValidationError("attributes", fmt.Sprintf("duplicate attribute key %q", attr.Key))
		}
		seen[folded] = true

		conditions = append(conditions, target.condition())
		bindKeys = append(bindKeys, attr.Key)
	}

	return Predicate{
		SQL:      strings.Join(conditions, " AND "),
		BindKeys: bindKeys,
	}, nil
}
