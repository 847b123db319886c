package search

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// AttributeKey names a searchable attribute
type AttributeKey string

const (
	KeyTag         AttributeKey = "tag"
	KeySubcontext  AttributeKey = "subcontext"
	KeyName        AttributeKey = "name"
	KeyProvider    AttributeKey = "provider"
	KeyVersion     AttributeKey = "version"
	KeyContext     AttributeKey = "context"
	KeyDescription AttributeKey = "description"
)

// attributeTarget is the backing table/column pair of an attribute key
type attributeTarget struct {
	// column is compared as LOWER(column) LIKE ?
	column string
	// subquery wraps the comparison (%s) for keys stored outside AM_API
	subquery string
}

// attributeTargets is the complete set of built-in searchable attributes.
// Keys not listed here (or added through NewKeyResolver) are rejected.
var attributeTargets = map[AttributeKey]attributeTarget{
	KeyTag: {
		column:   "NAME",
		subquery: "API.UUID IN (SELECT API_ID FROM AM_API_TAG_MAPPING WHERE TAG_ID IN (SELECT TAG_ID FROM AM_TAGS WHERE %s))",
	},
	KeySubcontext: {
		column:   "URL_PATTERN",
		subquery: "API.UUID IN (SELECT API_ID FROM AM_API_OPERATION_MAPPING WHERE %s)",
	},
	KeyName:        {column: "API.NAME"},
	KeyProvider:    {column: "API.PROVIDER"},
	KeyVersion:     {column: "API.VERSION"},
	KeyContext:     {column: "API.CONTEXT"},
	KeyDescription: {column: "API.DESCRIPTION"},
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

// ValidIdentifier reports whether s is safe to interpolate as a key or column name
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// condition renders the WHERE fragment for the target with a single placeholder
func (t attributeTarget) condition() string {
	cond := fmt.Sprintf("LOWER(%s) LIKE ?", t.column)
	if t.subquery == "" {
		return cond
	}
	return fmt.Sprintf(t.subquery, cond)
}

// KeyResolver maps attribute keys to catalog columns
type KeyResolver struct {
	targets map[AttributeKey]attributeTarget
}

// NewKeyResolver creates a resolver over the built-in keys plus extra AM_API
// columns keyed by attribute name. Extra keys and columns must be identifiers
// and must not shadow a built-in key.
func NewKeyResolver(extraColumns map[string]string) (*KeyResolver, error) {
	targets := make(map[AttributeKey]attributeTarget, len(attributeTargets)+len(extraColumns))
	for k, v := range attributeTargets {
		targets[k] = v
	}

	for key, column := range extraColumns {
		if !ValidIdentifier(key) {
			return nil, fmt.Errorf("invalid attribute key %q", key)
		}
		if !ValidIdentifier(column) {
			return nil, fmt.Errorf("invalid column %q for attribute key %q", column, key)
		}
		k := AttributeKey(strings.ToLower(key))
		if _, exists := attributeTargets[k]; exists {
			return nil, fmt.Errorf("attribute key %q is built in", key)
		}
		if !strings.Contains(column, ".") {
			column = "API." + column
		}
		targets[k] = attributeTarget{column: column}
	}

	return &KeyResolver{targets: targets}, nil
}

// DefaultKeyResolver resolves only the built-in keys
func DefaultKeyResolver() *KeyResolver {
	return &KeyResolver{targets: attributeTargets}
}

// resolve returns the target for key or a ValidationError
func (r *KeyResolver) resolve(key string) (attributeTarget, error) {
	if !ValidIdentifier(key) {
		return attributeTarget{}, newValidationError("attributes", fmt.Sprintf("attribute key %q contains invalid characters", key))
	}
	target, ok := r.targets[AttributeKey(strings.ToLower(key))]
	if !ok {
		return attributeTarget{}, newValidationError("attributes", fmt.Sprintf("unknown attribute key %q", key))
	}
	return target, nil
}

// Keys returns the searchable attribute keys, sorted
func (r *KeyResolver) Keys() []string {
	keys := make([]string, 0, len(r.targets))
	for k := range r.targets {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	return keys
}
