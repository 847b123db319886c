package search

import (
	"fmt"
	"strings"
)

// SearchType selects how a request is matched against the catalog
type SearchType string

const (
	TypeFullText  SearchType = "FULL_TEXT"
	TypeAttribute SearchType = "ATTRIBUTE"
)

// ParseSearchType parses a search type case-insensitively
func ParseSearchType(s string) (SearchType, error) {
	t := SearchType(strings.ToUpper(strings.TrimSpace(s)))
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

// Validate returns a ValidationError for unknown search types
func (t SearchType) Validate() error {
	switch t {
	case TypeFullText, TypeAttribute:
		return nil
	default:
		return newValidationError("type", fmt.Sprintf("unknown search type %q (must be FULL_TEXT or ATTRIBUTE)", string(t)))
	}
}

func (t SearchType) String() string {
	return string(t)
}

// Scope selects whose view of the catalog an attribute search uses
type Scope string

const (
	// ScopeStore is the consumer view: published APIs split by visibility
	ScopeStore Scope = "STORE"
	// ScopePublisher is the publisher view: APIs the caller's groups may manage
	// or that the caller provides, in any lifecycle state
	ScopePublisher Scope = "PUBLISHER"
)

// ParseScope parses a scope case-insensitively; empty means ScopeStore
func ParseScope(s string) (Scope, error) {
	scope := Scope(strings.ToUpper(strings.TrimSpace(s)))
	if scope == "" {
		return ScopeStore, nil
	}
	if err := scope.Validate(); err != nil {
		return "", err
	}
	return scope, nil
}

// Validate returns a ValidationError for unknown scopes
func (s Scope) Validate() error {
	switch s {
	case ScopeStore, ScopePublisher:
		return nil
	default:
		return newValidationError("scope", fmt.Sprintf("unknown search scope %q (must be STORE or PUBLISHER)", string(s)))
	}
}

// APIType is the catalog type name bound into full-text searches
type APIType string

const (
	APITypeStandard  APIType = "STANDARD"
	APITypeComposite APIType = "COMPOSITE"
)

// Validate returns a ValidationError for unknown API types
func (t APIType) Validate() error {
	switch t {
	case APITypeStandard, APITypeComposite:
		return nil
	default:
		return newValidationError("api_type", fmt.Sprintf("unknown API type %q", string(t)))
	}
}

// Attribute is a single key/value pair of an attribute search
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Attributes is an ordered attribute map. Order is significant: it is the
// order predicates appear in SQL and the order values are bound.
type Attributes []Attribute

// Get returns the value for key, matched case-insensitively
func (a Attributes) Get(key string) (string, bool) {
	for _, attr := range a {
		if strings.EqualFold(attr.Key, key) {
			return attr.Value, true
		}
	}
	return "", false
}

// Keys returns the attribute keys in order
func (a Attributes) Keys() []string {
	keys := make([]string, len(a))
	for i, attr := range a {
		keys[i] = attr.Key
	}
	return keys
}

// Request represents a catalog search request
type Request struct {
	Type       SearchType // FULL_TEXT or ATTRIBUTE
	Scope      Scope      // ATTRIBUTE view; empty means ScopeStore
	Query      string     // Free text for FULL_TEXT
	Attributes Attributes // Ordered attributes for ATTRIBUTE
	Roles      []string   // Caller roles; resolved by the RoleResolver when empty
	Identity   string     // Caller user name, matched against API provider
	APIType    APIType    // Defaults to Config.DefaultAPIType; unused by store attribute searches
	Offset     int        // Negative offsets are clamped to 0
	Limit      int        // Must be in (0, Config.MaxLimit]
}

// APISummary is a single row of the API catalog
type APISummary struct {
	ID                  string `json:"id"`
	Provider            string `json:"provider"`
	Name                string `json:"name"`
	Context             string `json:"context"`
	Version             string `json:"version"`
	Description         string `json:"description,omitempty"`
	LifecycleStatus     string `json:"lifecycle_status"`
	LifecycleInstanceID string `json:"lifecycle_instance_id,omitempty"`
	WorkflowStatus      string `json:"workflow_status,omitempty"`
}

// PaginatedResult contains one window of search results
type PaginatedResult struct {
	Items      []APISummary `json:"list"`
	Count      int          `json:"count"`
	Total      int          `json:"total"`
	Offset     int          `json:"offset"`
	Limit      int          `json:"limit"`
	Pagination Pagination   `json:"pagination"`
}
