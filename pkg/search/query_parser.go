package search

import (
	"fmt"
	"regexp"
	"strings"
)

// ParsedQuery is a search content string split into attributes and free text
type ParsedQuery struct {
	// Attributes are key:value filters in the order they appear
	Attributes Attributes

	// Free-text terms outside any filter
	Terms []string

	// Original content string
	Raw string
}

// QueryParser parses search content strings
type QueryParser struct {
	filterPattern *regexp.Regexp
}

// NewQueryParser creates a new query parser
func NewQueryParser() *QueryParser {
	// key:value or key:"quoted value"; keys are checked against the catalog later
	filterPattern := regexp.MustCompile(`([\w.-]+):("([^"]*)"|(\S+))`)

	return &QueryParser{
		filterPattern: filterPattern,
	}
}

// Parse parses a search content string
func (p *QueryParser) Parse(content string) (*ParsedQuery, error) {
	query := &ParsedQuery{
		Attributes: make(Attributes, 0),
		Terms:      make([]string, 0),
		Raw:        content,
	}

	seen := make(map[string]bool)
	for _, match := range p.filterPattern.FindAllStringSubmatch(content, -1) {
		key := match[1]
		value := match[3] // Quoted value
		if match[4] != "" {
			value = match[4] // Unquoted value
		}

		folded := strings.ToLower(key)
		if seen[folded] {
			return nil, newValidationError("query", fmt.Sprintf("duplicate attribute key %q", key))
		}
		seen[folded] = true

		query.Attributes = append(query.Attributes, Attribute{Key: key, Value: value})
	}

	// Remove filters from the content to get free-text terms
	clean := strings.TrimSpace(p.filterPattern.ReplaceAllString(content, ""))
	if clean != "" {
		query.Terms = append(query.Terms, strings.Fields(clean)...)
	}

	return query, nil
}

// HasFilters returns true if the content has any key:value filters
func (q *ParsedQuery) HasFilters() bool {
	return len(q.Attributes) > 0
}

// InferType picks ATTRIBUTE when the content has filters, FULL_TEXT otherwise
func (q *ParsedQuery) InferType() SearchType {
	if q.HasFilters() {
		return TypeAttribute
	}
	return TypeFullText
}

// Apply fills the query fields of req for the request's search type
func (q *ParsedQuery) Apply(req *Request) error {
	switch req.Type {
	case TypeFullText:
		req.Query = q.Raw
		return nil
	case TypeAttribute:
		if len(q.Terms) > 0 {
			return newValidationError("query", fmt.Sprintf("attribute search expects key:value pairs, got free text %q", strings.Join(q.Terms, " ")))
		}
		if !q.HasFilters() {
			return newValidationError("query", "attribute search requires at least one key:value pair")
		}
		req.Attributes = q.Attributes
		return nil
	default:
		return req.Type.Validate()
	}
}

// ParseSearchContent builds the query fields of a request from a single content
// string. An empty search type is inferred from the content. An explicit
// FULL_TEXT search takes the content verbatim, so "key:value" tokens are
// search terms rather than filters.
func ParseSearchContent(content string, t SearchType) (Request, error) {
	if t == TypeFullText {
		return Request{Type: TypeFullText, Query: content}, nil
	}

	parsed, err := NewQueryParser().Parse(content)
	if err != nil {
		return Request{}, err
	}

	req := Request{Type: t}
	if req.Type == "" {
		req.Type = parsed.InferType()
	}
	if err := parsed.Apply(&req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// String returns a human-readable representation of the query
func (q *ParsedQuery) String() string {
	parts := make([]string, 0, len(q.Attributes)+1)

	if len(q.Terms) > 0 {
		parts = append(parts, fmt.Sprintf("terms:%v", q.Terms))
	}
	for _, attr := range q.Attributes {
		parts = append(parts, fmt.Sprintf("%s:%s", attr.Key, attr.Value))
	}

	return strings.Join(parts, ", ")
}

// Examples:
//
// Full-text:
//   "pet store" -> matches "pet" and words starting with "store"
//
// Tag:
//   "tag:finance" -> APIs tagged with a tag containing "finance"
//
// Subcontext:
//   "subcontext:/pets" -> APIs with a resource URL pattern containing "/pets"
//
// Columns:
//   `name:"pet store" provider:alice` -> both conditions must match
