package search

import (
	"fmt"
)

// ParamKind is the SQL type of a bound parameter
type ParamKind int

const (
	ParamString ParamKind = iota
	ParamInt
)

func (k ParamKind) String() string {
	switch k {
	case ParamString:
		return "string"
	case ParamInt:
		return "int"
	default:
		return fmt.Sprintf("ParamKind(%d)", int(k))
	}
}

// Param is a single typed positional parameter
type Param struct {
	Kind ParamKind
	Str  string
	Int  int
}

// StringParam returns a string parameter
func StringParam(s string) Param { return Param{Kind: ParamString, Str: s} }

// IntParam returns an integer parameter
func IntParam(i int) Param { return Param{Kind: ParamInt, Int: i} }

// Value returns the driver value of the parameter
func (p Param) Value() any {
	if p.Kind == ParamInt {
		return p.Int
	}
	return p.Str
}

// BoundStatement is SQL text plus parameters in placeholder order
type BoundStatement struct {
	SQL    string
	Params []Param
}

// Args returns the parameter values for database/sql
func (s *BoundStatement) Args() []any {
	args := make([]any, len(s.Params))
	for i, p := range s.Params {
		args[i] = p.Value()
	}
	return args
}

// BindInput carries the request values bound into a composed query
type BindInput struct {
	Query      string // raw free text; sanitized here
	APIType    APIType
	Roles      []string
	Identity   string
	Attributes Attributes
	Offset     int
	Limit      int
}

// Bind binds request values into the composed statements. It returns the
// paginated statement and the count statement, which carries the same
// parameters without offset and limit.
//
// FULL_TEXT order: term, API type, roles, identity, offset, limit.
// ATTRIBUTE order: PUBLIC values, roles, RESTRICTED values, offset, limit.
// PUBLISHER ATTRIBUTE order: values, API type, roles, identity, offset, limit.
func Bind(q *ComposedQuery, in BindInput) (*BoundStatement, *BoundStatement, error) {
	if q == nil {
		return nil, nil, &QueryBuildError{Reason: "nothing to bind"}
	}
	if len(in.Roles) != q.RoleCount {
		return nil, nil, &QueryBuildError{Reason: fmt.Sprintf("query composed for %d roles, got %d", q.RoleCount, len(in.Roles))}
	}

	var params []Param
	switch q.Type {
	case TypeFullText:
		term := SanitizeFreeText(in.Query)
		if term == "" {
			return nil, nil, &QueryBuildError{Reason: "empty full-text term"}
		}
		params = make([]Param, 0, len(in.Roles)+3)
		params = append(params, StringParam(term), StringParam(string(in.APIType)))
		params = appendRoles(params, in.Roles)
		params = append(params, StringParam(in.Identity))

	case TypeAttribute:
		values, err := predicateValues(q.Predicate, in.Attributes)
		if err != nil {
			return nil, nil, err
		}
		if q.Scope == ScopePublisher {
			params = make([]Param, 0, len(values)+len(in.Roles)+2)
			params = append(params, values...)
			params = append(params, StringParam(string(in.APIType)))
			params = appendRoles(params, in.Roles)
			params = append(params, StringParam(in.Identity))
			break
		}
		params = make([]Param, 0, 2*len(values)+len(in.Roles))
		params = append(params, values...) // PUBLIC branch
		params = appendRoles(params, in.Roles)
		params = append(params, values...) // RESTRICTED branch

	default:
		return nil, nil, &QueryBuildError{Reason: fmt.Sprintf("cannot bind search type %q", string(q.Type))}
	}

	count := &BoundStatement{SQL: q.CountSQL, Params: params}

	offset := in.Offset
	if offset < 0 {
		offset = 0
	}
	dataParams := make([]Param, len(params), len(params)+2)
	copy(dataParams, params)
	dataParams = append(dataParams, IntParam(offset), IntParam(in.Limit))
	data := &BoundStatement{SQL: q.SQL, Params: dataParams}

	if err := verifyPlaceholders(data); err != nil {
		return nil, nil, err
	}
	if err := verifyPlaceholders(count); err != nil {
		return nil, nil, err
	}

	return data, count, nil
}

func appendRoles(params []Param, roles []string) []Param {
	for _, role := range roles {
		params = append(params, StringParam(role))
	}
	return params
}

// predicateValues returns LIKE patterns in predicate bind order
func predicateValues(pred Predicate, attrs Attributes) ([]Param, error) {
	if len(pred.BindKeys) != len(attrs) {
		return nil, &QueryBuildError{Reason: fmt.Sprintf("predicate binds %d keys, request has %d attributes", len(pred.BindKeys), len(attrs))}
	}
	values := make([]Param, 0, len(pred.BindKeys))
	for _, key := range pred.BindKeys {
		value, ok := attrs.Get(key)
		if !ok {
			return nil, &QueryBuildError{Reason: fmt.Sprintf("no value for attribute key %q", key)}
		}
		values = append(values, StringParam(LikePattern(value)))
	}
	return values, nil
}

func verifyPlaceholders(s *BoundStatement) error {
	if n := CountPlaceholders(s.SQL); n != len(s.Params) {
		return &QueryBuildError{Reason: fmt.Sprintf("statement has %d placeholders but %d parameters", n, len(s.Params))}
	}
	return nil
}
