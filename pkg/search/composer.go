package search

import (
	"fmt"
	"strings"
)

// Visibility is the row-level access arm of an attribute search
type Visibility int

const (
	VisibilityPublic Visibility = iota
	VisibilityRestricted
)

func (v Visibility) String() string {
	switch v {
	case VisibilityPublic:
		return "PUBLIC"
	case VisibilityRestricted:
		return "RESTRICTED"
	default:
		return fmt.Sprintf("Visibility(%d)", int(v))
	}
}

// Lifecycle states visible to consumers
const (
	StatusPublished  = "PUBLISHED"
	StatusPrototyped = "PROTOTYPED"
)

const apiSummaryColumns = "API.UUID, API.PROVIDER, API.NAME, API.CONTEXT, API.VERSION, API.DESCRIPTION, " +
	"API.CURRENT_LC_STATUS, API.LIFECYCLE_INSTANCE_ID, API.LC_WORKFLOW_STATUS"

// Branch is one arm of the visibility UNION
type Branch struct {
	Visibility Visibility
	// RoleCount is the number of role placeholders in the branch (RESTRICTED only)
	RoleCount int
	SQL       string
}

// Placeholders returns the number of placeholders the branch expects
func (b Branch) Placeholders(pred Predicate) int {
	return pred.Placeholders() + b.RoleCount
}

// ComposedQuery is the SQL text for a search, before binding
type ComposedQuery struct {
	Type      SearchType
	Scope     Scope
	Predicate Predicate
	RoleCount int

	// SQL is the paginated statement
	SQL string
	// CountSQL counts all matching rows; it has no pagination placeholders
	CountSQL string
	// Branches are the visibility arms joined with UNION (ATTRIBUTE only)
	Branches []Branch
}

// Compose builds the SQL text for a store search. pred is ignored for FULL_TEXT.
//
// ATTRIBUTE results are not ordered across branches and pagination applies to the
// UNION result, so a row matching both branches is collapsed by UNION itself.
// Both modes end with the dialect's offset-then-limit clause.
func Compose(pred Predicate, t SearchType, roleCount int, d Dialect) (*ComposedQuery, error) {
	return ComposeScoped(pred, t, ScopeStore, roleCount, d)
}

// ComposeScoped is Compose for an explicit scope. A PUBLISHER attribute search
// is a single statement filtered by API type and by group permission or
// provider, ordered by name. FULL_TEXT is the same in both scopes.
func ComposeScoped(pred Predicate, t SearchType, scope Scope, roleCount int, d Dialect) (*ComposedQuery, error) {
	if scope == "" {
		scope = ScopeStore
	}
	if err := scope.Validate(); err != nil {
		return nil, &QueryBuildError{Reason: err.Error()}
	}
	if d == nil {
		return nil, &QueryBuildError{Reason: "no SQL dialect configured"}
	}
	if roleCount < 0 {
		return nil, &QueryBuildError{Reason: fmt.Sprintf("negative role count %d", roleCount)}
	}

	switch t {
	case TypeFullText:
		q := composeFullText(roleCount, d)
		q.Scope = scope
		return q, nil
	case TypeAttribute:
		if pred.SQL == "" || pred.Placeholders() == 0 {
			return nil, &QueryBuildError{Reason: "attribute search without predicate"}
		}
		if scope == ScopePublisher {
			return composePublisherAttribute(pred, roleCount, d), nil
		}
		return composeAttribute(pred, roleCount, d), nil
	default:
		return nil, &QueryBuildError{Reason: fmt.Sprintf("cannot compose search type %q", string(t))}
	}
}

func composeFullText(roleCount int, d Dialect) *ComposedQuery {
	body := strings.Builder{}
	body.WriteString("SELECT ")
	body.WriteString(apiSummaryColumns)
	body.WriteString(" FROM AM_API API")
	body.WriteString(" LEFT JOIN AM_API_GROUP_PERMISSION PERMISSION ON API.UUID = PERMISSION.API_ID")
	body.WriteString(" INNER JOIN (")
	body.WriteString(d.FullTextSource())
	body.WriteString(") FT ON API.UUID = FT.API_ID")
	body.WriteString(" WHERE API.API_TYPE_ID = (SELECT TYPE_ID FROM AM_API_TYPES WHERE TYPE_NAME = ?)")
	body.WriteString(" AND ((")
	body.WriteString(roleMatch("PERMISSION.GROUP_ID", roleCount))
	body.WriteString(") OR (API.PROVIDER = ?))")
	body.WriteString(" GROUP BY API.UUID")

	return &ComposedQuery{
		Type:      TypeFullText,
		RoleCount: roleCount,
		SQL:       body.String() + " ORDER BY API.NAME " + d.OffsetLimit(),
		CountSQL:  "SELECT COUNT(*) FROM (" + body.String() + ") RESULT",
	}
}

func composeAttribute(pred Predicate, roleCount int, d Dialect) *ComposedQuery {
	branches := []Branch{
		composeBranch(pred, VisibilityPublic, 0),
		composeBranch(pred, VisibilityRestricted, roleCount),
	}

	parts := make([]string, len(branches))
	for i, b := range branches {
		parts[i] = b.SQL
	}
	union := strings.Join(parts, " UNION ")

	return &ComposedQuery{
		Type:      TypeAttribute,
		Scope:     ScopeStore,
		Predicate: pred,
		RoleCount: roleCount,
		SQL:       union + " " + d.OffsetLimit(),
		CountSQL:  "SELECT COUNT(*) FROM (" + union + ") RESULT",
		Branches:  branches,
	}
}

func composePublisherAttribute(pred Predicate, roleCount int, d Dialect) *ComposedQuery {
	body := strings.Builder{}
	body.WriteString("SELECT ")
	body.WriteString(apiSummaryColumns)
	body.WriteString(" FROM AM_API API")
	body.WriteString(" LEFT JOIN AM_API_GROUP_PERMISSION PERMISSION ON API.UUID = PERMISSION.API_ID")
	body.WriteString(" WHERE (")
	body.WriteString(pred.SQL)
	body.WriteString(") AND API.API_TYPE_ID = (SELECT TYPE_ID FROM AM_API_TYPES WHERE TYPE_NAME = ?)")
	body.WriteString(" AND ((")
	body.WriteString(roleMatch("PERMISSION.GROUP_ID", roleCount))
	body.WriteString(") OR (API.PROVIDER = ?))")
	body.WriteString(" GROUP BY API.UUID")

	return &ComposedQuery{
		Type:      TypeAttribute,
		Scope:     ScopePublisher,
		Predicate: pred,
		RoleCount: roleCount,
		SQL:       body.String() + " ORDER BY API.NAME " + d.OffsetLimit(),
		CountSQL:  "SELECT COUNT(*) FROM (" + body.String() + ") RESULT",
	}
}

func composeBranch(pred Predicate, v Visibility, roleCount int) Branch {
	q := strings.Builder{}
	q.WriteString("SELECT ")
	q.WriteString(apiSummaryColumns)
	q.WriteString(" FROM AM_API API WHERE API.CURRENT_LC_STATUS IN ('")
	q.WriteString(StatusPublished)
	q.WriteString("', '")
	q.WriteString(StatusPrototyped)
	q.WriteString("') AND API.VISIBILITY = '")
	q.WriteString(v.String())
	q.WriteString("'")

	if v == VisibilityRestricted {
		q.WriteString(" AND API.UUID IN (SELECT API_ID FROM AM_API_VISIBLE_ROLES WHERE ")
		q.WriteString(roleMatch("ROLE", roleCount))
		q.WriteString(")")
	} else {
		roleCount = 0
	}

	q.WriteString(" AND (")
	q.WriteString(pred.SQL)
	q.WriteString(")")

	return Branch{Visibility: v, RoleCount: roleCount, SQL: q.String()}
}

// roleMatch renders column IN (?, ...) or a false predicate when there are no roles
func roleMatch(column string, n int) string {
	if n == 0 {
		return "1 = 0"
	}
	return column + " IN (" + parameterList(n) + ")"
}

func parameterList(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
