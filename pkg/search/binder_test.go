package search

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBind_Attribute(t *testing.T) {
	attrs := Attributes{{Key: "tag", Value: "Finance"}}
	pred, err := BuildPredicate(attrs, nil)
	require.NoError(t, err)
	q, err := Compose(pred, TypeAttribute, 1, SQLite{})
	require.NoError(t, err)

	data, count, err := Bind(q, BindInput{
		Roles:      []string{"admin"},
		Attributes: attrs,
		Offset:     0,
		Limit:      20,
	})
	require.NoError(t, err)

	assert.Equal(t, []any{"%finance%", "admin", "%finance%", 0, 20}, data.Args())
	assert.Equal(t, []any{"%finance%", "admin", "%finance%"}, count.Args())
	assert.Equal(t, q.SQL, data.SQL)
	assert.Equal(t, q.CountSQL, count.SQL)
}

func TestBind_AttributeOrder(t *testing.T) {
	attrs := Attributes{{Key: "name", Value: "Pets"}, {Key: "version", Value: "2"}}
	pred, err := BuildPredicate(attrs, nil)
	require.NoError(t, err)
	q, err := Compose(pred, TypeAttribute, 2, SQLite{})
	require.NoError(t, err)

	data, _, err := Bind(q, BindInput{
		Roles:      []string{"dev", "qa"},
		Attributes: attrs,
		Offset:     40,
		Limit:      20,
	})
	require.NoError(t, err)

	assert.Equal(t, []any{"%pets%", "%2%", "dev", "qa", "%pets%", "%2%", 40, 20}, data.Args())
}

func TestBind_FullText(t *testing.T) {
	q, err := Compose(Predicate{}, TypeFullText, 2, SQLite{})
	require.NoError(t, err)

	data, count, err := Bind(q, BindInput{
		Query:    "Pet Store!",
		APIType:  APITypeStandard,
		Roles:    []string{"dev", "qa"},
		Identity: "alice",
		Offset:   10,
		Limit:    5,
	})
	require.NoError(t, err)

	assert.Equal(t, []any{"pet store*", "STANDARD", "dev", "qa", "alice", 10, 5}, data.Args())
	assert.Equal(t, []any{"pet store*", "STANDARD", "dev", "qa", "alice"}, count.Args())

	assert.Equal(t, ParamString, data.Params[0].Kind)
	assert.Equal(t, ParamInt, data.Params[5].Kind)
}

func TestBind_PublisherAttribute(t *testing.T) {
	attrs := Attributes{{Key: "name", Value: "Pets"}, {Key: "version", Value: "2"}}
	pred, err := BuildPredicate(attrs, nil)
	require.NoError(t, err)
	q, err := ComposeScoped(pred, TypeAttribute, ScopePublisher, 1, SQLite{})
	require.NoError(t, err)

	data, count, err := Bind(q, BindInput{
		APIType:    APITypeComposite,
		Roles:      []string{"publisher"},
		Identity:   "bob",
		Attributes: attrs,
		Offset:     20,
		Limit:      10,
	})
	require.NoError(t, err)

	assert.Equal(t, []any{"%pets%", "%2%", "COMPOSITE", "publisher", "bob", 20, 10}, data.Args())
	assert.Equal(t, []any{"%pets%", "%2%", "COMPOSITE", "publisher", "bob"}, count.Args())
}

func TestBind_NegativeOffset(t *testing.T) {
	q, err := Compose(Predicate{}, TypeFullText, 0, SQLite{})
	require.NoError(t, err)

	data, _, err := Bind(q, BindInput{Query: "pets", APIType: APITypeStandard, Offset: -5, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []any{"pets*", "STANDARD", "", 0, 10}, data.Args())
}

func TestBind_Errors(t *testing.T) {
	fullText, err := Compose(Predicate{}, TypeFullText, 1, SQLite{})
	require.NoError(t, err)

	pred, err := BuildPredicate(Attributes{{Key: "name", Value: "x"}}, nil)
	require.NoError(t, err)
	attribute, err := Compose(pred, TypeAttribute, 0, SQLite{})
	require.NoError(t, err)

	tests := []struct {
		name string
		q    *ComposedQuery
		in   BindInput
	}{
		{name: "nil query", q: nil},
		{name: "role count mismatch", q: fullText, in: BindInput{Query: "pets", Limit: 1}},
		{name: "empty term", q: fullText, in: BindInput{Query: "!!!", Roles: []string{"dev"}, Limit: 1}},
		{name: "missing attribute", q: attribute, in: BindInput{Attributes: Attributes{{Key: "version", Value: "1"}}, Limit: 1}},
		{name: "attribute count mismatch", q: attribute, in: BindInput{Limit: 1}},
		{name: "unknown type", q: &ComposedQuery{Type: SearchType("FUZZY")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Bind(tt.q, tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrQueryBuild))
		})
	}
}

func TestBind_PlaceholderMismatch(t *testing.T) {
	q := &ComposedQuery{Type: TypeFullText, SQL: "SELECT ?", CountSQL: "SELECT ?"}

	_, _, err := Bind(q, BindInput{Query: "pets", Limit: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "placeholders")
}

func TestParamKind_String(t *testing.T) {
	assert.Equal(t, "string", ParamString.String())
	assert.Equal(t, "int", ParamInt.String())
	assert.Equal(t, "ParamKind(9)", ParamKind(9).String())
	assert.Equal(t, 3, IntParam(3).Value())
	assert.Equal(t, "x", StringParam("x").Value())
}
