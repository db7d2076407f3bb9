package normalize

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/andreassavva/relay/internal/operation"
)

func normalizeDoc(t *testing.T, text string, vars map[string]any, data map[string]any, opts Options) (*Result, error) {
	t.Helper()
	op := operation.New(operation.MustParse(text, ""), vars, operation.CacheConfig{})
	return NewRecordNormalizer().Normalize(op, data, nil, opts)
}

// Pattern: Result comparison
func TestRecordNormalizer_LinkedRecords(t *testing.T) {
	res, err := normalizeDoc(t,
		`query Q($id: ID!) { user(id: $id) { id name friends(first: 2) { name } best: bestFriend { id } } }`,
		map[string]any{"id": "1"},
		map[string]any{
			"user": map[string]any{
				"__typename": "User",
				"id":         "1",
				"name":       "A",
				"friends": []any{
					map[string]any{"name": "F0"},
					nil,
				},
				"best": map[string]any{"id": "2"},
			},
		},
		Options{},
	)
	require.NoError(t, err)

	want := RecordSource{
		RootID: {
			IDKey:        RootID,
			TypenameKey:  RootTypename,
			`user(id:"1")`: map[string]any{RefKey: "1"},
		},
		"1": {
			IDKey:       "1",
			TypenameKey: "User",
			"id":        "1",
			"name":      "A",
			"friends(first:2)": map[string]any{RefsKey: []any{"client:1:friends(first:2):0", nil}},
			"bestFriend":       map[string]any{RefKey: "2"},
		},
		"client:1:friends(first:2):0": {
			IDKey:  "client:1:friends(first:2):0",
			"name": "F0",
		},
		"2": {IDKey: "2", "id": "2"},
	}
	if diff := cmp.Diff(want, res.Source); diff != "" {
		t.Fatalf("RecordSource mismatch (-want +got):\n%s", diff)
	}

	user, ok := res.Source.Linked(res.Root(), `user(id:"1")`)
	require.True(t, ok)
	require.Equal(t, "A", user["name"])
	require.Equal(t, "User", user.Typename())
	friends, ok := res.Source.PluralLinked(user, "friends(first:2)")
	require.True(t, ok)
	require.Len(t, friends, 2)
	require.Equal(t, "F0", friends[0]["name"])
	require.Nil(t, friends[1])
}

func TestRecordNormalizer_ClientIDsWithoutID(t *testing.T) {
	res, err := normalizeDoc(t, `{ viewer { settings { theme } } }`, nil,
		map[string]any{"viewer": map[string]any{"settings": map[string]any{"theme": "dark"}}}, Options{})
	require.NoError(t, err)

	viewer, ok := res.Source.Linked(res.Root(), "viewer")
	require.True(t, ok)
	require.Equal(t, "client:root:viewer", viewer.ID())
	settings, ok := res.Source.Linked(viewer, "settings")
	require.True(t, ok)
	require.Equal(t, "client:root:viewer:settings", settings.ID())
	require.Equal(t, "dark", settings["theme"])
}

func TestRecordNormalizer_Fragments(t *testing.T) {
	text := `
query Q { node { __typename ...UserFields ... on Page { title } ... @skip(if: true) { hidden } } }
fragment UserFields on User { name }
`
	res, err := normalizeDoc(t, text, nil, map[string]any{
		"node": map[string]any{"__typename": "User", "name": "A", "hidden": "x"},
	}, Options{TreatMissingFieldsAsNull: true})
	require.NoError(t, err)
	node, _ := res.Source.Linked(res.Root(), "node")
	require.Equal(t, "A", node["name"])
	// Page refinement does not match: missing title is not written as null.
	_, hasTitle := node["title"]
	require.False(t, hasTitle)
	_, hasHidden := node["hidden"]
	require.False(t, hasHidden)
}

func TestRecordNormalizer_IncludeWithVariable(t *testing.T) {
	text := `query Q($withName: Boolean!) { me { id name @include(if: $withName) } }`
	data := map[string]any{"me": map[string]any{"id": "7", "name": "N"}}

	res, err := normalizeDoc(t, text, map[string]any{"withName": false}, data, Options{})
	require.NoError(t, err)
	_, has := res.Source["7"]["name"]
	require.False(t, has)

	res, err = normalizeDoc(t, text, map[string]any{"withName": true}, data, Options{})
	require.NoError(t, err)
	require.Equal(t, "N", res.Source["7"]["name"])
}

func TestRecordNormalizer_MissingFields(t *testing.T) {
	res, err := normalizeDoc(t, `{ a b }`, nil, map[string]any{"a": 1}, Options{})
	require.NoError(t, err)
	_, has := res.Root()["b"]
	require.False(t, has)

	res, err = normalizeDoc(t, `{ a b }`, nil, map[string]any{"a": 1}, Options{TreatMissingFieldsAsNull: true})
	require.NoError(t, err)
	v, has := res.Root()["b"]
	require.True(t, has)
	require.Nil(t, v)
}

func TestRecordNormalizer_NullArgumentsOmitted(t *testing.T) {
	res, err := normalizeDoc(t, `query Q($after: String) { items(after: $after, first: 10) { id } }`, map[string]any{},
		map[string]any{"items": nil}, Options{})
	require.NoError(t, err)
	v, has := res.Root()["items(first:10)"]
	require.True(t, has)
	require.Nil(t, v)
}

func TestRecordNormalizer_ShapeErrors(t *testing.T) {
	_, err := normalizeDoc(t, `{ user { id } }`, nil, map[string]any{"user": "oops"}, Options{})
	var se *ShapeError
	require.True(t, errors.As(err, &se))
	require.Equal(t, []any{"user"}, se.Path)
	require.ErrorContains(t, err, "at user")

	_, err = normalizeDoc(t, `{ users { id } }`, nil, map[string]any{"users": []any{map[string]any{"id": "1"}, 3.0}}, Options{})
	require.True(t, errors.As(err, &se))
	require.Equal(t, []any{"users", 1}, se.Path)
	require.ErrorContains(t, err, "at users[1]")

	_, err = normalizeDoc(t, `{ ...Missing }`, nil, map[string]any{}, Options{})
	require.True(t, errors.As(err, &se))
}

func TestRecordNormalizer_RequiresDefinition(t *testing.T) {
	op := operation.New(operation.Operation{ID: "x"}, nil, operation.CacheConfig{})
	_, err := NewRecordNormalizer().Normalize(op, map[string]any{}, nil, Options{})
	require.ErrorIs(t, err, ErrMissingDefinition)
}

func TestClientID(t *testing.T) {
	require.Equal(t, "client:root:viewer", ClientID(RootID, "viewer", -1))
	require.Equal(t, "client:4:friends:0", ClientID("4", "friends", 0))
}
