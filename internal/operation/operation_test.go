package operation

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParse_Kinds(t *testing.T) {
	cases := []struct {
		text string
		name string
		kind Kind
	}{
		{text: "query Q { viewer { id } }", name: "Q", kind: KindQuery},
		{text: "{ viewer { id } }", kind: KindQuery},
		{text: "mutation M { like(id: 1) { id } }", kind: KindMutation},
		{text: "subscription S { feed { id } }", kind: KindSubscription},
		{text: "query A { a } subscription B { b }", name: "B", kind: KindSubscription},
	}
	for _, tc := range cases {
		op, err := Parse(tc.text, tc.name)
		require.NoError(t, err, tc.text)
		require.Equal(t, tc.kind, op.Kind, tc.text)
		require.Equal(t, tc.text, op.Text)
		require.NotNil(t, op.Definition)
		require.NotEmpty(t, op.ID)
	}
}

func TestParse_NamedOperationUsesNameAsID(t *testing.T) {
	op := MustParse("query UserQuery { user { id } }", "")
	require.Equal(t, "UserQuery", op.ID)
	require.Equal(t, "UserQuery", op.Name)
	require.False(t, op.IsSubscription())
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse("query {", "")
	var pe *ParseError
	require.True(t, errors.As(err, &pe))

	_, err = Parse("query A { a } query B { b }", "")
	require.ErrorIs(t, err, ErrAmbiguousOperation)

	_, err = Parse("query A { a }", "Nope")
	require.ErrorIs(t, err, ErrOperationNotFound)
	require.Contains(t, err.Error(), `"Nope"`)

	require.Panics(t, func() { MustParse("{", "") })
}

func TestNew_CopiesInputs(t *testing.T) {
	vars := map[string]any{"id": 1}
	meta := map[string]any{"k": "v"}
	ctx := New(MustParse("{ a }", ""), vars, CacheConfig{Metadata: meta})

	vars["id"] = 2
	meta["k"] = "changed"
	require.Equal(t, 1, ctx.Variables["id"])
	require.Equal(t, "v", ctx.CacheConfig.Metadata["k"])

	empty := New(MustParse("{ a }", ""), nil, CacheConfig{})
	require.NotNil(t, empty.Variables)
}

func TestWithForce_DoesNotMutateOriginal(t *testing.T) {
	orig := New(MustParse("{ a }", ""), map[string]any{"x": true}, CacheConfig{
		Poll:     PollEvery(time.Second),
		Metadata: map[string]any{"k": "v"},
	})
	forced := orig.WithForce()

	require.False(t, orig.CacheConfig.Force)
	require.True(t, forced.CacheConfig.Force)

	forced.CacheConfig.Metadata["k"] = "changed"
	*forced.CacheConfig.Poll = time.Minute
	require.Equal(t, "v", orig.CacheConfig.Metadata["k"])
	d, ok := orig.CacheConfig.PollInterval()
	require.True(t, ok)
	require.Equal(t, time.Second, d)

	if diff := cmp.Diff(orig.Variables, forced.Variables); diff != "" {
		t.Fatalf("variables mismatch (-orig +forced):\n%s", diff)
	}
}

func TestPollInterval_Unset(t *testing.T) {
	_, ok := CacheConfig{}.PollInterval()
	require.False(t, ok)
}
