package normalize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/andreassavva/relay/internal/operation"
)

func TestApply_MissingData(t *testing.T) {
	op := operation.New(operation.MustParse("query UserQuery($id: ID!) { user(id: $id) { id } }", ""), map[string]any{"id": 1}, operation.CacheConfig{})
	called := false
	n := NormalizerFunc(func(operation.Context, map[string]any, []PayloadError, Options) (*Result, error) {
		called = true
		return &Result{}, nil
	})

	_, err := Apply(n, op, Payload{Errors: []PayloadError{{Message: "boom"}, {Message: "bang"}}}, Options{})
	require.False(t, called)

	var mde *MissingDataError
	require.True(t, errors.As(err, &mde))
	require.Contains(t, err.Error(), "boom")
	require.Contains(t, err.Error(), "bang")
	require.Contains(t, err.Error(), `"UserQuery"`)
	require.Equal(t, "UserQuery", mde.Operation.Name)
	require.Equal(t, map[string]any{"id": 1}, mde.Variables)
	require.Len(t, mde.Errors, 2)
}

func TestApply_MissingDataNoErrors(t *testing.T) {
	op := operation.New(operation.MustParse("{ a }", ""), nil, operation.CacheConfig{})
	_, err := Apply(NewRecordNormalizer(), op, Payload{}, Options{})
	require.ErrorContains(t, err, "(no errors)")
}

func TestApply_PropagatesNormalizerError(t *testing.T) {
	bad := errors.New("bad")
	op := operation.New(operation.MustParse("{ a }", ""), nil, operation.CacheConfig{})
	n := NormalizerFunc(func(operation.Context, map[string]any, []PayloadError, Options) (*Result, error) {
		return nil, bad
	})
	_, err := Apply(n, op, Payload{Data: map[string]any{"a": 1}}, Options{})
	require.ErrorIs(t, err, bad)
}

func TestApply_CopiesErrorsAndExtensions(t *testing.T) {
	op := operation.New(operation.MustParse("{ a }", ""), nil, operation.CacheConfig{})
	p := Payload{
		Data:       map[string]any{"a": 1},
		Errors:     []PayloadError{{Message: "partial"}},
		Extensions: map[string]any{"cost": 3.0},
	}
	res, err := Apply(NewRecordNormalizer(), op, p, Options{})
	require.NoError(t, err)
	require.Equal(t, p.Errors, res.Errors)
	require.Equal(t, p.Extensions, res.Extensions)
}

func TestDecodePayload(t *testing.T) {
	p, err := DecodePayload([]byte(`{"data":{"a":1},"errors":[{"message":"x","path":["a"],"locations":[{"line":1,"column":3}]}]}`))
	require.NoError(t, err)
	require.Equal(t, map[string]any{"a": 1.0}, p.Data)
	require.Equal(t, []PayloadError{{Message: "x", Path: []any{"a"}, Locations: []Location{{Line: 1, Column: 3}}}}, p.Errors)

	p, err = DecodePayload([]byte(`{"data":null,"errors":[{"message":"boom"}]}`))
	require.NoError(t, err)
	require.Nil(t, p.Data)

	p, err = DecodePayload([]byte(`{"errors":[]}`))
	require.NoError(t, err)
	require.Nil(t, p.Data)

	_, err = DecodePayload([]byte(`{"data":[1]}`))
	require.Error(t, err)

	_, err = DecodePayload([]byte(`not json`))
	require.Error(t, err)
}

func TestPayloadFromMap(t *testing.T) {
	p, err := PayloadFromMap(map[string]any{
		"data":   map[string]any{"a": "b"},
		"errors": []any{map[string]any{"message": "m"}},
	})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"a": "b"}, p.Data)
	require.Equal(t, "m", p.Errors[0].Message)
}
