package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/form-imports/internal/types"
)

func TestParseNumberLocales(t *testing.T) {
	cases := map[string]float64{
		"1,234.56":  1234.56,
		"1.234,56":  1234.56,
		"1 234,56":  1234.56,
		"$2,500":    2500,
		"€1.250,00": 1250,
		"42":        42,
		"-3.5":      -3.5,
		"0,5":       0.5,
	}
	for in, want := range cases {
		got, err := ParseNumber(in)
		require.NoError(t, err, "input %q", in)
		assert.InDelta(t, want, got, 1e-9, "input %q", in)
	}

	for _, in := range []string{"", "abc", "12abc", "--"} {
		_, err := ParseNumber(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestParseDateFormats(t *testing.T) {
	iso, err := ParseDate("2024-01-15")
	require.NoError(t, err)
	eu, err := ParseDate("15/01/2024")
	require.NoError(t, err)
	assert.Equal(t, iso, eu, "day-first and ISO forms of Jan 15 must agree")

	us, err := ParseDate("01/15/2024")
	require.NoError(t, err)
	assert.Equal(t, iso, us)

	dotted, err := ParseDate("15.01.2024")
	require.NoError(t, err)
	assert.Equal(t, iso, dotted)

	_, err = ParseDate("not a date")
	assert.Error(t, err)
}

func TestTransformNumber(t *testing.T) {
	f := types.FieldDefinition{ID: "amount", Type: types.FieldNumber}

	res := Transform(f, "1,234.56")
	require.True(t, res.OK)
	assert.Equal(t, 1234.56, res.Value)

	res = Transform(f, "1.234,56")
	require.True(t, res.OK)
	assert.Equal(t, 1234.56, res.Value)

	res = Transform(f, "twelve")
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Err)
}

func TestTransformCheckbox(t *testing.T) {
	f := types.FieldDefinition{ID: "active", Type: types.FieldCheckbox}

	res := Transform(f, "Yes")
	require.True(t, res.OK)
	assert.Equal(t, true, res.Value)

	res = Transform(f, "off")
	require.True(t, res.OK)
	assert.Equal(t, false, res.Value)

	// Empty is nil, not false and not an error.
	res = Transform(f, "")
	require.True(t, res.OK)
	assert.Nil(t, res.Value)

	res = Transform(f, "maybe")
	assert.False(t, res.OK)
}

func TestTransformDateNormalizesToISO(t *testing.T) {
	f := types.FieldDefinition{ID: "dob", Type: types.FieldDate}

	a := Transform(f, "15/01/2024")
	b := Transform(f, "2024-01-15")
	require.True(t, a.OK)
	require.True(t, b.OK)
	assert.Equal(t, a.Value, b.Value)
	assert.Equal(t, "2024-01-15T00:00:00Z", a.Value)
}

func TestTransformMultiSelect(t *testing.T) {
	f := types.FieldDefinition{ID: "tags", Type: types.FieldMultiSelect}
	res := Transform(f, "red, green;; blue ,")
	require.True(t, res.OK)
	assert.Equal(t, []string{"red", "green", "blue"}, res.Value)
}

func TestTransformEmptyIsAlwaysNil(t *testing.T) {
	for _, ft := range []types.FieldType{
		types.FieldText, types.FieldNumber, types.FieldDate,
		types.FieldCheckbox, types.FieldMultiSelect, types.FieldEmail,
	} {
		res := Transform(types.FieldDefinition{ID: "f", Type: ft}, "  ")
		require.True(t, res.OK, "type %s", ft)
		assert.Nil(t, res.Value, "type %s", ft)
	}
}

func TestTransformPassThrough(t *testing.T) {
	res := Transform(types.FieldDefinition{ID: "n", Type: types.FieldText}, "  hello ")
	require.True(t, res.OK)
	assert.Equal(t, "hello", res.Value)
}
