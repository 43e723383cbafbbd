package wkt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Empty(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t"} {
		rings, err := Parse(in)
		require.NoError(t, err)
		assert.Empty(t, rings)
	}
}

func TestParse_Polygon(t *testing.T) {
	rings, err := Parse("POLYGON ((0 0, 10 0, 10 10, 0 10, 0 0))")
	require.NoError(t, err)
	require.Len(t, rings, 1)
	assert.Equal(t, Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}, rings[0])
}

func TestParse_PolygonWithHole(t *testing.T) {
	rings, err := Parse("POLYGON ((0 0, 10 0, 10 10), (1 1, 2 1, 2 2))")
	require.NoError(t, err)
	require.Len(t, rings, 2)
	assert.Equal(t, Ring{{0, 0}, {10, 0}, {10, 10}}, rings[0])
	assert.Equal(t, Ring{{1, 1}, {2, 1}, {2, 2}}, rings[1])
}

func TestParse_MultiPolygon(t *testing.T) {
	rings, err := Parse("MULTIPOLYGON (((0 0, 1 0, 1 1)), ((5 5, 6 5, 6 6)))")
	require.NoError(t, err)
	require.Len(t, rings, 2)
	assert.Equal(t, Ring{{0, 0}, {1, 0}, {1, 1}}, rings[0])
	assert.Equal(t, Ring{{5, 5}, {6, 5}, {6, 6}}, rings[1])
}

func TestParse_MultiPolygonWithHoles(t *testing.T) {
	rings, err := Parse("MULTIPOLYGON (((0 0, 9 0, 9 9), (1 1, 2 1, 2 2)), ((5 5, 6 5, 6 6)))")
	require.NoError(t, err)
	require.Len(t, rings, 3)
	assert.Equal(t, Ring{{1, 1}, {2, 1}, {2, 2}}, rings[1])
	assert.Equal(t, Ring{{5, 5}, {6, 5}, {6, 6}}, rings[2])
}

func TestParse_KeywordCaseInsensitive(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		rings int
	}{
		{"lower polygon", "polygon ((0 0, 1 0, 1 1))", 1},
		{"mixed polygon", "Polygon ((0 0, 1 0, 1 1))", 1},
		{"lower multipolygon", "multipolygon (((0 0, 1 0, 1 1)), ((2 2, 3 2, 3 3)))", 2},
		{"leading space", "   POLYGON ((0 0, 1 0, 1 1))  ", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rings, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Len(t, rings, tt.rings)
		})
	}
}

func TestParse_UnrecognizedKeyword(t *testing.T) {
	for _, in := range []string{
		"LINESTRING (0 0, 1 1)",
		"POINT (3 4)",
		"GEOMETRYCOLLECTION (POINT (1 1))",
		"garbage",
	} {
		rings, err := Parse(in)
		require.NoError(t, err, in)
		assert.Empty(t, rings, in)
	}
}

func TestParse_EmptyGeometry(t *testing.T) {
	for _, in := range []string{"POLYGON EMPTY", "MULTIPOLYGON EMPTY", "polygon empty"} {
		rings, err := Parse(in)
		require.NoError(t, err, in)
		assert.Empty(t, rings, in)
	}
}

func TestParse_ExtraOrdinatesIgnored(t *testing.T) {
	rings, err := Parse("POLYGON ((0 0 7, 1 0 7, 1 1 7))")
	require.NoError(t, err)
	require.Len(t, rings, 1)
	assert.Equal(t, Ring{{0, 0}, {1, 0}, {1, 1}}, rings[0])
}

func TestParse_TrailingComma(t *testing.T) {
	rings, err := Parse("POLYGON ((0 0, 1 0, 1 1, ))")
	require.NoError(t, err)
	require.Len(t, rings, 1)
	assert.Len(t, rings[0], 3)
}

func TestParse_DecimalCoordinates(t *testing.T) {
	rings, err := Parse("POLYGON ((102.5 33.25, 110.125 33.25, 110.125 40.75, 102.5 33.25))")
	require.NoError(t, err)
	require.Len(t, rings, 1)
	assert.InDelta(t, 110.125, rings[0][1].X, 1e-9)
	assert.InDelta(t, 40.75, rings[0][2].Y, 1e-9)
}

func TestParse_TightRingSeparator(t *testing.T) {
	rings, err := Parse("POLYGON ((0 0, 10 0, 10 10),(1 1, 2 1, 2 2))")
	require.NoError(t, err)
	assert.Len(t, rings, 2)
}

func TestParse_MalformedCoordinate(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"non-numeric x", "POLYGON ((a 0, 1 0, 1 1))"},
		{"non-numeric y", "POLYGON ((0 b, 1 0, 1 1))"},
		{"single field", "POLYGON ((0, 1 0, 1 1))"},
		{"multipolygon member", "MULTIPOLYGON (((0 0, 1 0, 1 1)), ((x y, 1 0, 1 1)))"},
		{"missing delimiters", "POLYGON (0 0, 1 0, 1 1)"},
		{"negative infinity", "POLYGON ((-Inf 0, 10 0, 10 10, 0 10))"},
		{"positive infinity y", "POLYGON ((0 +Inf, 10 0, 10 10))"},
		{"nan", "POLYGON ((0 0, NaN 0, 10 10))"},
		{"overflow", "POLYGON ((0 0, 1e999 0, 10 10))"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rings, err := Parse(tt.in)
			require.Error(t, err)
			assert.Nil(t, rings)

			var fe *FormatError
			assert.True(t, errors.As(err, &fe), "expected FormatError in chain: %v", err)
		})
	}
}

func TestParseRing_NonFinite(t *testing.T) {
	for _, in := range []string{"inf 1", "1 -inf", "nan nan", "Infinity 0"} {
		_, err := ParseRing(in)
		var fe *FormatError
		require.True(t, errors.As(err, &fe), in)
		assert.Equal(t, "non-finite coordinate", fe.Reason, in)
	}
}

func TestParseRing(t *testing.T) {
	ring, err := ParseRing(" 1 2 ,3   4,, 5 6 ")
	require.NoError(t, err)
	assert.Equal(t, Ring{{1, 2}, {3, 4}, {5, 6}}, ring)

	ring, err = ParseRing("")
	require.NoError(t, err)
	assert.Empty(t, ring)
}

func TestFormatError_Message(t *testing.T) {
	err := &FormatError{Token: "a 0", Reason: "invalid x"}
	assert.Equal(t, `wkt: invalid x: "a 0"`, err.Error())
	assert.Equal(t, "wkt: empty", (&FormatError{Reason: "empty"}).Error())
}
