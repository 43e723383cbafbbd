package label

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/damage-vis/internal/overlay"
	"github.com/sells-group/damage-vis/internal/wkt"
)

const postDisaster = `{
  "features": {
    "lng_lat": [
      {"properties": {"feature_type": "building", "subtype": "destroyed", "uid": "a"},
       "wkt": "POLYGON ((-77.1 38.8, -77.2 38.8, -77.2 38.9, -77.1 38.8))"}
    ],
    "xy": [
      {"properties": {"feature_type": "building", "subtype": "destroyed", "uid": "a"},
       "wkt": "POLYGON ((10 10, 50 10, 50 50, 10 50, 10 10))"},
      {"properties": {"feature_type": "building", "subtype": "No-Damage", "uid": "b"},
       "wkt": "MULTIPOLYGON (((60 60, 70 60, 70 70)), ((80 80, 90 80, 90 90)))"},
      {"properties": {"feature_type": "building", "uid": "c"},
       "wkt": "POLYGON ((1 1, 2 1, 2 2))"},
      {"properties": {"feature_type": "building", "subtype": "flooded", "uid": "d"},
       "wkt": null}
    ]
  },
  "metadata": {
    "img_name": "hurricane-michael_00000001_post_disaster.png",
    "width": 1024,
    "height": 1024,
    "disaster": "hurricane-michael",
    "disaster_type": "wind"
  }
}`

func TestDecode(t *testing.T) {
	rec, err := Decode([]byte(postDisaster))
	require.NoError(t, err)

	assert.Equal(t, "hurricane-michael_00000001_post_disaster.png", rec.Metadata.ImageName)
	assert.Equal(t, 1024, rec.Metadata.Width)
	assert.Equal(t, 1024, rec.Metadata.Height)
	assert.Equal(t, "hurricane-michael", rec.Metadata.Disaster)
	assert.Equal(t, "wind", rec.Metadata.DisasterType)

	require.Len(t, rec.Features, 4)
	assert.Equal(t, overlay.Destroyed, rec.Features[0].Category)
	assert.Equal(t, "a", rec.Features[0].UID)
	assert.Equal(t, "building", rec.Features[0].FeatureType)
	assert.Equal(t, overlay.NoDamage, rec.Features[1].Category)
	assert.Equal(t, overlay.Unclassified, rec.Features[2].Category, "missing subtype")
	assert.Equal(t, overlay.Category("flooded"), rec.Features[3].Category)
	assert.Empty(t, rec.Features[3].WKT, "null wkt")
}

func TestDecode_MissingOrMalformedFeatures(t *testing.T) {
	for _, doc := range []string{
		`{}`,
		`{"features": {}}`,
		`{"features": {"xy": null}}`,
		`{"features": {"xy": "nope"}}`,
		`{"features": []}`,
		`{"features": {"xy": [1, "two", null]}}`,
	} {
		rec, err := Decode([]byte(doc))
		require.NoError(t, err, doc)
		assert.Empty(t, rec.Features, doc)
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, doc := range []string{``, `{"features": `, `not json`, `[1, 2]`} {
		_, err := Decode([]byte(doc))
		assert.True(t, errors.Is(err, ErrMalformed), doc)
	}
}

func TestRecord_Geometries(t *testing.T) {
	rec, err := Decode([]byte(postDisaster))
	require.NoError(t, err)

	geoms, err := rec.Geometries()
	require.NoError(t, err)
	require.Len(t, geoms, 4)

	assert.Equal(t, overlay.Destroyed, geoms[0].Category)
	require.Len(t, geoms[0].Rings, 1)
	assert.Len(t, geoms[0].Rings[0], 5)
	assert.Len(t, geoms[1].Rings, 2)
	assert.Empty(t, geoms[3].Rings)
}

func TestRecord_GeometriesMalformedWKT(t *testing.T) {
	rec := &Record{Features: []Feature{
		{UID: "ok", Category: overlay.Destroyed, WKT: "POLYGON ((0 0, 1 0, 1 1))"},
		{UID: "bad", Category: overlay.Destroyed, WKT: "POLYGON ((0 0, x 0, 1 1))"},
	}}

	_, err := rec.Geometries()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feature 1 (bad)")

	var fe *wkt.FormatError
	assert.True(t, errors.As(err, &fe))
}

func TestRecord_CategoryCounts(t *testing.T) {
	rec, err := Decode([]byte(postDisaster))
	require.NoError(t, err)

	counts := rec.CategoryCounts()
	assert.Equal(t, 1, counts[overlay.Destroyed])
	assert.Equal(t, 1, counts[overlay.NoDamage])
	assert.Equal(t, 1, counts[overlay.Unclassified])
	assert.Equal(t, 1, counts["flooded"])
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "label.json")
	require.NoError(t, os.WriteFile(path, []byte(postDisaster), 0644))

	rec, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, rec.Features, 4)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0644))
	_, err = Load(bad)
	assert.True(t, errors.Is(err, ErrMalformed))
}
