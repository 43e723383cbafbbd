package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/damage-vis/internal/label"
	"github.com/sells-group/damage-vis/internal/overlay"
)

func TestInspectRecord(t *testing.T) {
	rec, err := label.Decode([]byte(goodLabel))
	require.NoError(t, err)

	report, err := inspectRecord(rec)
	require.NoError(t, err)

	require.Len(t, report.Features, 2)
	assert.Equal(t, "m1", report.Features[0].UID)
	assert.Equal(t, overlay.MajorDamage, report.Features[0].Category)
	assert.True(t, report.Features[0].Known)
	assert.Equal(t, 1, report.Features[0].Rings)
	assert.Equal(t, []int{5}, report.Features[0].Points)
	assert.InDelta(t, 100.0, report.Features[0].Area, 1e-9)

	assert.Equal(t, 2, report.Features[1].Rings)
	assert.Equal(t, []int{5, 2}, report.Features[1].Points)

	assert.Equal(t, 2, report.Drawable)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Categories[overlay.NoDamage])
}

func TestInspectRecord_Malformed(t *testing.T) {
	rec, err := label.Decode([]byte(brokenLabel))
	require.NoError(t, err)

	_, err = inspectRecord(rec)
	assert.Error(t, err)
}

func TestWriteYAML(t *testing.T) {
	rec, err := label.Decode([]byte(goodLabel))
	require.NoError(t, err)
	report, err := inspectRecord(rec)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeYAML(&buf, report))
	assert.Contains(t, buf.String(), "category: major-damage")
	assert.Contains(t, buf.String(), "skipped_rings: 1")

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Contains(t, decoded, "features")
}
